package processor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var markupRe = regexp.MustCompile(`<(?:[a-zA-Z][a-zA-Z0-9-]*|/[a-zA-Z][a-zA-Z0-9-]*|!--)[^>]*>`)

// Clean strips HTML from content when StripHTML is set and the text carries
// markup. Anything else passes through untouched.
func (p *Processor) Clean(text string) string {
	if !p.config.StripHTML || !markupRe.MatchString(text) {
		return text
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}
	doc.Find("script, style, noscript").Remove()

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
