// Package fakes holds deterministic stand-ins for the external capabilities
// so pipeline tests run without a model server or a database.
package fakes

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xhad/booksage/internal/models"
)

// WordTokenizer treats every whitespace separated word as one token.
type WordTokenizer struct {
	mu    sync.Mutex
	ids   map[string]int
	words []string
}

func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{ids: make(map[string]int)}
}

func (t *WordTokenizer) Encode(text string) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	fields := strings.Fields(text)
	tokens := make([]int, len(fields))
	for i, w := range fields {
		id, ok := t.ids[w]
		if !ok {
			id = len(t.words)
			t.ids[w] = id
			t.words = append(t.words, w)
		}
		tokens[i] = id
	}
	return tokens
}

func (t *WordTokenizer) Decode(tokens []int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	words := make([]string, len(tokens))
	for i, id := range tokens {
		words[i] = t.words[id]
	}
	return strings.Join(words, " ")
}

// Words returns "w0 w1 ... w{n-1}".
func Words(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

// VocabEmbedder gives word "w{N}" its own axis N, so cosine similarity is
// exact word overlap. Other words are ignored.
type VocabEmbedder struct {
	Dim int
	Err error

	mu    sync.Mutex
	calls int
}

func (e *VocabEmbedder) Encode(_ context.Context, text string) (models.Vector, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.Err != nil {
		return nil, models.DependencyError("encode", e.Err)
	}

	v := make(models.Vector, e.Dim)
	for _, w := range strings.Fields(text) {
		var n int
		if _, err := fmt.Sscanf(w, "w%d", &n); err == nil && n >= 0 && n < e.Dim {
			v[n]++
		}
	}
	return v, nil
}

func (e *VocabEmbedder) Dimension() int {
	return e.Dim
}

func (e *VocabEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
