package processor

import (
	"fmt"
	"strings"

	"github.com/xhad/booksage/internal/models"
)

const (
	DefaultChunkSize      = 500
	DefaultChunkOverlap   = 50
	DefaultMinChunkLength = 100
)

type ProcessorConfig struct {
	ChunkSize    int // tokens per window
	ChunkOverlap int // tokens shared by neighbouring windows
	// MinChunkLength is the sanity threshold, in characters, for the first
	// token window. Shorter means the tokenizer path degenerated.
	MinChunkLength int
	StripHTML      bool
}

// Tokenizer maps text to discrete token units and back.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type Processor struct {
	config    ProcessorConfig
	tokenizer Tokenizer
}

// NewWithConfig builds a windower. A nil tokenizer forces character windows.
func NewWithConfig(config ProcessorConfig, tokenizer Tokenizer) (*Processor, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = DefaultChunkOverlap
	}
	if config.MinChunkLength == 0 {
		config.MinChunkLength = DefaultMinChunkLength
	}

	if config.ChunkSize < 1 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidConfiguration, config.ChunkSize)
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be non-negative and less than chunk size %d",
			models.ErrInvalidConfiguration, config.ChunkOverlap, config.ChunkSize)
	}

	return &Processor{
		config:    config,
		tokenizer: tokenizer,
	}, nil
}

// Split cuts text into overlapping windows of at most ChunkSize tokens.
func (p *Processor) Split(text string) []string {
	if text == "" {
		return nil
	}

	if p.tokenizer != nil {
		chunks := p.splitTokens(text)
		if len(chunks) > 0 && len([]rune(chunks[0])) >= p.config.MinChunkLength {
			return chunks
		}
		// A legitimately short text also lands here; the character path
		// returns it whole.
	}

	return p.splitRunes(text)
}

func (p *Processor) splitTokens(text string) []string {
	tokens := p.tokenizer.Encode(text)

	var chunks []string
	for _, w := range windows(tokens, p.config.ChunkSize, p.config.ChunkOverlap) {
		// Byte-level tokens can cut a rune at either edge of a window.
		chunks = append(chunks, strings.ToValidUTF8(p.tokenizer.Decode(w), ""))
	}
	return chunks
}

func (p *Processor) splitRunes(text string) []string {
	var chunks []string
	for _, w := range windows([]rune(text), p.config.ChunkSize, p.config.ChunkOverlap) {
		chunk := string(w)
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// windows slides a size-wide window over items with a stride of size-overlap.
// It stops as soon as a window reaches the last item.
func windows[T any](items []T, size, overlap int) [][]T {
	var out [][]T
	stride := size - overlap

	for start := 0; start < len(items); start += stride {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
		if end == len(items) {
			break
		}
	}
	return out
}

func (p *Processor) Config() ProcessorConfig {
	return p.config
}
