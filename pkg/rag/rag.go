// Package rag answers questions from retrieved book passages.
package rag

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xhad/booksage/internal/models"
)

const (
	NoResultsResponse = "I couldn't find relevant information in the book to answer your question."
	ErrorResponse     = "An error occurred while processing your request."

	sourcePreviewRunes = 200
)

type Searcher interface {
	Search(ctx context.Context, query string, maxResults int, filters map[string]any) ([]models.SearchHit, error)
}

type Generator interface {
	Generate(ctx context.Context, query string, hits []models.SearchHit, temperature float64) string
	GenerateStream(ctx context.Context, query string, hits []models.SearchHit, temperature float64, onChunk func(string)) string
}

type options struct {
	maxResults  int
	temperature float64
	filters     map[string]any
	stream      func(string)
}

type Option func(*options)

func WithMaxResults(n int) Option {
	return func(o *options) { o.maxResults = n }
}

func WithTemperature(t float64) Option {
	return func(o *options) { o.temperature = t }
}

func WithFilters(filters map[string]any) Option {
	return func(o *options) { o.filters = filters }
}

// WithStream forwards generated text fragments to fn as they arrive.
func WithStream(fn func(string)) Option {
	return func(o *options) { o.stream = fn }
}

type Service struct {
	searcher  Searcher
	generator Generator
	logger    *zap.Logger
	defaults  options
}

// New builds the service. temperature is the default for Answer calls that
// do not pass WithTemperature.
func New(searcher Searcher, generator Generator, temperature float64, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		searcher:  searcher,
		generator: generator,
		logger:    logger,
		defaults: options{
			maxResults:  5,
			temperature: temperature,
		},
	}
}

// Answer never fails. Retrieval errors, invalid options and panics all
// produce ErrorResponse with no sources and zero confidence.
func (s *Service) Answer(ctx context.Context, query string, opts ...Option) (answer models.RAGAnswer) {
	start := time.Now()

	o := s.defaults
	for _, opt := range opts {
		opt(&o)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while answering query", zap.String("query", query), zap.Any("panic", r))
			answer = failed(start)
		}
	}()

	if o.temperature < 0 || o.temperature > 1 {
		s.logger.Error("rag query failed", zap.String("query", query),
			zap.Error(fmt.Errorf("%w: temperature %v outside [0, 1]", models.ErrInvalidArgument, o.temperature)))
		return failed(start)
	}

	hits, err := s.searcher.Search(ctx, query, o.maxResults, o.filters)
	if err != nil {
		s.logger.Error("rag query failed", zap.String("query", query), zap.Error(err))
		return failed(start)
	}

	if len(hits) == 0 {
		return models.RAGAnswer{
			Response:     NoResultsResponse,
			Sources:      []models.Source{},
			ResponseTime: time.Since(start),
		}
	}

	var response string
	if o.stream != nil {
		response = s.generator.GenerateStream(ctx, query, hits, o.temperature, o.stream)
	} else {
		response = s.generator.Generate(ctx, query, hits, o.temperature)
	}

	confidence := hits[0].Score
	for _, h := range hits[1:] {
		if h.Score > confidence {
			confidence = h.Score
		}
	}

	s.logger.Debug("rag query answered",
		zap.String("query", query),
		zap.Int("sources", len(hits)),
		zap.Float64("confidence", confidence),
	)

	return models.RAGAnswer{
		Response:     response,
		Sources:      Sources(hits, false),
		Confidence:   confidence,
		ResponseTime: time.Since(start),
	}
}

// Search returns hits projected as sources, metadata included.
func (s *Service) Search(ctx context.Context, query string, maxResults int, filters map[string]any) ([]models.Source, error) {
	hits, err := s.searcher.Search(ctx, query, maxResults, filters)
	if err != nil {
		return nil, err
	}
	return Sources(hits, true), nil
}

// Sources projects hits for display: a generated title and content cut to
// 200 characters.
func Sources(hits []models.SearchHit, withMetadata bool) []models.Source {
	sources := make([]models.Source, len(hits))
	for i, h := range hits {
		sources[i] = models.Source{
			ID:         h.ID,
			Title:      fmt.Sprintf("Content from %s %s", h.ContentType, h.ContentID),
			Content:    preview(h.Content),
			SourceType: h.ContentType,
			Confidence: h.Score,
		}
		if withMetadata {
			sources[i].Metadata = h.Metadata
		}
	}
	return sources
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= sourcePreviewRunes {
		return s
	}
	return string([]rune(s)[:sourcePreviewRunes]) + "..."
}

func failed(start time.Time) models.RAGAnswer {
	return models.RAGAnswer{
		Response:     ErrorResponse,
		Sources:      []models.Source{},
		ResponseTime: time.Since(start),
	}
}
