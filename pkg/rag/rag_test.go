package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/booksage/internal/models"
	"github.com/xhad/booksage/pkg/rag"
)

type fakeSearcher struct {
	hits  []models.SearchHit
	err   error
	panic bool

	maxResults int
	filters    map[string]any
}

func (f *fakeSearcher) Search(_ context.Context, _ string, maxResults int, filters map[string]any) ([]models.SearchHit, error) {
	if f.panic {
		panic("index corrupted")
	}
	f.maxResults = maxResults
	f.filters = filters
	return f.hits, f.err
}

type fakeGenerator struct {
	calls       int
	temperature float64
	fragments   []string
}

func (f *fakeGenerator) Generate(_ context.Context, query string, hits []models.SearchHit, temperature float64) string {
	f.calls++
	f.temperature = temperature
	return "answer to " + query
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, query string, hits []models.SearchHit, temperature float64, onChunk func(string)) string {
	for _, frag := range f.fragments {
		onChunk(frag)
	}
	return f.Generate(ctx, query, hits, temperature)
}

func hits(scores ...float64) []models.SearchHit {
	id := models.NewContentID()
	out := make([]models.SearchHit, len(scores))
	for i, s := range scores {
		out[i] = models.SearchHit{
			ID:          models.NewChunkID(id, i),
			Content:     "passage",
			ContentID:   id,
			ContentType: models.Section,
			Metadata:    map[string]any{"chapter_number": 1},
			Score:       s,
		}
	}
	return out
}

func TestAnswer(t *testing.T) {
	searcher := &fakeSearcher{hits: hits(0.81, 0.74, 0.6)}
	gen := &fakeGenerator{}
	svc := rag.New(searcher, gen, 0.7, nil)

	answer := svc.Answer(context.Background(), "What is a ZMP?")

	assert.Equal(t, "answer to What is a ZMP?", answer.Response)
	assert.Equal(t, 0.81, answer.Confidence)
	require.Len(t, answer.Sources, 3)
	assert.Equal(t, 0.74, answer.Sources[1].Confidence)
	assert.Equal(t, models.Section, answer.Sources[0].SourceType)
	assert.Nil(t, answer.Sources[0].Metadata)
	assert.Equal(t, 5, searcher.maxResults)
	assert.InDelta(t, 0.7, gen.temperature, 1e-9)
	assert.GreaterOrEqual(t, answer.ResponseTime, time.Duration(0))
}

func TestAnswer_ConfidenceIsMaxScore(t *testing.T) {
	svc := rag.New(&fakeSearcher{hits: hits(0.4, 0.9, 0.7)}, &fakeGenerator{}, 0.7, nil)
	assert.Equal(t, 0.9, svc.Answer(context.Background(), "q").Confidence)
}

func TestAnswer_Options(t *testing.T) {
	searcher := &fakeSearcher{hits: hits(0.5)}
	gen := &fakeGenerator{fragments: []string{"a", "b"}}
	svc := rag.New(searcher, gen, 0.7, nil)

	var streamed []string
	filters := map[string]any{"book_id": "x"}
	svc.Answer(context.Background(), "q",
		rag.WithMaxResults(2),
		rag.WithTemperature(0.2),
		rag.WithFilters(filters),
		rag.WithStream(func(s string) { streamed = append(streamed, s) }),
	)

	assert.Equal(t, 2, searcher.maxResults)
	assert.Equal(t, filters, searcher.filters)
	assert.InDelta(t, 0.2, gen.temperature, 1e-9)
	assert.Equal(t, []string{"a", "b"}, streamed)
}

func TestAnswer_NoHitsSkipsGeneration(t *testing.T) {
	gen := &fakeGenerator{}
	svc := rag.New(&fakeSearcher{}, gen, 0.7, nil)

	answer := svc.Answer(context.Background(), "unrelated question")

	assert.Equal(t, rag.NoResultsResponse, answer.Response)
	assert.Empty(t, answer.Sources)
	assert.NotNil(t, answer.Sources)
	assert.Equal(t, 0.0, answer.Confidence)
	assert.Equal(t, 0, gen.calls)
}

func TestAnswer_Failures(t *testing.T) {
	tests := []struct {
		name     string
		searcher *fakeSearcher
		opts     []rag.Option
	}{
		{"search error", &fakeSearcher{err: models.DependencyError("search", errors.New("down"))}, nil},
		{"panic", &fakeSearcher{panic: true}, nil},
		{"temperature above one", &fakeSearcher{hits: hits(0.9)}, []rag.Option{rag.WithTemperature(1.5)}},
		{"negative temperature", &fakeSearcher{hits: hits(0.9)}, []rag.Option{rag.WithTemperature(-0.1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{}
			svc := rag.New(tt.searcher, gen, 0.7, nil)

			answer := svc.Answer(context.Background(), "q", tt.opts...)

			assert.Equal(t, rag.ErrorResponse, answer.Response)
			assert.Empty(t, answer.Sources)
			assert.Equal(t, 0.0, answer.Confidence)
			assert.Equal(t, 0, gen.calls)
		})
	}
}

func TestSources_Truncation(t *testing.T) {
	id := models.NewContentID()
	long := strings.Repeat("é", 250)
	exact := strings.Repeat("a", 200)

	sources := rag.Sources([]models.SearchHit{
		{ID: models.NewChunkID(id, 0), Content: long, ContentID: id, ContentType: models.Chapter, Score: 0.8},
		{ID: models.NewChunkID(id, 1), Content: exact, ContentID: id, ContentType: models.Chapter, Score: 0.7},
	}, false)

	require.Len(t, sources, 2)
	assert.Equal(t, strings.Repeat("é", 200)+"...", sources[0].Content)
	assert.Equal(t, exact, sources[1].Content)
	assert.Equal(t, "Content from Chapter "+id.String(), sources[0].Title)
}

func TestSearch(t *testing.T) {
	svc := rag.New(&fakeSearcher{hits: hits(0.9, 0.3)}, &fakeGenerator{}, 0.7, nil)

	sources, err := svc.Search(context.Background(), "q", 10, nil)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, map[string]any{"chapter_number": 1}, sources[0].Metadata)
	assert.Equal(t, 0.3, sources[1].Confidence)

	failing := rag.New(&fakeSearcher{err: models.ErrInvalidArgument}, &fakeGenerator{}, 0.7, nil)
	_, err = failing.Search(context.Background(), "q", 0, nil)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}
