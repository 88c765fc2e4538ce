package retriever_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/booksage/internal/fakes"
	"github.com/xhad/booksage/internal/models"
	"github.com/xhad/booksage/pkg/retriever"
	"github.com/xhad/booksage/pkg/store"
)

const collection = "book_content_chunks"

func seed(t *testing.T, emb *fakes.VocabEmbedder, s *store.MemoryStore, id models.ContentID, texts []string, metadata map[string]any) {
	t.Helper()
	ctx := context.Background()
	records := make([]models.Record, len(texts))
	for i, text := range texts {
		v, err := emb.Encode(ctx, text)
		require.NoError(t, err)
		records[i] = models.Record{
			ID:     models.NewChunkID(id, i),
			Vector: v,
			Payload: models.ChunkPayload{
				ContentID:   id,
				ContentType: models.Section,
				ChunkText:   text,
				ChunkIndex:  i,
				Metadata:    metadata,
			},
		}
	}
	require.NoError(t, s.Upsert(ctx, collection, records))
}

func setup(t *testing.T) (*retriever.Retriever, *fakes.VocabEmbedder, *store.MemoryStore) {
	t.Helper()
	emb := &fakes.VocabEmbedder{Dim: 16}
	s := store.NewMemory()
	require.NoError(t, s.EnsureCollection(context.Background(), models.CollectionSpec{Name: collection, Dimension: 16, Metric: models.Cosine}))
	r, err := retriever.New(collection, emb, s)
	require.NoError(t, err)
	return r, emb, s
}

func TestSearch_BoundAndOrder(t *testing.T) {
	r, emb, s := setup(t)
	id := models.NewContentID()
	seed(t, emb, s, id, []string{"w1 w2 w3", "w1 w2", "w1", "w9", "w1 w9"}, map[string]any{"chapter_number": 1})

	hits, err := r.Search(context.Background(), "w1 w2 w3", 3, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "w1 w2 w3", hits[0].Content)
	assert.Equal(t, "w1 w2", hits[1].Content)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
	assert.Equal(t, id, hits[0].ContentID)
	assert.Equal(t, models.Section, hits[0].ContentType)
	assert.Equal(t, models.NewChunkID(id, 0), hits[0].ID)

	hits, err = r.Search(context.Background(), "w1", 50, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 5)
}

func TestSearch_Filters(t *testing.T) {
	r, emb, s := setup(t)
	a, b := models.NewContentID(), models.NewContentID()
	seed(t, emb, s, a, []string{"w1 w2"}, map[string]any{"chapter_number": 1, "section_type": "text"})
	seed(t, emb, s, b, []string{"w1 w2"}, map[string]any{"chapter_number": 2, "section_type": "text"})

	hits, err := r.Search(context.Background(), "w1", 10, map[string]any{"chapter_number": 2})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, b, hits[0].ContentID)

	hits, err = r.Search(context.Background(), "w1", 10, map[string]any{"chapter_number": 2, "section_type": "code"})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = r.Search(context.Background(), "w1", 10, map[string]any{})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearch_InvalidMaxResults(t *testing.T) {
	r, emb, _ := setup(t)
	for _, n := range []int{0, -3} {
		_, err := r.Search(context.Background(), "w1", n, nil)
		assert.ErrorIs(t, err, models.ErrInvalidArgument)
	}
	assert.Equal(t, 0, emb.Calls(), "query is not embedded for invalid input")
}

func TestSearch_EmbedderFailure(t *testing.T) {
	r, emb, _ := setup(t)
	emb.Err = errors.New("timeout")

	_, err := r.Search(context.Background(), "w1", 5, nil)
	assert.ErrorIs(t, err, models.ErrDependencyFailure)
}

func TestSearch_QueryCache(t *testing.T) {
	emb := &fakes.VocabEmbedder{Dim: 16}
	s := store.NewMemory()
	require.NoError(t, s.EnsureCollection(context.Background(), models.CollectionSpec{Name: collection, Dimension: 16, Metric: models.Cosine}))
	r, err := retriever.New(collection, emb, s, retriever.WithQueryCache(time.Minute))
	require.NoError(t, err)

	id := models.NewContentID()
	seed(t, emb, s, id, []string{"w1 w2", "w3"}, nil)
	seeded := emb.Calls()

	for range 3 {
		hits, err := r.Search(context.Background(), "w1 w2", 1, nil)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "w1 w2", hits[0].Content)
	}
	assert.Equal(t, seeded+1, emb.Calls())

	_, err = r.Search(context.Background(), "w3", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, seeded+2, emb.Calls())
}

func TestNew_InvalidConfiguration(t *testing.T) {
	_, err := retriever.New("", &fakes.VocabEmbedder{Dim: 2}, store.NewMemory())
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}
