package store_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/booksage/internal/models"
	"github.com/xhad/booksage/internal/testdb"
	"github.com/xhad/booksage/pkg/store"
)

func TestPGVectorStore(t *testing.T) {
	connString := testdb.URL(t)

	ctx := context.Background()
	pool, err := store.NewPool(ctx, store.PoolConfig{ConnString: connString}, nil)
	require.NoError(t, err)
	defer pool.Close()

	const table = "test_book_chunks"
	_, err = pool.Exec(ctx, "DROP TABLE IF EXISTS "+table)
	require.NoError(t, err)

	s := store.NewPGVector(pool, store.PGVectorConfig{}, nil)
	defer s.Close()
	require.NoError(t, s.EnsureCollection(ctx, models.CollectionSpec{Name: table, Dimension: 3, Metric: models.Cosine}))
	require.NoError(t, s.EnsureCollection(ctx, models.CollectionSpec{Name: table, Dimension: 3, Metric: models.Cosine}))

	id := models.NewContentID()
	records := []models.Record{
		record(id, 0, models.Vector{1, 0, 0}, map[string]any{"chapter_number": 1}),
		record(id, 1, models.Vector{0, 1, 0}, map[string]any{"chapter_number": 1}),
		record(id, 2, models.Vector{0, 0, 1}, map[string]any{"chapter_number": 2}),
	}
	require.NoError(t, s.Upsert(ctx, table, records))

	hits, err := s.Search(ctx, table, models.Vector{0, 1, 0}, map[string]any{"chapter_number": 1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, models.NewChunkID(id, 1), hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, id, hits[0].Payload.ContentID)

	require.NoError(t, s.DeleteStale(ctx, table, id, 1))
	hits, err = s.Search(ctx, table, models.Vector{0, 1, 0}, nil, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, models.NewChunkID(id, 0), hits[0].ID)

	_, err = s.Search(ctx, "unknown_table", models.Vector{0, 1, 0}, nil, 5)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// TestPGVectorStore_FilteredTopK checks that a collection created empty with
// the default index settings still returns the exact filtered top k once it
// holds many rows.
func TestPGVectorStore_FilteredTopK(t *testing.T) {
	connString := testdb.URL(t)

	ctx := context.Background()
	pool, err := store.NewPool(ctx, store.PoolConfig{ConnString: connString}, nil)
	require.NoError(t, err)
	defer pool.Close()

	const (
		table = "test_book_chunks_topk"
		dim   = 8
		rows  = 300
		k     = 5
	)
	_, err = pool.Exec(ctx, "DROP TABLE IF EXISTS "+table)
	require.NoError(t, err)

	pg := store.NewPGVector(pool, store.PGVectorConfig{}, nil)
	spec := models.CollectionSpec{Name: table, Dimension: dim, Metric: models.Cosine}
	require.NoError(t, pg.EnsureCollection(ctx, spec))

	mem := store.NewMemory()
	require.NoError(t, mem.EnsureCollection(ctx, spec))

	id := models.NewContentID()
	records := make([]models.Record, rows)
	for i := range records {
		v := make(models.Vector, dim)
		for j := range v {
			v[j] = float32(math.Sin(float64(i*dim + j + 1)))
		}
		records[i] = record(id, i, v, map[string]any{"chapter_number": i%10 + 1})
	}
	require.NoError(t, pg.Upsert(ctx, table, records))
	require.NoError(t, mem.Upsert(ctx, table, records))

	query := models.Vector{0.3, -0.1, 0.8, 0.2, -0.5, 0.1, 0.4, -0.2}
	filter := map[string]any{"chapter_number": 7}

	want, err := mem.Search(ctx, table, query, filter, k)
	require.NoError(t, err)
	require.Len(t, want, k)

	got, err := pg.Search(ctx, table, query, filter, k)
	require.NoError(t, err)
	require.Len(t, got, k)
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID, "rank %d", i)
		assert.InDelta(t, want[i].Score, got[i].Score, 1e-4)
	}

	unfiltered, err := pg.Search(ctx, table, query, nil, k)
	require.NoError(t, err)
	assert.Len(t, unfiltered, k)
}

func TestPGVectorStore_RejectsBadCollectionName(t *testing.T) {
	s := store.NewPGVector(nil, store.PGVectorConfig{}, nil)
	err := s.EnsureCollection(context.Background(), models.CollectionSpec{Name: "chunks; DROP TABLE x", Dimension: 3})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}
