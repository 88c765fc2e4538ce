package store_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/booksage/internal/models"
	"github.com/xhad/booksage/pkg/store"
)

type qdrantCall struct {
	Method string
	Path   string
	Body   map[string]any
}

type fakeQdrant struct {
	mu        sync.Mutex
	calls     []qdrantCall
	exists    bool
	size      int
	searchRes string
}

func (f *fakeQdrant) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil && r.ContentLength != 0 {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		f.mu.Lock()
		f.calls = append(f.calls, qdrantCall{Method: r.Method, Path: r.URL.Path, Body: body})
		f.mu.Unlock()

		assert.Equal(t, "secret", r.Header.Get("api-key"))

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/"+collection:
			if !f.exists {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"status":{"error":"Not found"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":` + jsonInt(f.size) + `,"distance":"Cosine"}}}}}`))
		case r.URL.Path == "/collections/"+collection+"/points/search":
			_, _ = w.Write([]byte(f.searchRes))
		case r.URL.Path == "/collections/broken/points":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":{"error":"boom"}}`))
		default:
			_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
		}
	})
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func newQdrant(t *testing.T, fake *fakeQdrant) *store.QdrantStore {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	return store.NewQdrant(store.QdrantConfig{URL: srv.URL + "/", APIKey: "secret"}, nil)
}

func TestQdrant_EnsureCollectionCreates(t *testing.T) {
	fake := &fakeQdrant{}
	s := newQdrant(t, fake)

	err := s.EnsureCollection(context.Background(), models.CollectionSpec{Name: collection, Dimension: 384, Metric: models.Cosine})
	require.NoError(t, err)

	require.Len(t, fake.calls, 3)
	create := fake.calls[1]
	assert.Equal(t, http.MethodPut, create.Method)
	assert.Equal(t, "/collections/"+collection, create.Path)
	vectors := create.Body["vectors"].(map[string]any)
	assert.Equal(t, 384.0, vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
	assert.Equal(t, "/collections/"+collection+"/index", fake.calls[2].Path)
}

func TestQdrant_EnsureCollectionExisting(t *testing.T) {
	fake := &fakeQdrant{exists: true, size: 384}
	s := newQdrant(t, fake)

	require.NoError(t, s.EnsureCollection(context.Background(), models.CollectionSpec{Name: collection, Dimension: 384}))
	assert.Len(t, fake.calls, 1)

	err := s.EnsureCollection(context.Background(), models.CollectionSpec{Name: collection, Dimension: 768})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}

func TestQdrant_Upsert(t *testing.T) {
	fake := &fakeQdrant{}
	s := newQdrant(t, fake)
	id := models.NewContentID()

	err := s.Upsert(context.Background(), collection, []models.Record{
		record(id, 0, models.Vector{1, 0}, map[string]any{"chapter_number": 2}),
	})
	require.NoError(t, err)

	require.Len(t, fake.calls, 1)
	points := fake.calls[0].Body["points"].([]any)
	require.Len(t, points, 1)
	point := points[0].(map[string]any)
	assert.Equal(t, store.PointID(models.NewChunkID(id, 0)), point["id"])
	payload := point["payload"].(map[string]any)
	assert.Equal(t, string(models.NewChunkID(id, 0)), payload["chunk_id"])
	assert.Equal(t, id.String(), payload["content_id"])
	assert.Equal(t, 0.0, payload["chunk_index"])

	err = s.Upsert(context.Background(), "broken", []models.Record{record(id, 0, models.Vector{1, 0}, nil)})
	assert.ErrorIs(t, err, models.ErrDependencyFailure)
}

func TestQdrant_Search(t *testing.T) {
	id := models.NewContentID()
	fake := &fakeQdrant{searchRes: `{"result":[
		{"id":"a","score":0.92,"payload":{"chunk_id":"` + id.String() + `_1","content_id":"` + id.String() + `","content_type":"Chapter","chunk_text":"gait cycle","chunk_index":1,"metadata":{"chapter_number":3}}},
		{"id":"b","score":0.51,"payload":{"chunk_id":"` + id.String() + `_0","content_id":"` + id.String() + `","content_type":"Chapter","chunk_text":"intro","chunk_index":0,"metadata":{}}}
	]}`}
	s := newQdrant(t, fake)

	hits, err := s.Search(context.Background(), collection, models.Vector{1, 0}, map[string]any{"chapter_number": 3}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, models.NewChunkID(id, 1), hits[0].ID)
	assert.Equal(t, 0.92, hits[0].Score)
	assert.Equal(t, models.Chapter, hits[0].Payload.ContentType)
	assert.Equal(t, id, hits[0].Payload.ContentID)
	assert.Equal(t, "gait cycle", hits[0].Payload.ChunkText)

	req := fake.calls[0].Body
	assert.Equal(t, 2.0, req["limit"])
	assert.Equal(t, true, req["with_payload"])
	must := req["filter"].(map[string]any)["must"].([]any)
	require.Len(t, must, 1)
	assert.Equal(t, "metadata.chapter_number", must[0].(map[string]any)["key"])

	_, err = s.Search(context.Background(), collection, models.Vector{1, 0}, nil, 0)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestQdrant_DeleteStale(t *testing.T) {
	fake := &fakeQdrant{}
	s := newQdrant(t, fake)
	id := models.NewContentID()

	require.NoError(t, s.DeleteStale(context.Background(), collection, id, 3))

	require.Len(t, fake.calls, 1)
	assert.Equal(t, "/collections/"+collection+"/points/delete", fake.calls[0].Path)
	must := fake.calls[0].Body["filter"].(map[string]any)["must"].([]any)
	require.Len(t, must, 2)
	assert.Equal(t, map[string]any{"value": id.String()}, must[0].(map[string]any)["match"])
	assert.Equal(t, map[string]any{"gte": 3.0}, must[1].(map[string]any)["range"])
}

func TestPointIDIsStable(t *testing.T) {
	id := models.NewChunkID(models.NewContentID(), 4)
	assert.Equal(t, store.PointID(id), store.PointID(id))
	assert.NotEqual(t, store.PointID(id), store.PointID(id+"x"))
}
