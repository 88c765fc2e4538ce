// Package retriever finds the chunks most similar to a query.
package retriever

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/xhad/booksage/internal/models"
	"github.com/xhad/booksage/internal/types"
)

type Retriever struct {
	collection string
	embedder   types.Embedder
	store      types.VectorStore
	queries    *cache.Cache
}

type Option func(*Retriever)

// WithQueryCache keeps query embeddings for ttl. Repeated questions then skip
// the embedder. A non-positive ttl leaves caching off.
func WithQueryCache(ttl time.Duration) Option {
	return func(r *Retriever) {
		if ttl > 0 {
			r.queries = cache.New(ttl, 2*ttl)
		}
	}
}

func New(collection string, embedder types.Embedder, store types.VectorStore, opts ...Option) (*Retriever, error) {
	if collection == "" || embedder == nil || store == nil {
		return nil, fmt.Errorf("%w: retriever needs a collection, embedder and store", models.ErrInvalidConfiguration)
	}
	r := &Retriever{collection: collection, embedder: embedder, store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Search returns at most maxResults hits, best first. Every filter pair must
// equal the chunk's metadata value; an empty filter matches everything.
func (r *Retriever) Search(ctx context.Context, query string, maxResults int, filters map[string]any) ([]models.SearchHit, error) {
	if maxResults < 1 {
		return nil, fmt.Errorf("%w: max results must be at least 1, got %d", models.ErrInvalidArgument, maxResults)
	}

	vector, err := r.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	found, err := r.store.Search(ctx, r.collection, vector, filters, maxResults)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", r.collection, err)
	}

	hits := make([]models.SearchHit, 0, len(found))
	for _, h := range found {
		hits = append(hits, models.SearchHit{
			ID:          h.ID,
			Content:     h.Payload.ChunkText,
			ContentID:   h.Payload.ContentID,
			ContentType: h.Payload.ContentType,
			Metadata:    h.Payload.Metadata,
			Score:       h.Score,
		})
	}
	return hits, nil
}

func (r *Retriever) embed(ctx context.Context, query string) (models.Vector, error) {
	if r.queries != nil {
		if v, ok := r.queries.Get(query); ok {
			return v.(models.Vector), nil
		}
	}

	vector, err := r.embedder.Encode(ctx, query)
	if err != nil {
		return nil, err
	}
	if r.queries != nil {
		r.queries.SetDefault(query, vector)
	}
	return vector, nil
}
