package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xhad/booksage/internal/models"
)

// MemoryStore is a brute-force vector store for tests and single-process use.
// Hits with equal scores keep insertion order.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	spec    models.CollectionSpec
	order   []models.ChunkID
	records map[models.ChunkID]models.Record
}

func NewMemory() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

func (s *MemoryStore) EnsureCollection(_ context.Context, spec models.CollectionSpec) error {
	if spec.Name == "" || spec.Dimension < 1 {
		return fmt.Errorf("%w: collection %q with dimension %d", models.ErrInvalidConfiguration, spec.Name, spec.Dimension)
	}
	if _, _, err := opsFor(spec.Metric); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[spec.Name]; ok {
		if c.spec.Dimension != spec.Dimension {
			return fmt.Errorf("%w: collection %q exists with dimension %d", models.ErrInvalidConfiguration, spec.Name, c.spec.Dimension)
		}
		return nil
	}
	s.collections[spec.Name] = &memCollection{
		spec:    spec,
		records: make(map[models.ChunkID]models.Record),
	}
	return nil
}

func (s *MemoryStore) Upsert(_ context.Context, collection string, records []models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("%w: collection %q", models.ErrNotFound, collection)
	}
	for _, r := range records {
		if err := r.Vector.CheckDim(c.spec.Dimension); err != nil {
			return err
		}
	}
	for _, r := range records {
		if _, exists := c.records[r.ID]; !exists {
			c.order = append(c.order, r.ID)
		}
		c.records[r.ID] = r
	}
	return nil
}

func (s *MemoryStore) Search(_ context.Context, collection string, vector models.Vector, filter map[string]any, limit int) ([]models.StoreHit, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be at least 1, got %d", models.ErrInvalidArgument, limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", models.ErrNotFound, collection)
	}
	if err := vector.CheckDim(c.spec.Dimension); err != nil {
		return nil, err
	}

	hits := make([]models.StoreHit, 0, len(c.order))
	for _, id := range c.order {
		r := c.records[id]
		if !matches(r.Payload.Metadata, filter) {
			continue
		}
		hits = append(hits, models.StoreHit{
			ID:      r.ID,
			Score:   score(c.spec.Metric, r.Vector, vector),
			Payload: r.Payload,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *MemoryStore) DeleteStale(_ context.Context, collection string, contentID models.ContentID, fromIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("%w: collection %q", models.ErrNotFound, collection)
	}

	kept := c.order[:0]
	for _, id := range c.order {
		p := c.records[id].Payload
		if p.ContentID == contentID && p.ChunkIndex >= fromIndex {
			delete(c.records, id)
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept
	return nil
}

func (s *MemoryStore) Close() {}

// matches compares through JSON so that 3 and 3.0 or a ContentID and its
// string form are equal, as they are once stored in a JSON payload.
func matches(metadata map[string]any, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok {
			return false
		}
		if !jsonEqual(got, want) {
			return false
		}
	}
	return true
}

func jsonEqual(a, b any) bool {
	na, errA := normalize(a)
	nb, errB := normalize(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(na, nb)
}

func normalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func score(metric models.Metric, a, b models.Vector) float64 {
	switch metric {
	case models.Euclid:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return 1 / (1 + math.Sqrt(sum))
	case models.Dot:
		return dot(a, b)
	}

	na, nb := math.Sqrt(dot(a, a)), math.Sqrt(dot(b, b))
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / (na * nb)
}

func dot(a, b models.Vector) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
