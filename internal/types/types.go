package types

import (
	"context"

	"github.com/xhad/booksage/internal/models"
)

// Core interfaces
type Embedder interface {
	Encode(ctx context.Context, text string) (models.Vector, error)
	Dimension() int
}

type VectorStore interface {
	EnsureCollection(ctx context.Context, spec models.CollectionSpec) error
	Upsert(ctx context.Context, collection string, records []models.Record) error
	Search(ctx context.Context, collection string, vector models.Vector, filter map[string]any, limit int) ([]models.StoreHit, error)
	// DeleteStale removes chunks of contentID whose index is >= fromIndex.
	DeleteStale(ctx context.Context, collection string, contentID models.ContentID, fromIndex int) error
	Close()
}

// ContentReader is the read side of the book hierarchy record store.
type ContentReader interface {
	GetUnit(ctx context.Context, id models.ContentID) (*models.ContentUnit, error)
	GetChildren(ctx context.Context, parentID models.ContentID, level models.ContentType) ([]models.ContentUnit, error)
}

// BookLister enumerates top-level books for batch indexing.
type BookLister interface {
	ListBooks(ctx context.Context) ([]models.ContentUnit, error)
}

// TextProcessor prepares unit text for indexing.
type TextProcessor interface {
	Clean(text string) string
	Split(text string) []string
}

type ContentValidator interface {
	Validate(content string, kind string) models.ValidationResult
}
