// Package content reads the book hierarchy (book, module, chapter, section)
// that the indexer walks.
package content

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xhad/booksage/internal/models"
)

// Memory is an in-process hierarchy. Children are returned by Number, then
// insertion order.
type Memory struct {
	mu       sync.RWMutex
	units    map[models.ContentID]models.ContentUnit
	children map[models.ContentID][]models.ContentID
	books    []models.ContentID
}

func NewMemory() *Memory {
	return &Memory{
		units:    make(map[models.ContentID]models.ContentUnit),
		children: make(map[models.ContentID][]models.ContentID),
	}
}

// Add inserts or replaces a unit. Non-book units must name a known parent.
func (m *Memory) Add(unit models.ContentUnit) error {
	if !unit.Type.Valid() {
		return fmt.Errorf("%w: content type %q", models.ErrInvalidArgument, unit.Type)
	}
	if unit.ID.IsZero() {
		return fmt.Errorf("%w: %s %q has no id", models.ErrInvalidArgument, unit.Type, unit.Title)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.units[unit.ID]
	if unit.Type == models.Book {
		if !exists {
			m.books = append(m.books, unit.ID)
		}
	} else {
		parent, ok := m.units[unit.ParentID]
		if !ok {
			return fmt.Errorf("%w: parent %s of %s %q", models.ErrNotFound, unit.ParentID, unit.Type, unit.Title)
		}
		if parent.Type.Child() != unit.Type {
			return fmt.Errorf("%w: %s cannot be a child of %s", models.ErrInvalidArgument, unit.Type, parent.Type)
		}
		if !exists {
			m.children[unit.ParentID] = append(m.children[unit.ParentID], unit.ID)
		}
	}
	m.units[unit.ID] = unit
	return nil
}

func (m *Memory) GetUnit(_ context.Context, id models.ContentID) (*models.ContentUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	unit, ok := m.units[id]
	if !ok {
		return nil, fmt.Errorf("%w: content %s", models.ErrNotFound, id)
	}
	return &unit, nil
}

func (m *Memory) GetChildren(_ context.Context, parentID models.ContentID, level models.ContentType) ([]models.ContentUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.ContentUnit
	for _, id := range m.children[parentID] {
		if u := m.units[id]; u.Type == level {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Number < out[j].Number
	})
	return out, nil
}

func (m *Memory) ListBooks(_ context.Context) ([]models.ContentUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ContentUnit, 0, len(m.books))
	for _, id := range m.books {
		out = append(out, m.units[id])
	}
	return out, nil
}
