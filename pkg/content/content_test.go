package content_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/booksage/internal/models"
	"github.com/xhad/booksage/pkg/content"
)

func TestMemory_Hierarchy(t *testing.T) {
	ctx := context.Background()
	m := content.NewMemory()

	book := models.ContentUnit{ID: models.NewContentID(), Type: models.Book, Title: "Humanoid Robotics"}
	mod := models.ContentUnit{ID: models.NewContentID(), Type: models.Module, ParentID: book.ID, Title: "Foundations", Number: 1}
	ch2 := models.ContentUnit{ID: models.NewContentID(), Type: models.Chapter, ParentID: mod.ID, Title: "Dynamics", Number: 2}
	ch1 := models.ContentUnit{ID: models.NewContentID(), Type: models.Chapter, ParentID: mod.ID, Title: "Kinematics", Number: 1}

	for _, u := range []models.ContentUnit{book, mod, ch2, ch1} {
		require.NoError(t, m.Add(u))
	}

	got, err := m.GetUnit(ctx, mod.ID)
	require.NoError(t, err)
	assert.Equal(t, "Foundations", got.Title)

	chapters, err := m.GetChildren(ctx, mod.ID, models.Chapter)
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	assert.Equal(t, "Kinematics", chapters[0].Title)
	assert.Equal(t, "Dynamics", chapters[1].Title)

	sections, err := m.GetChildren(ctx, ch1.ID, models.Section)
	require.NoError(t, err)
	assert.Empty(t, sections)

	books, err := m.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, book.ID, books[0].ID)

	_, err = m.GetUnit(ctx, models.NewContentID())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemory_AddRejectsBadUnits(t *testing.T) {
	m := content.NewMemory()
	book := models.ContentUnit{ID: models.NewContentID(), Type: models.Book, Title: "B"}
	require.NoError(t, m.Add(book))

	err := m.Add(models.ContentUnit{ID: models.NewContentID(), Type: models.Chapter, ParentID: models.NewContentID()})
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = m.Add(models.ContentUnit{ID: models.NewContentID(), Type: models.Section, ParentID: book.ID})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	err = m.Add(models.ContentUnit{Type: models.Book})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	err = m.Add(models.ContentUnit{ID: models.NewContentID(), Type: "Appendix"})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

const bookYAML = `
title: Humanoid Robotics
modules:
  - title: Foundations
    chapters:
      - title: Kinematics
        content: Forward kinematics maps joint angles to poses.
        sections:
          - title: Denavit-Hartenberg
            type: diagram
            content: Four parameters describe each link.
          - title: Exercises
            content: Derive the DH table for a planar arm.
`

func TestLoadFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "book.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bookYAML), 0o644))

	m, bookID, err := content.LoadFile(path)
	require.NoError(t, err)

	book, err := m.GetUnit(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, models.Book, book.Type)
	assert.Equal(t, "Humanoid Robotics", book.Title)

	modules, err := m.GetChildren(ctx, bookID, models.Module)
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, 1, modules[0].Number)

	chapters, err := m.GetChildren(ctx, modules[0].ID, models.Chapter)
	require.NoError(t, err)
	require.Len(t, chapters, 1)
	assert.Equal(t, "Forward kinematics maps joint angles to poses.", chapters[0].Text)

	sections, err := m.GetChildren(ctx, chapters[0].ID, models.Section)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, "diagram", sections[0].Kind)
	assert.Equal(t, "text", sections[1].Kind)
	assert.Equal(t, 2, sections[1].Number)

	// Derived ids are stable across loads.
	_, again, err := content.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, bookID, again)
}

func TestLoadFile_Errors(t *testing.T) {
	_, _, err := content.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("id: not-a-uuid\ntitle: x\n"), 0o644))
	_, _, err = content.LoadFile(path)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}
