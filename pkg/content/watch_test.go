package content_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/booksage/internal/models"
	"github.com/xhad/booksage/pkg/content"
)

const watchedBook = `
title: Humanoid Robotics
modules:
  - title: Foundations
    chapters:
      - title: Kinematics
        content: Joint angles map to end effector poses.
`

func TestMemory_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watchedBook), 0o644))

	m, bookID, err := content.LoadFile(path)
	require.NoError(t, err)

	updated := `
title: Humanoid Robotics
modules:
  - title: Control
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	reloadedID, err := m.Reload(path)
	require.NoError(t, err)
	assert.Equal(t, bookID, reloadedID)

	modules, err := m.GetChildren(context.Background(), bookID, models.Module)
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, "Control", modules[0].Title)

	require.NoError(t, os.WriteFile(path, []byte("title: [unterminated"), 0o644))
	_, err = m.Reload(path)
	require.Error(t, err)

	// A failed reload keeps the previous book.
	modules, err = m.GetChildren(context.Background(), bookID, models.Module)
	require.NoError(t, err)
	assert.Len(t, modules, 1)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watchedBook), 0o644))

	m, bookID, err := content.LoadFile(path)
	require.NoError(t, err)

	w, err := content.NewWatcher(path, m, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan models.ContentID, 1)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(id models.ContentID) {
			select {
			case changed <- id:
			default:
			}
		})
	}()

	updated := watchedBook + `      - title: Dynamics
        content: Forces produce accelerations.
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case id := <-changed:
		assert.Equal(t, bookID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}

	modules, err := m.GetChildren(ctx, bookID, models.Module)
	require.NoError(t, err)
	require.Len(t, modules, 1)
	chapters, err := m.GetChildren(ctx, modules[0].ID, models.Chapter)
	require.NoError(t, err)
	assert.Len(t, chapters, 2)

	cancel()
	require.NoError(t, <-done)
}
