package content

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/xhad/booksage/internal/models"
)

const watchDebounce = 200 * time.Millisecond

// Watcher reloads a book file into a Memory hierarchy when it changes.
type Watcher struct {
	path    string
	book    *Memory
	watcher *fsnotify.Watcher
	logger  *zap.Logger
}

// NewWatcher starts watching path. The parent directory is watched so that
// editors which replace the file on save are still noticed.
func NewWatcher(path string, book *Memory, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{path: abs, book: book, watcher: w, logger: logger}, nil
}

// Run blocks until ctx is done. After a burst of writes settles the file is
// reloaded and onChange receives the book id. A file that fails to parse is
// logged and the previous book is kept.
func (w *Watcher) Run(ctx context.Context, onChange func(models.ContentID)) error {
	defer w.watcher.Close()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = time.After(watchDebounce)

		case <-pending:
			pending = nil
			bookID, err := w.book.Reload(w.path)
			if err != nil {
				w.logger.Warn("book file reload failed", zap.String("file", w.path), zap.Error(err))
				continue
			}
			w.logger.Info("book file reloaded", zap.String("file", w.path), zap.String("book_id", bookID.String()))
			onChange(bookID)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("book file watcher error", zap.Error(err))
		}
	}
}
