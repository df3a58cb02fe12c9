// Package watcher reruns work when a file changes on disk.
package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches a file for changes
type Watcher struct {
	path     string
	onChange func()
	debounce time.Duration
	logger   *zap.Logger
}

// New creates a new file watcher
func New(path string, onChange func(), logger *zap.Logger) *Watcher {
	return &Watcher{
		path:     path,
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		logger:   logger.Named("watcher"),
	}
}

// WithDebounce sets the debounce duration
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Watch calls onChange once per burst of writes to the file.
// It blocks until the context is cancelled or the watcher fails.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// The directory is watched so editors that replace the file are still seen
	dir := filepath.Dir(w.path)
	filename := filepath.Base(w.path)

	if err := watcher.Add(dir); err != nil {
		return err
	}

	w.logger.Info("Watching file for changes", zap.String("path", w.path))

	var debounceTimer *time.Timer
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		w.logger.Info("File changed", zap.String("path", w.path))
		w.onChange()
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, fire)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", zap.Error(err))

		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return ctx.Err()
		}
	}
}
