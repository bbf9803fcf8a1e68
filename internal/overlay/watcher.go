package overlay

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the overlay when the settings file changes on disk.
type Watcher struct {
	o       *Overlay
	path    string
	watcher *fsnotify.Watcher
}

// NewWatcher watches the directory holding path. The directory must exist.
func NewWatcher(o *Overlay, path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}
	return &Watcher{o: o, path: path, watcher: w}, nil
}

// Run reloads on every write or create of the settings file until ctx is
// done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name == w.path && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				if err := w.o.Reload(ctx); err != nil {
					slog.Warn("overlay: failed to reload settings", "err", err)
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("overlay: watcher error", "err", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
