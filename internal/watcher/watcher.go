package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher turns filesystem notifications under a vault into debounced
// FileEvents
type Watcher struct {
	rootPath  string
	filter    Filter
	fs        *fsnotify.Watcher
	debouncer *Debouncer
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// New creates a watcher for rootPath
func New(rootPath string, debounce time.Duration, filter Filter) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		rootPath:  rootPath,
		filter:    filter,
		fs:        fsWatcher,
		debouncer: NewDebouncer(debounce),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start watches the vault and every subdirectory not filtered out
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.rootPath); err != nil {
		return err
	}

	go w.processEvents(ctx)

	slog.Info("watcher started", "path", w.rootPath, "ignore_patterns", len(w.filter.Ignore))
	return nil
}

// Events returns the channel of debounced file events
func (w *Watcher) Events() <-chan FileEvent {
	return w.debouncer.Events()
}

// Flush emits every pending event immediately
func (w *Watcher) Flush() {
	w.debouncer.Flush()
}

// Stop stops watching and closes the event channel
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.fs.Close()
		w.debouncer.Stop()
	})
	return err
}

func (w *Watcher) rel(path string) (string, bool) {
	relPath, err := filepath.Rel(w.rootPath, path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(relPath), true
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("error walking path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		relPath, ok := w.rel(path)
		if !ok || w.filter.SkipDir(relPath) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			slog.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	relPath, ok := w.rel(event.Name)
	if !ok {
		return
	}

	info, statErr := os.Stat(event.Name)
	isDir := statErr == nil && info.IsDir()

	if isDir {
		if event.Has(fsnotify.Create) && !w.filter.SkipDir(relPath) {
			if err := w.addRecursive(event.Name); err != nil {
				slog.Warn("failed to add new directory", "path", event.Name, "error", err)
			}
		}
		return
	}
	if w.filter.Skip(relPath) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		w.debouncer.Add(relPath, EventCreate)
	case event.Has(fsnotify.Write):
		w.debouncer.Add(relPath, EventModify)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// the new name of a rename arrives as its own create
		w.debouncer.Add(relPath, EventDelete)
	}
}
