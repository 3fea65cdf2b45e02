package audio

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// CacheInvalidator drops cached data for a path.
type CacheInvalidator interface {
	InvalidateCache(path string)
}

// Watcher invalidates a player's cache when a sound file changes on disk.
type Watcher struct {
	watcher *fsnotify.Watcher
	target  CacheInvalidator
	logger  *slog.Logger

	mu      sync.Mutex
	paths   map[string]bool
	running bool
	done    chan struct{}
	stopped chan struct{}
}

// NewWatcher creates a watcher that notifies target.
func NewWatcher(target CacheInvalidator, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher: w,
		target:  target,
		logger:  logger,
		paths:   make(map[string]bool),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Watch adds path to the watch list.
// The containing directory is watched so that editors replacing the file
// are noticed.
func (w *Watcher) Watch(path string) error {
	if path == "" {
		return nil
	}
	path = filepath.Clean(ExpandPath(path))

	if err := w.watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	w.mu.Lock()
	w.paths[path] = true
	w.mu.Unlock()
	return nil
}

// Start begins processing file events.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.loop()
	w.logger.Debug("sound watcher started")
}

func (w *Watcher) loop() {
	defer close(w.stopped)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("sound watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	w.mu.Lock()
	watched := w.paths[path]
	w.mu.Unlock()
	if !watched {
		return
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.logger.Debug("sound file changed, invalidating cache", "path", path)
		w.target.InvalidateCache(path)
	}
}

// Stop stops the watcher and releases its resources.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	close(w.done)
	w.mu.Unlock()

	<-w.stopped
	return w.watcher.Close()
}
