// Package watch notifies about changes to attached PDF files on disk.
package watch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"sophosia/internal/logging"
)

// ChangedFunc is called when a watched file is written or replaced.
type ChangedFunc func(documentID, path string)

// Watcher watches the attached files of open documents. fsnotify watches
// directories, so events are filtered down to the registered files.
type Watcher struct {
	watcher  *fsnotify.Watcher
	onChange ChangedFunc
	log      *slog.Logger

	mu       sync.RWMutex
	watching map[string]string // absolute path -> document id
	done     chan struct{}
}

// New starts a watcher calling onChange for every change.
func New(onChange ChangedFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		watcher:  fw,
		onChange: onChange,
		log:      logging.WithComponent("watch"),
		watching: make(map[string]string),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch starts watching the file attached to a document.
func (w *Watcher) Watch(documentID, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.watching[abs] = documentID
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
		w.mu.Lock()
		delete(w.watching, abs)
		w.mu.Unlock()
		return fmt.Errorf("watch %s: %w", abs, err)
	}
	return nil
}

// Unwatch stops watching every file of a document.
func (w *Watcher) Unwatch(documentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dirs := make(map[string]bool)
	for path, id := range w.watching {
		if id == documentID {
			delete(w.watching, path)
			dirs[filepath.Dir(path)] = true
		}
	}
	for path := range w.watching {
		delete(dirs, filepath.Dir(path))
	}
	for dir := range dirs {
		_ = w.watcher.Remove(dir)
	}
}

// Watched reports whether the path is being watched.
func (w *Watcher) Watched(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.watching[abs]
	return ok
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			abs, _ := filepath.Abs(event.Name)
			w.mu.RLock()
			documentID, watched := w.watching[abs]
			w.mu.RUnlock()
			if watched && w.onChange != nil {
				w.onChange(documentID, abs)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "err", err)
		}
	}
}
