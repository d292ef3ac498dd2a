package reload

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

type fileState struct {
	modTime time.Time
	size    int64
}

// Watcher tracks the configuration file and detects modifications by
// polling modification time and size.
type Watcher struct {
	mu    sync.Mutex
	path  string
	state fileState
}

// NewWatcher builds a watcher for the given configuration file.
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher := &Watcher{path: abs}
	watcher.Reset()
	return watcher, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	if w == nil {
		return ""
	}
	return w.path
}

// Reset takes a fresh snapshot of the file, typically after a reload.
func (w *Watcher) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	info, err := os.Stat(w.path)
	if err != nil || info.IsDir() {
		w.state = fileState{}
		return
	}
	w.state = fileState{modTime: info.ModTime(), size: info.Size()}
}

// Changed reports whether the file differs from the last snapshot. A file
// that disappeared counts as changed.
func (w *Watcher) Changed() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	info, err := os.Stat(w.path)
	if err != nil {
		return true
	}
	if info.IsDir() {
		return false
	}
	return info.ModTime().After(w.state.modTime) || info.Size() != w.state.size
}
