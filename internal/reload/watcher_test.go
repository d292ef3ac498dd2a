package reload

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestWatcherDetectsContentChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "server:\n  host: localhost\n")

	watcher, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if watcher.Changed() {
		t.Fatalf("fresh watcher must not report changes")
	}

	writeFile(t, path, "server:\n  host: localhost\n  stream_port: 6000\n")
	if !watcher.Changed() {
		t.Fatalf("size change not detected")
	}

	watcher.Reset()
	if watcher.Changed() {
		t.Fatalf("reset must clear the change flag")
	}
}

func TestWatcherDetectsTouch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "server:\n  host: localhost\n")

	watcher, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if !watcher.Changed() {
		t.Fatalf("mtime change not detected")
	}
}

func TestWatcherReportsMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "server:\n  host: localhost\n")

	watcher, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !watcher.Changed() {
		t.Fatalf("missing file must count as changed")
	}
}
