package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWatcherWatchesExistingSubdirectories(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	watcher, events := startWatch(t, root, Options{})

	if got := watcher.Stats().ActiveWatches; got != 3 {
		t.Fatalf("expected 3 watched dirs, got %d", got)
	}

	path := filepath.Join(nested, "sample.txt")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if event := waitForEvent(t, events, path); event.Op != OpCreated {
		t.Fatalf("expected created, got %s", event.Op)
	}
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	watcher, events := startWatch(t, root, Options{})

	dir := filepath.Join(root, "pkg")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if event := waitForEvent(t, events, dir); event.Op != OpCreated {
		t.Fatalf("expected created dir, got %s", event.Op)
	}

	path := filepath.Join(dir, "lib.go")
	if err := os.WriteFile(path, []byte("package pkg\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitForEvent(t, events, path)

	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if event := waitForEvent(t, events, dir); event.Op != OpDeleted {
		t.Fatalf("expected deleted dir, got %s", event.Op)
	}
	if got := watcher.Stats().ActiveWatches; got != 1 {
		t.Fatalf("expected only the root watched, got %d", got)
	}
}

func TestWatcherSkipsIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".git", "objects"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	watcher, _ := startWatch(t, root, Options{})

	dirs := watcher.watchedDirs()
	if len(dirs) != 2 {
		t.Fatalf("expected root and src only, got %v", dirs)
	}
	for _, dir := range dirs {
		if filepath.Base(dir) == ".git" || filepath.Base(dir) == "objects" {
			t.Fatalf("ignored directory watched: %s", dir)
		}
	}
}

func TestWatcherMaxWatches(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		if err := os.Mkdir(filepath.Join(root, name), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if _, err := Watch(root, Options{MaxWatches: 2}, func(Event) {}); !errors.Is(err, ErrMaxWatchesExceeded) {
		t.Fatalf("expected ErrMaxWatchesExceeded, got %v", err)
	}
}
