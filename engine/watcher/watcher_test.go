package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// waitForPaths polls the watcher until it reports something or the deadline passes.
func waitForPaths(t *testing.T, w DirectoryWatcher, deadline time.Duration) []string {
	t.Helper()
	stop := time.After(deadline)
	for {
		if paths := w.Poll(); len(paths) > 0 {
			return paths
		}
		select {
		case <-stop:
			return nil
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shader.frag")
	if err := os.WriteFile(path, []byte("void main() {}"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewDirectoryWatcher(dir)
	if err != nil {
		t.Fatalf("NewDirectoryWatcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("void main() { /* edited */ }"), 0o644); err != nil {
		t.Fatal(err)
	}

	paths := waitForPaths(t, w, 2*time.Second)
	if len(paths) == 0 {
		t.Fatal("no modification reported")
	}
	found := false
	for _, p := range paths {
		if p == path {
			found = true
		}
	}
	if !found {
		t.Errorf("reported paths %v do not include %q", paths, path)
	}
}

func TestWatcherCoalescesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shader.vert")

	w, err := NewDirectoryWatcher(dir)
	if err != nil {
		t.Fatalf("NewDirectoryWatcher: %v", err)
	}
	defer w.Close()

	// Several writes in quick succession should debounce to one notification.
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("void main() {}"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	paths := waitForPaths(t, w, 2*time.Second)
	count := 0
	for _, p := range paths {
		if p == path {
			count++
		}
	}
	// Poll dedupes within a call; follow-up polls should stay quiet once the
	// debounce window has drained.
	time.Sleep(3 * debounceWindow)
	for _, p := range w.Poll() {
		if p == path {
			count++
		}
	}
	if count != 1 {
		t.Errorf("got %d notifications for one burst, want 1", count)
	}
}

func TestWatcherPollEmptyWithoutChanges(t *testing.T) {
	w, err := NewDirectoryWatcher(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirectoryWatcher: %v", err)
	}
	defer w.Close()

	if paths := w.Poll(); len(paths) != 0 {
		t.Errorf("Poll on idle watcher returned %v", paths)
	}
}
