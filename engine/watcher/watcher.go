// package watcher provides the debounced recursive directory watch driving
// shader hot reload. Raw filesystem events are coalesced over a short window
// on the watch goroutine and published to a bounded channel that the render
// loop drains non-blockingly at frame start.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces bursts of write events (editors typically fire
// several per save) into a single notification per path.
const debounceWindow = 100 * time.Millisecond

// eventBufferSize bounds the published-events channel; when the render loop
// stalls, further notifications for the frame are dropped rather than
// blocking the watch goroutine.
const eventBufferSize = 64

// directoryWatcher is the implementation of the DirectoryWatcher interface.
type directoryWatcher struct {
	watcher *fsnotify.Watcher

	events chan string
	done   chan struct{}
}

// DirectoryWatcher watches a directory tree for file modifications.
type DirectoryWatcher interface {
	// Poll drains all pending modification notifications without blocking.
	// Paths are unique per call, in arrival order.
	//
	// Returns:
	//   - []string: modified file paths, or nil when nothing changed
	Poll() []string

	// Close stops the watch goroutine and releases the underlying watcher.
	//
	// Returns:
	//   - error: an error from the underlying watcher shutdown
	Close() error
}

var _ DirectoryWatcher = &directoryWatcher{}

// NewDirectoryWatcher starts a recursive watch of root. Subdirectories
// created after the watch begins are picked up automatically.
//
// Parameters:
//   - root: the directory tree to watch
//
// Returns:
//   - DirectoryWatcher: the running watcher
//   - error: an error if the root cannot be watched
func NewDirectoryWatcher(root string) (DirectoryWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: failed to create watcher: %w", err)
	}

	w := &directoryWatcher{
		watcher: fsWatcher,
		events:  make(chan string, eventBufferSize),
		done:    make(chan struct{}),
	}

	if err := w.addRecursive(root); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

func (w *directoryWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("watcher: failed to walk %q: %w", path, err)
		}
		if entry.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("watcher: failed to watch %q: %w", path, err)
			}
		}
		return nil
	})
}

// run collects raw events and publishes one debounced notification per path.
func (w *directoryWatcher) run() {
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(debounceWindow / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				// New subdirectories join the watch; new files also count as
				// modifications (save-by-rename editors create, then write).
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.watcher.Add(event.Name)
					continue
				}
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				pending[event.Name] = time.Now()
			}

		case <-w.watcher.Errors:
			// Watch errors are not actionable for hot reload; keep running.

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < debounceWindow {
					continue
				}
				delete(pending, path)
				select {
				case w.events <- path:
				default:
					// Bounded channel full; the frame will catch the next save.
				}
			}
		}
	}
}

func (w *directoryWatcher) Poll() []string {
	var paths []string
	seen := make(map[string]bool)
	for {
		select {
		case path := <-w.events:
			if !seen[path] {
				seen[path] = true
				paths = append(paths, path)
			}
		default:
			return paths
		}
	}
}

func (w *directoryWatcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
