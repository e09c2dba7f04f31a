package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// SnapshotFunc reads the current key/value state of a watched store.
type SnapshotFunc func() (map[string]string, error)

// Watcher emits an [Event] for every key that changes in a file-backed store.
//
// The parent directory is watched rather than the file itself because atomic
// replacement (temp file + rename) swaps the inode. Sibling files sharing the
// path as prefix (SQLite -wal and -journal files) also trigger a check.
type Watcher struct {
	path     string
	snapshot SnapshotFunc
	logger   *log.Logger
	events   chan Event

	mu   sync.Mutex
	last map[string]string
}

// NewWatcher creates a [Watcher] for the file at path.
func NewWatcher(path string, snapshot SnapshotFunc, logger *log.Logger) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		snapshot: snapshot,
		logger:   logger,
		events:   make(chan Event, 16),
	}
}

// Events returns the channel changes are delivered on. It is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Prime records the current snapshot as the baseline for later diffs.
func (w *Watcher) Prime() error {
	snap, err := w.snapshot()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.last = snap
	w.mu.Unlock()
	return nil
}

// Check diffs the current snapshot against the previous one and returns the changes.
func (w *Watcher) Check() ([]Event, error) {
	snap, err := w.snapshot()
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	events := Diff(w.last, snap)
	w.last = snap
	return events, nil
}

// Run watches until ctx is done, delivering changes on [Watcher.Events].
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	if w.last == nil {
		if err := w.Prime(); err != nil {
			return fmt.Errorf("failed to read initial snapshot: %w", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "path", w.path, "error", err)
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}

			changes, err := w.Check()
			if err != nil {
				w.logger.Warn("failed to read snapshot", "path", w.path, "error", err)
				continue
			}
			for _, change := range changes {
				select {
				case w.events <- change:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !strings.HasPrefix(filepath.Clean(ev.Name), w.path) {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}
