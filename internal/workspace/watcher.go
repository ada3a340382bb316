package workspace

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"planforge/internal/logging"
)

// Watcher invalidates a Gatherer's cache when the workspace changes on disk.
// It watches the root directory plus its first-level subdirectories; deep
// trees are covered by the debounced rescan the invalidation triggers.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	gatherer *Gatherer

	debounceMap map[string]time.Time
	debounceDur time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewWatcher creates a watcher bound to the gatherer's root.
func NewWatcher(g *Gatherer) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     w,
		gatherer:    g,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; events are handled in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	root := w.gatherer.Root()
	if err := w.watcher.Add(root); err != nil {
		return err
	}
	// First-level subdirectories, skipping the usual noise.
	if snap, err := w.gatherer.Gather(); err == nil {
		seen := map[string]bool{}
		for _, f := range snap.Files {
			dir, _, ok := strings.Cut(f, "/")
			if !ok || seen[dir] || skipDirs[dir] {
				continue
			}
			seen[dir] = true
			if err := w.watcher.Add(filepath.Join(root, dir)); err != nil {
				logging.WorkspaceDebug("watch add failed for %s: %v", dir, err)
			}
		}
	}

	logging.Workspace("watching %s for changes", root)
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.WorkspaceDebug("error closing watcher: %v", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.WorkspaceDebug("watcher error: %v", err)
		case <-debounceTicker.C:
			w.flushDebounced()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Chmod-only events carry no content change.
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	// The engine's own state churn must not invalidate the cache.
	if strings.Contains(event.Name, StateDirName) {
		return
	}
	w.mu.Lock()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flushDebounced() {
	w.mu.Lock()
	now := time.Now()
	settled := 0
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			delete(w.debounceMap, path)
			settled++
		}
	}
	w.mu.Unlock()

	if settled > 0 {
		w.gatherer.Invalidate()
	}
}
