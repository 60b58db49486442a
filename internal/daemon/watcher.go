package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/nekodeploy/internal/logfields"
)

// Watcher monitors the build output directory and emits a debounced trigger
// when its content changes. Static generators rewrite many files in a burst;
// the debounce collapses a burst into one deployment.
type Watcher struct {
	dir          string
	watcher      *fsnotify.Watcher
	mu           sync.Mutex
	stopChan     chan struct{}
	triggerChan  chan struct{}
	debounceTime time.Duration
}

// NewWatcher creates a watcher over dir with the given debounce window.
func NewWatcher(dir string, debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to resolve watch path: %w", err)
	}

	return &Watcher{
		dir:          absDir,
		watcher:      w,
		stopChan:     make(chan struct{}),
		triggerChan:  make(chan struct{}, 1),
		debounceTime: debounce,
	}, nil
}

// Triggers returns the channel that fires once per settled change burst.
func (w *Watcher) Triggers() <-chan struct{} { return w.triggerChan }

// Start registers the directory tree and begins watching.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.addTree(w.dir); err != nil {
		return err
	}

	slog.Info("Watching build output", logfields.Path(w.dir))
	go w.watchLoop(ctx)
	return nil
}

// Stop stops the watcher and closes the underlying fsnotify handle.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	close(w.stopChan)
	if err := w.watcher.Close(); err != nil {
		slog.Error("Error closing file watcher", logfields.Error(err))
	}
}

// addTree registers dir and each existing subdirectory. fsnotify watches are
// not recursive; newly created subdirectories are added from the event loop.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// watchLoop turns raw filesystem events into debounced triggers.
func (w *Watcher) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				// New subdirectories need their own watch.
				if err := w.addTree(event.Name); err != nil {
					slog.Debug("Could not extend watch", logfields.Path(event.Name), logfields.Error(err))
				}
			}
			slog.Debug("Change detected", logfields.Path(event.Name))
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounceTime, w.fire)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", logfields.Error(err))
		}
	}
}

// fire delivers a trigger without blocking; a pending trigger absorbs new ones.
func (w *Watcher) fire() {
	select {
	case w.triggerChan <- struct{}{}:
	default:
	}
}
