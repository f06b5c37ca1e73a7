package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// skipDirs are directory names excluded from watching. Build output and
// VCS metadata churn constantly without representing source changes.
var skipDirs = map[string]bool{
	".git":         true,
	"build":        true,
	"node_modules": true,
	".cache":       true,
	"CMakeFiles":   true,
}

// Watcher monitors the project tree and triggers a debounced callback
// when source files change.
type Watcher struct {
	projectRoot  string
	watcher      *fsnotify.Watcher
	onChange     func()
	stopChan     chan struct{}
	changeChan   chan struct{}
	debounceTime time.Duration
}

// NewWatcher creates a project tree watcher.
func NewWatcher(projectRoot string, debounce time.Duration, onChange func()) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	return &Watcher{
		projectRoot:  absRoot,
		watcher:      watcher,
		onChange:     onChange,
		stopChan:     make(chan struct{}),
		changeChan:   make(chan struct{}, 1),
		debounceTime: debounce,
	}, nil
}

// Start registers the project directories and begins watching.
func (w *Watcher) Start(ctx context.Context) error {
	count := 0
	err := filepath.WalkDir(w.projectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		if addErr := w.watcher.Add(path); addErr != nil {
			slog.Warn("Failed to watch directory", "path", path, "error", addErr)
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk project tree: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("no watchable directories under %s", w.projectRoot)
	}

	slog.Info("Starting project watcher",
		slog.String("root", w.projectRoot),
		slog.Int("directories", count))

	go w.watchLoop(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	slog.Info("Stopping project watcher")
	close(w.stopChan)
	if err := w.watcher.Close(); err != nil {
		slog.Error("Error closing file watcher", "error", err)
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
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
			// New directories need their own watch to catch files
			// created inside them later.
			if event.Op&fsnotify.Create != 0 {
				base := filepath.Base(event.Name)
				if !skipDirs[base] {
					if err := w.watcher.Add(event.Name); err == nil {
						slog.Debug("Watching new directory", "path", event.Name)
					}
				}
			}
			w.trigger()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Project watcher error", "error", err)
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.changeChan:
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounceTime, w.onChange)
		}
	}
}

func (w *Watcher) trigger() {
	select {
	case w.changeChan <- struct{}{}:
	default:
	}
}
