package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the reloader waits after the last write.
const DefaultDebounce = 500 * time.Millisecond

// Reloadable re-reads its configuration from disk.
type Reloadable interface {
	Reload() error
}

// Reloader watches the bundle file and re-applies it on change. Editors that
// replace a file via rename are handled by watching the parent directory.
type Reloader struct {
	watcher  *fsnotify.Watcher
	target   Reloadable
	files    map[string]bool
	debounce time.Duration
	logger   *zap.Logger
	// reloaded receives the outcome of each reload. Tests use it.
	reloaded chan error
}

// NewReloader creates a watcher for paths. Empty or missing paths are skipped.
func NewReloader(target Reloadable, paths []string, logger *zap.Logger) (*Reloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("server: create file watcher: %w", err)
	}

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		files[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("server: watch %q: %w", dir, err)
		}
		dirs[dir] = true
	}

	return &Reloader{
		watcher:  watcher,
		target:   target,
		files:    files,
		debounce: DefaultDebounce,
		logger:   logger,
	}, nil
}

// Watching reports how many files are watched.
func (r *Reloader) Watching() int {
	return len(r.files)
}

// Run watches for changes and reloads. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if !r.files[filepath.Clean(event.Name)] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			name := event.Name
			debounce = time.AfterFunc(r.debounce, func() { r.reload(name) })

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (r *Reloader) reload(name string) {
	err := r.target.Reload()
	if err != nil {
		r.logger.Error("hot-reload failed, keeping previous bundle", zap.String("file", name), zap.Error(err))
	} else {
		r.logger.Info("hot-reload: bundle re-applied", zap.String("file", name))
	}
	if r.reloaded != nil {
		select {
		case r.reloaded <- err:
		default:
		}
	}
}
