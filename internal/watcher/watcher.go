// Package watcher notices out-of-process writes to the local store. A
// long-running client keeps its in-memory task view current by reloading
// whenever another dayplan process touches the database file, with
// debouncing so a burst of writes causes a single reload.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"dayplan/internal/utils"
)

// DefaultDebounce is the window for batching rapid writes into one reload.
const DefaultDebounce = 1 * time.Second

// Config holds store watcher configuration.
type Config struct {
	// Path is the database file to watch.
	Path string

	// Debounce batches rapid writes; a reload fires only after the window
	// passes without further events.
	Debounce time.Duration

	// OnChange is invoked on the watcher goroutine after each settled
	// burst of writes.
	OnChange func()
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	return c
}

// Watcher monitors the local store file for writes from other processes.
type Watcher struct {
	cfg Config
	fsw *fsnotify.Watcher
	log *utils.Logger
}

// New creates a Watcher for the store file named in cfg.Path.
func New(cfg Config) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("watcher needs a store path")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		cfg: cfg.withDefaults(),
		fsw: fsw,
		log: utils.GetLogger(),
	}, nil
}

// Run watches until the context is cancelled. The parent directory is
// watched rather than the file itself so that sqlite's rename-based
// journal swaps and a not-yet-created database are both covered.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()

	dir := filepath.Dir(w.cfg.Path)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	base := filepath.Base(w.cfg.Path)

	var debounce *time.Timer
	fired := make(chan struct{}, 1)

	resetDebounce := func() {
		if debounce != nil {
			debounce.Stop()
		}
		debounce = time.AfterFunc(w.cfg.Debounce, func() {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
	}
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Events for unrelated files in the directory are ignored,
			// except the sqlite sidecar files which signal a write too.
			name := filepath.Base(event.Name)
			if name != base && name != base+"-wal" && name != base+"-journal" {
				continue
			}
			resetDebounce()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("store watcher: %v", err)

		case <-fired:
			if w.cfg.OnChange != nil {
				w.cfg.OnChange()
			}
		}
	}
}
