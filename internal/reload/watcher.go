// Package reload watches the configuration file and signals when it changes.
package reload

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/recordship/pkg/log"
)

// DefaultDebounceDelay is the quiet period after the last change before the
// callback runs.
const DefaultDebounceDelay = 250 * time.Millisecond

// Config holds configuration options for the watcher.
type Config struct {
	// Path is the file to watch. Its directory is watched so that editors
	// replacing the file are noticed.
	Path string

	// DebounceDelay collapses bursts of writes into one callback.
	// Default: 250 milliseconds
	DebounceDelay time.Duration

	Logger log.Logger
}

// Watcher invokes a callback when the watched file is written or recreated.
type Watcher struct {
	path     string
	delay    time.Duration
	logger   log.Logger
	onChange func(ctx context.Context)

	mu       sync.Mutex
	debounce *time.Timer
}

// New creates a watcher. onChange runs on its own goroutine, never
// concurrently with itself.
func New(cfg Config, onChange func(ctx context.Context)) *Watcher {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = DefaultDebounceDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoopLogger()
	}
	return &Watcher{
		path:     filepath.Clean(cfg.Path),
		delay:    cfg.DebounceDelay,
		logger:   cfg.Logger,
		onChange: onChange,
	}
}

// Run watches until ctx is cancelled. It returns an error only when the
// watch cannot be set up.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("watching configuration", log.String("path", w.path))

	var running sync.Mutex
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule(func() {
				running.Lock()
				defer running.Unlock()
				if ctx.Err() != nil {
					return
				}
				w.logger.Info("configuration changed", log.String("path", w.path))
				w.onChange(ctx)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", log.Err(err))
		}
	}
}

func (w *Watcher) schedule(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.delay, fn)
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
}
