package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// defaultDebounce coalesces the burst of write events editors emit when
// saving a file.
const defaultDebounce = 250 * time.Millisecond

// Watcher reloads configuration when the config file changes on disk.
//
// The parent directory is watched rather than the file itself so that
// atomic saves (write to temp file, rename over the original) are still
// observed. Reloads are debounced and delivered on Configs; reload failures
// go to Errors and leave the previously delivered configuration in effect.
type Watcher struct {
	path     string
	base     string
	watcher  *fsnotify.Watcher
	configs  chan *Config
	errs     chan error
	stop     chan struct{}
	debounce time.Duration
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(path string) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		path:     absPath,
		base:     filepath.Base(absPath),
		watcher:  watcher,
		configs:  make(chan *Config, 1),
		errs:     make(chan error, 4),
		stop:     make(chan struct{}),
		debounce: defaultDebounce,
	}, nil
}

// Start begins watching for config changes.
//
// Runs a background goroutine that sends reloaded configs to Configs().
// Call Stop() to clean up resources.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching config directory: %w", err)
	}

	go w.processEvents(ctx)

	return nil
}

// Stop stops the watcher and cleans up resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		// Already stopped
		return
	default:
		close(w.stop)
		_ = w.watcher.Close() // Best-effort cleanup, ignore error
	}
}

// Configs returns the channel carrying reloaded configurations.
func (w *Watcher) Configs() <-chan *Config {
	return w.configs
}

// Errors returns the channel carrying reload failures.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// processEvents debounces file events and reloads the configuration.
func (w *Watcher) processEvents(ctx context.Context) {
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				pending = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case <-pending:
			timer = nil
			pending = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sendError(err)
		}
	}
}

// reload loads the config file and publishes the result.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.sendError(fmt.Errorf("config reload: %w", err))
		return
	}

	// Replace a stale pending config rather than blocking.
	select {
	case <-w.configs:
	default:
	}
	select {
	case w.configs <- cfg:
	default:
	}
}

func (w *Watcher) sendError(err error) {
	select {
	case w.errs <- err:
	default:
		// Channel full, drop
	}
}
