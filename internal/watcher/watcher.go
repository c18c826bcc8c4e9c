// Package watcher reloads the daemon configuration when its file changes.
package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"feedbreakd/internal/config"
	"feedbreakd/internal/logging"
)

// DefaultDebounce is the quiet period a changed file must hold before
// the configuration is re-read.
const DefaultDebounce = 500 * time.Millisecond

// ApplyFunc receives each re-loaded, validated configuration. Returning
// an error keeps the previous configuration in force.
type ApplyFunc func(*config.Config) error

// Watcher monitors a configuration file and applies changes after they
// settle. Editors replace files by rename, so the parent directory is
// watched and events are filtered by name.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	base      string
	debounce  time.Duration
	apply     ApplyFunc
	log       *logging.Logger

	mu      sync.Mutex
	reloads int

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher for the configuration file at path. A
// non-positive debounce falls back to DefaultDebounce.
func New(path string, debounce time.Duration, apply ApplyFunc) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config path required")
	}
	if apply == nil {
		return nil, errors.New("apply callback required")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		path:      absPath,
		base:      filepath.Base(absPath),
		debounce:  debounce,
		apply:     apply,
		log:       logging.Default().WithComponent("watcher"),
		done:      make(chan struct{}),
	}, nil
}

// Path returns the watched configuration file path.
func (w *Watcher) Path() string {
	return w.path
}

// Reloads returns the number of configurations applied so far.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Start begins watching. The file itself may not exist yet; its
// directory must.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("config path parent is not a directory")
	}

	if err := w.fsWatcher.Add(dir); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.eventLoop()

	w.log.Info("watching configuration", "path", w.path, "debounce", w.debounce)
	return nil
}

// Stop shuts the watcher down. Pending changes are discarded.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	return w.fsWatcher.Close()
}

// eventLoop collects change events and reloads once the file has been
// quiet for the debounce window. The pending timestamp lives on the
// loop so no locking is needed.
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var pending time.Time
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.base {
				continue
			}
			// Write covers in-place saves, Create covers the rename
			// that finishes an atomic replace.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = time.Now()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watch error", "err", err)

		case now := <-ticker.C:
			if pending.IsZero() || now.Sub(pending) < w.debounce {
				continue
			}
			pending = time.Time{}
			w.reload()
		}
	}
}

// reload re-reads and validates the file, then hands the result to the
// apply callback. Any failure leaves the running configuration alone.
func (w *Watcher) reload() {
	if _, err := os.Stat(w.path); err != nil {
		w.log.Debug("config file gone, keeping running config", "path", w.path)
		return
	}

	cfg, err := config.Load(w.path)
	if err != nil {
		w.log.Warn("config reload failed, keeping running config",
			"path", w.path, "err", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		w.log.Warn("config reload rejected, keeping running config",
			"path", w.path, "err", err)
		return
	}

	if err := w.apply(cfg); err != nil {
		w.log.Warn("config apply failed, keeping running config", "err", err)
		return
	}

	w.mu.Lock()
	w.reloads++
	n := w.reloads
	w.mu.Unlock()

	w.log.Info("configuration reloaded", "path", w.path, "reloads", n)
}
