package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 200 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	path     string
	onChange func(*Config)
	log      *slog.Logger
}

// NewWatcher creates a watcher for the file at path. onChange receives each
// successfully loaded and validated config; it runs on a timer goroutine.
func NewWatcher(path string, onChange func(*Config), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: filepath.Clean(path), onChange: onChange, log: logger}
}

// Run watches until ctx is cancelled. The file's directory is watched rather
// than the file, so editors that save by renaming are picked up. A file that
// fails to load or validate is logged and the previous config stays in effect.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var (
		debounceTimer *time.Timer
		mu            sync.Mutex
		pending       bool
	)

	doReload := func() {
		mu.Lock()
		pending = false
		mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.reload()
	}
	defer func() {
		mu.Lock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			mu.Lock()
			if !pending {
				pending = true
				debounceTimer = time.AfterFunc(watchDebounce, doReload)
			} else {
				debounceTimer.Reset(watchDebounce)
			}
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Debug("config: watcher error", "err", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		w.log.Warn("config: reload failed, keeping previous config", "path", w.path, "err", err)
		return
	}
	w.log.Info("config: reloaded", "path", w.path)
	w.onChange(cfg)
}
