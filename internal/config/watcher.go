package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/iotguard/guardd/internal/logger"
	"github.com/iotguard/guardd/internal/metrics"
)

// DebounceDelay batches the rapid write/rename bursts editors produce when
// saving a file, so one save triggers one reload.
const DebounceDelay = 100 * time.Millisecond

// Watcher monitors the decision config file and publishes validated
// snapshots into a Store. Invalid or unreadable edits are logged and the
// previous snapshot stays active.
type Watcher struct {
	store *Store
	path  string

	watcher  *fsnotify.Watcher
	debounce time.Duration

	timerMu sync.Mutex
	timer   *time.Timer

	done    chan struct{}
	stopped chan struct{}
}

// NewWatcher creates a watcher for path publishing into store.
// Call Start to begin watching and Close when done.
func NewWatcher(store *Store, path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}

	return &Watcher{
		store:    store,
		path:     filepath.Clean(path),
		watcher:  fw,
		debounce: DebounceDelay,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// SetDebounce overrides the debounce delay. Must be called before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start begins watching the config file's directory. Watching the directory
// rather than the file survives the rename-over-save pattern most editors
// and config management tools use.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go w.loop()
	return nil
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	<-w.stopped
	return err
}

func (w *Watcher) loop() {
	defer close(w.stopped)

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Log().WithError(err).Warn("config watcher error")
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.Reload)
}

// Reload re-reads the config file and swaps the snapshot in if it validates.
// Exported so callers can force a reload (e.g. on SIGHUP).
func (w *Watcher) Reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		logger.Log().WithError(err).WithField("path", w.path).
			Warn("decision config unreadable, keeping active policy")
		metrics.IncConfigReloadRejected()
		return
	}

	snap, err := ParseSnapshot(data)
	if err != nil {
		logger.Log().WithError(err).WithField("path", w.path).
			Warn("decision config rejected, keeping active policy")
		metrics.IncConfigReloadRejected()
		return
	}

	if err := w.store.Replace(snap); err != nil {
		logger.Log().WithError(err).Warn("decision config rejected, keeping active policy")
		metrics.IncConfigReloadRejected()
		return
	}

	metrics.IncConfigReload()
	entry := logger.WithFields(map[string]interface{}{
		"threshold":     snap.Threshold,
		"grace":         snap.Grace,
		"window":        snap.Window,
		"cooldown_sec":  snap.CooldownSec,
		"instant_block": snap.InstantBlock,
		"dry_run":       snap.DryRun,
		"hook":          snap.Hook,
	})
	if snap.InstantBlock < snap.Threshold {
		entry = entry.WithField("note", "instant_block below threshold")
	}
	entry.Info("reloaded decision config")
}

// LoadSnapshotFile reads and parses the decision config at path for the
// initial load. A missing file is not an error: the daemon starts on the
// documented defaults, which keep dry-run on.
func LoadSnapshotFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Log().WithField("path", path).
			Warn("decision config missing, starting with defaults (dry-run on)")
		return DefaultSnapshot(), nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read decision config: %w", err)
	}
	return ParseSnapshot(data)
}
