package sensorconfig

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// pollInterval is comfortably inside the "observed within 2s" bound, since
// the poll itself and a reload both take negligible time next to it.
const pollInterval = 1500 * time.Millisecond

// Watcher polls a config file's mtime and reloads on change, since none of
// this module's dependency stack carries an inotify-based watcher. Readers
// call Current for a consistent snapshot; OnChange subscribers are invoked
// with the new Config after a successful reload.
type Watcher struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[Config]
	lastMod time.Time

	subscribers []func(*Config)
}

// NewWatcher performs the initial Load, which is fatal on failure: a
// sensor must not start with no usable configuration.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, logger: logger}
	w.current.Store(cfg)
	if fi, err := os.Stat(path); err == nil {
		w.lastMod = fi.ModTime()
	}
	return w, nil
}

// Current returns the most recently applied configuration.
func (w *Watcher) Current() *Config { return w.current.Load() }

// OnChange registers fn to run, in registration order, after each
// successful reload. Must be called before Run starts polling.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.subscribers = append(w.subscribers, fn)
}

// Run polls until ctx is cancelled. A reload failure is logged at error
// and the previously applied configuration is retained; the next poll
// will retry automatically since lastMod is left unchanged.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	fi, err := os.Stat(w.path)
	if err != nil {
		w.logger.Error("config stat failed", "path", w.path, "error", err)
		return
	}
	if !fi.ModTime().After(w.lastMod) {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed, retaining previous configuration", "path", w.path, "error", err)
		return
	}

	w.lastMod = fi.ModTime()
	w.current.Store(cfg)
	for _, fn := range w.subscribers {
		fn(cfg)
	}
}
