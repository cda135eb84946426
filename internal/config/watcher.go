package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls its file.
const DefaultWatchInterval = 5 * time.Second

// Reload is passed to a [Watcher] callback after the file changed in a way
// that alters the effective configuration.
type Reload struct {
	Old, New *Config
	Diff     ConfigDiff
}

// Watcher polls a config file and reports effective changes. A file that
// fails to load or validate is ignored and the last good config is kept.
type Watcher struct {
	path     string
	interval time.Duration
	onReload func(Reload)

	mu      sync.Mutex
	current *Config
	stamp   fileStamp
	sum     [sha256.Size]byte
	lastErr string

	done     chan struct{}
	stopOnce sync.Once
}

// fileStamp is the cheap pre-check done before the file is read.
type fileStamp struct {
	size  int64
	mtime time.Time
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it. onReload runs on the polling
// goroutine, outside the watcher's lock.
func NewWatcher(path string, onReload func(Reload), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onReload: onReload,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, sum, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.stamp, w.sum = cfg, stamp, sum

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) poll() {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-t.C:
			if r, ok := w.check(); ok && w.onReload != nil {
				w.onReload(r)
			}
		}
	}
}

func (w *Watcher) check() (Reload, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		w.fail(err)
		return Reload{}, false
	}
	w.mu.Lock()
	unchanged := w.stamp == fileStamp{size: info.Size(), mtime: info.ModTime()}
	w.mu.Unlock()
	if unchanged {
		return Reload{}, false
	}

	cfg, stamp, sum, err := w.load()
	if err != nil {
		w.fail(err)
		return Reload{}, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamp = stamp
	w.lastErr = ""
	if sum == w.sum {
		return Reload{}, false
	}
	w.sum = sum

	d := Diff(w.current, cfg)
	old := w.current
	w.current = cfg
	if d.Empty() {
		slog.Debug("config file changed without effect", "path", w.path)
		return Reload{}, false
	}
	slog.Info("config reloaded", "path", w.path, "restart_required", d.RestartRequired)
	return Reload{Old: old, New: cfg, Diff: d}, true
}

// fail logs err once per distinct message so a broken file does not log on
// every tick.
func (w *Watcher) fail(err error) {
	w.mu.Lock()
	repeat := w.lastErr == err.Error()
	w.lastErr = err.Error()
	w.mu.Unlock()
	if !repeat {
		slog.Warn("config reload skipped, keeping last good config", "path", w.path, "err", err)
	}
}

func (w *Watcher) load() (*Config, fileStamp, [sha256.Size]byte, error) {
	var sum [sha256.Size]byte
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, sum, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, sum, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileStamp{}, sum, err
	}
	return cfg, fileStamp{size: info.Size(), mtime: info.ModTime()}, sha256.Sum256(data), nil
}
