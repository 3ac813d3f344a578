package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces editor write bursts (truncate + write + chmod)
// into a single reload.
const reloadDebounce = 200 * time.Millisecond

var newFsnotifyWatcherFn = fsnotify.NewWatcher

// Watcher reloads the config file when it changes on disk and delivers the
// result to a callback. Atomic-rename saves (our own Save included) show up
// as Create events, so both Write and Create trigger a reload.
type Watcher struct {
	path     string
	onReload func(Config)

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	closed  bool
	done    chan struct{}
	stopped sync.WaitGroup
}

// NewWatcher starts watching the directory containing path. Watching the
// directory rather than the file survives rename-based saves that replace
// the inode. onReload is called from the watcher goroutine with each
// successfully reloaded config.
func NewWatcher(path string, onReload func(Config)) (*Watcher, error) {
	fsw, err := newFsnotifyWatcherFn()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		// Close errors are secondary to the Add failure being reported.
		if closeErr := fsw.Close(); closeErr != nil {
			slog.Warn("[WARN-CONFIG] failed to close watcher after add failure", "error", closeErr)
		}
		return nil, err
	}

	w := &Watcher{
		path:     path,
		onReload: onReload,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	w.stopped.Add(1)
	go w.loop()
	return w, nil
}

// Close stops the watcher. Safe to call more than once. A reload already
// scheduled by the debounce timer may still fire after Close returns.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.done)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.stopped.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.stopped.Done()
	base := filepath.Base(w.path)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("[WARN-CONFIG] config watcher error", "error", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("[WARN-CONFIG] reload after change failed, keeping previous config",
			"path", w.path, "error", err)
		return
	}
	slog.Debug("[DEBUG-CONFIG] config reloaded", "path", w.path)
	w.onReload(cfg)
}
