package identity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reports whether the local instance is provisioned, that is whether
// its identity directory holds key material, and notices when that changes.
type Watcher struct {
	dir           string
	filter        FilterConfig
	debounceDelay time.Duration
	fsWatcher     *fsnotify.Watcher
	provisioned   atomic.Bool

	mu       sync.Mutex
	timer    *time.Timer
	onChange func(provisioned bool)
	started  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates dir if needed and takes an initial reading.
func NewWatcher(dir string, filter FilterConfig, debounce time.Duration) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create identity dir: %w", err)
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	w := &Watcher{
		dir:           dir,
		filter:        filter,
		debounceDelay: debounce,
		fsWatcher:     fsWatcher,
	}
	present, err := hasIdentity(dir, filter)
	if err != nil {
		logger.Log.Warn("Failed to read identity directory", "dir", dir, "err", err)
	}
	w.provisioned.Store(present)
	return w, nil
}

func (w *Watcher) IsProvisioned() bool {
	return w.provisioned.Load()
}

// OnChange registers fn to be called after each provisioning transition.
func (w *Watcher) OnChange(fn func(provisioned bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := w.fsWatcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.started = true
	w.wg.Add(1)
	go w.eventLoop()
	logger.Log.Info("Identity watcher started", "dir", w.dir, "provisioned", w.IsProvisioned())
	return nil
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	_ = w.fsWatcher.Close()
	w.wg.Wait()
	logger.Log.Info("Identity watcher stopped")
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !w.filter.ShouldCount(filepath.Base(event.Name)) {
				continue
			}
			w.scheduleRescan()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logger.Log.Error("Identity watcher error", "err", err)
		}
	}
}

// scheduleRescan coalesces bursts of events into one directory read.
func (w *Watcher) scheduleRescan() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounceDelay, w.rescan)
}

func (w *Watcher) rescan() {
	if w.ctx.Err() != nil {
		return
	}
	present, err := hasIdentity(w.dir, w.filter)
	if err != nil {
		logger.Log.Warn("Failed to read identity directory", "dir", w.dir, "err", err)
		return
	}
	if w.provisioned.Swap(present) == present {
		return
	}
	logger.Log.Info("Provisioning state changed", "dir", w.dir, "provisioned", present)
	w.mu.Lock()
	fn := w.onChange
	w.mu.Unlock()
	if fn != nil {
		fn(present)
	}
}

func hasIdentity(dir string, filter FilterConfig) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Type().IsRegular() && filter.ShouldCount(e.Name()) {
			return true, nil
		}
	}
	return false, nil
}
