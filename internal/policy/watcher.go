package policy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is the quiet period before a changed policy file is reloaded.
const DefaultDebounceInterval = 100 * time.Millisecond

// LoadFile reads a policy file and installs it into the engine.
func LoadFile(ctx context.Context, engine *Engine, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read policy file %q: %w", path, err)
	}
	return engine.Reload(ctx, string(content))
}

// FileWatcher reloads the engine whenever the policy file changes.
// The parent directory is watched so editors that replace the file by
// rename are picked up too.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	engine   *Engine
	path     string
	logger   *slog.Logger
	debounce *debouncer

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewFileWatcher creates a watcher for path. Call Watch to start it.
func NewFileWatcher(engine *Engine, path string, interval time.Duration, logger *slog.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve policy path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch policy directory: %w", err)
	}

	return &FileWatcher{
		watcher:  watcher,
		engine:   engine,
		path:     abs,
		logger:   logger.With("component", "policy-watcher"),
		debounce: newDebouncer(interval),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch processes file events until ctx is cancelled or Stop is called.
// onReload, if set, is called after every reload attempt.
func (fw *FileWatcher) Watch(ctx context.Context, onReload func(error)) {
	defer close(fw.doneCh)

	fw.logger.Info("policy watcher started", "path", fw.path)

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.stopCh:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fw.path || event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				continue
			}

			fw.debounce.trigger(func() {
				err := LoadFile(context.Background(), fw.engine, fw.path)
				if err != nil {
					fw.logger.Error("policy reload failed, keeping previous policy", "error", err)
				} else {
					fw.logger.Info("policy reloaded", "path", fw.path)
				}
				if onReload != nil {
					onReload(err)
				}
			})

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("policy watcher error", "error", err)
		}
	}
}

// Stop stops the watcher and waits for Watch to return.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		close(fw.stopCh)
		fw.debounce.stop()
		err = fw.watcher.Close()
	})
	return err
}

// Done is closed once Watch has returned.
func (fw *FileWatcher) Done() <-chan struct{} {
	return fw.doneCh
}

type debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	stopped  bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

func (d *debouncer) trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
