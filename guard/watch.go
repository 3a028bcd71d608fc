package guard

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// configDebounce collapses the burst of events an editor save produces.
const configDebounce = 100 * time.Millisecond

// ConfigWatcher reloads a TOML config file when it changes on disk.
type ConfigWatcher struct {
	path     string
	onChange func(Config)
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WatchConfig calls onChange with every successfully reloaded config. Files
// that fail to parse or validate are logged and skipped, leaving the last good
// config in place. The parent directory is watched so atomic rename saves are
// seen.
func WatchConfig(ctx context.Context, path string, onChange func(Config), logger *slog.Logger) (*ConfigWatcher, error) {
	if path == "" {
		return nil, errNoWatchTarget
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cw := &ConfigWatcher{
		path:     abs,
		onChange: onChange,
		logger:   logger.With("component", "guard_config"),
		watcher:  w,
		ctx:      cctx,
		cancel:   cancel,
	}
	cw.wg.Add(1)
	go cw.run()
	return cw, nil
}

func (cw *ConfigWatcher) run() {
	defer cw.wg.Done()

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-cw.ctx.Done():
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(configDebounce)
			} else {
				timer.Reset(configDebounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			cw.reload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("config watch error", "error", err)
		}
	}
}

func (cw *ConfigWatcher) reload() {
	cfg, err := LoadConfig(cw.path)
	if err != nil {
		cw.logger.Warn("config reload rejected", "path", cw.path, "error", err)
		return
	}
	cw.logger.Info("config reloaded", "path", cw.path)
	if cw.onChange != nil {
		cw.onChange(cfg)
	}
}

// Close stops watching. It is safe to call more than once.
func (cw *ConfigWatcher) Close() error {
	cw.cancel()
	err := cw.watcher.Close()
	cw.wg.Wait()
	return err
}
