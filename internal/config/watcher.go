package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sghr/warden/internal/model"
)

// reloadDebounce coalesces bursts of filesystem events (editors often write
// a file several times in quick succession).
const reloadDebounce = 500 * time.Millisecond

// Watch re-loads the configuration whenever the file at path changes and
// hands each successfully parsed result to onReload. It blocks until ctx is
// cancelled. The parent directory is watched so the file may be replaced
// atomically (rename over) without losing the watch.
func Watch(ctx context.Context, path string, logger *log.Logger, onReload func(model.Config)) error {
	if path == "" {
		path = DefaultPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	var debounce *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.AfterFunc(reloadDebounce, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			} else {
				debounce.Reset(reloadDebounce)
			}
		case <-reload:
			debounce = nil
			cfg, err := Load(abs)
			if err != nil {
				if logger != nil {
					logger.Printf("config reload skipped: %v", err)
				}
				continue
			}
			if logger != nil {
				logger.Printf("config reloaded from %s", abs)
			}
			onReload(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if logger != nil {
				logger.Printf("config watcher error: %v", err)
			}
		}
	}
}
