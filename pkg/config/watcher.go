package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// WatchConfig watches the given files and emits on the returned channel
// after a change has settled for the debounce interval. Write and
// Create events both count: editors replace the file on save. The
// watcher stops, and the channel closes, when ctx is cancelled.
func WatchConfig(ctx context.Context, files ...string) <-chan struct{} {
	reload := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create fsnotify watcher", "error", err)
		return reload
	}

	for _, file := range files {
		path, err := filepath.Abs(file)
		if err != nil {
			slog.Warn("Could not resolve watch path", "file", file, "error", err)
			continue
		}
		if err := watcher.Add(path); err != nil {
			slog.Warn("Could not watch config file", "file", file, "error", err)
		}
	}

	go func() {
		defer watcher.Close()
		defer close(reload)

		var settle *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if settle != nil {
					settle.Stop()
				}
				settle = time.AfterFunc(reloadDebounce, func() {
					slog.Info("Configuration change detected", "file", event.Name)
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watcher error", "error", err)
			}
		}
	}()

	return reload
}
