package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchDebounce groups the bursts of events editors produce on save.
var WatchDebounce = 200 * time.Millisecond

// Watch reloads the document at path whenever it changes and hands every
// valid version to fn. Invalid versions are logged and skipped. The parent
// directory is watched so that atomic replaces are seen. Watch blocks until
// ctx is done.
func Watch(ctx context.Context, path string, fn func(*Document)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch config file: %w", err)
	}
	slog.Info("Watching device configuration for changes", "path", path)

	var (
		debounce *time.Timer
		fire     <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			slog.Debug("Configuration file changed", "op", event.Op.String())
			if debounce == nil {
				debounce = time.NewTimer(WatchDebounce)
			} else {
				debounce.Reset(WatchDebounce)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			doc, err := Load(path)
			if err != nil {
				slog.Error("Ignoring invalid configuration", "path", path, "error", err)
				continue
			}
			slog.Info("Configuration reloaded", "path", path, "devices", doc.Len())
			fn(doc)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Configuration watcher error", "error", err)
		}
	}
}
