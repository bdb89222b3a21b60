package prompts

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads set whenever the file at path changes, until ctx is done.
// The parent directory is watched so editors that replace the file on save
// are picked up too. A file that fails to parse is logged and ignored.
func Watch(ctx context.Context, set *Set, path string, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create prompts watcher: %w", err)
	}
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch prompts file: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target || evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := set.Reload(target); err != nil {
					logger.Warn("prompts reload failed, keeping previous templates", "file", target, "error", err)
					continue
				}
				logger.Info("prompts reloaded", "file", target)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("prompts watcher error", "error", err)
			}
		}
	}()
	return nil
}
