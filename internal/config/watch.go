package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/muurk/wsecho/internal/logging"
)

// Watch calls onChange with the reloaded config every time the file at path
// is written or replaced, until ctx is cancelled. Invalid files are logged
// and skipped; the previous config stays in effect.
//
// The parent directory is watched rather than the file itself so editors
// that save by renaming a temporary file are picked up.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	logging.Debug("Watching config file", zap.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				logging.Warn("Ignoring config change",
					zap.String("path", path),
					zap.Error(err),
				)
				continue
			}

			logging.Info("Config file reloaded", zap.String("path", path))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("Config watcher error", zap.Error(err))
		}
	}
}
