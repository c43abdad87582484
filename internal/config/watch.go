package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// WatchLogLevel applies the log_level of the YAML file at path to level each
// time the file changes. It blocks until ctx is cancelled. The parent
// directory is watched so editors that replace the file by rename are seen.
func WatchLogLevel(ctx context.Context, path string, level *slog.LevelVar, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %q: %w", filepath.Dir(target), err)
	}
	logger.Info("config: watching log level", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			next, ok, err := readLogLevel(target)
			if err != nil {
				logger.Warn("config: reload log level", "path", target, "error", err)
				continue
			}
			if !ok || next == level.Level() {
				continue
			}
			logger.Info("config: log level changed", "from", level.Level().String(), "to", next.String())
			level.Set(next)

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			logger.Error("config: watcher error", "error", err)
		}
	}
}

// readLogLevel reports the file's log_level and whether it sets one.
func readLogLevel(path string) (slog.Level, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return 0, false, err
	}
	if fc.LogLevel == "" {
		return 0, false, nil
	}
	return parseLogLevel(fc.LogLevel), true, nil
}
