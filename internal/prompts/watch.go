package prompts

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/JanDamek/jervis-sub011/internal/observability"
)

// Watch reloads templates from dir whenever files under it change. It
// blocks until ctx is cancelled; callers run it in its own goroutine.
// Reload failures are logged and the previous templates stay in effect.
func (s *Store) Watch(ctx context.Context, dir string, logger *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	logger.Info(ctx, "watching prompt templates", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.LoadDir(dir); err != nil {
				logger.Warn(ctx, "prompt template reload failed", "error", err)
				continue
			}
			logger.Info(ctx, "prompt templates reloaded", "trigger", event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn(ctx, "prompt template watcher error", "error", err)
		}
	}
}
