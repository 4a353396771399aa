package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch wakes the loop whenever anything changes under dir, so new work is
// picked up faster than the polling interval. Polling remains the safety
// net: a missed notification only delays the next poll, never loses work.
// Watching stops when ctx is cancelled.
func (l *Loop) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go l.watchLoop(ctx, watcher, l.logger.With("dir", dir))
	return nil
}

func (l *Loop) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, logger *slog.Logger) {
	defer func() { _ = watcher.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				l.Wake()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}
