package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/stickies/pkg/debounce"
	"github.com/aretw0/stickies/pkg/kv"
)

const (
	watchDebounce = 50 * time.Millisecond
	watchBuffer   = 16
)

var reconcileKey = debounce.Key{Field: "reconcile"}

// Watch reports changes made to the storage file by other processes.
//
// The parent directory is watched because atomic writes replace the file's
// inode. Bursts of filesystem events are collapsed and then diffed against
// the last known content; writes made through this Store never produce
// events.
func (s *Store) Watch(ctx context.Context, pattern string) (<-chan kv.Event, error) {
	if pattern == "" {
		pattern = "*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid watch pattern %q", pattern)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.Path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.Path), err)
	}

	out := make(chan kv.Event, watchBuffer)
	deb := debounce.New(
		debounce.WithContext(ctx),
		debounce.WithErrorHandler(func(_ debounce.Key, err error) { s.reportWatchError(err) }),
	)
	s.setWatcherActive(true)

	lifecycle.Go(ctx, func(ctx context.Context) error {
		return s.watchLoop(ctx, watcher, deb, pattern, out)
	}, lifecycle.WithErrorHandler(func(err error) {
		s.reportWatchError(fmt.Errorf("watcher panic: %w", err))
	}))

	return out, nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, deb *debounce.Scheduler, pattern string, out chan<- kv.Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("watcher panic: %v", recovered)
			if s.logger.Enabled(ctx, slog.LevelDebug) {
				s.logger.Error("watcher panic", "error", err, "stack", string(debug.Stack()))
			} else {
				s.logger.Error("watcher panic", "error", err)
			}
		}
	}()
	defer close(out)
	defer func() {
		// Wait for a reconcile in flight before the channel is closed.
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = deb.Stop(stopCtx)
	}()
	defer watcher.Close()
	defer s.setWatcherActive(false)

	base := filepath.Base(s.Path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			s.logger.Debug("storage event", "op", event.Op.String(), "path", event.Name)
			_ = deb.Schedule(reconcileKey, debounce.Trailing, watchDebounce, func(context.Context) error {
				return s.reconcile(ctx, pattern, out)
			})

		case wErr, ok := <-watcher.Errors:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			s.reportWatchError(wErr)
		}
	}
}

// reconcile diffs the file against the snapshot and emits the matching events.
func (s *Store) reconcile(ctx context.Context, pattern string, out chan<- kv.Event) error {
	s.mu.Lock()
	current := s.readDisk()
	now := time.Now()
	events := kv.Diff(s.snapshot, current, now.Unix())
	s.snapshot = current
	s.lastReconcile = &now
	s.mu.Unlock()

	for _, e := range events {
		if ok, _ := doublestar.Match(pattern, e.Key); !ok {
			continue
		}
		select {
		case out <- e:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func (s *Store) reportWatchError(err error) {
	if s.config.ErrorHandler != nil {
		s.config.ErrorHandler(err)
		return
	}
	s.logger.Error("storage watcher error", "error", err)
}

func (s *Store) setWatcherActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watcherActive = active
}
