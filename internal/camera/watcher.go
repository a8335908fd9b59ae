// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// LOCK FILE WATCHER
// =============================================================================

// LockFileWatcher invalidates the status cache when the lock file changes
// outside the controller (another camguard process, or manual removal).
// Events are debounced: editors and copy tools fire bursts of writes for a
// single logical change.
type LockFileWatcher struct {
	cache    *StatusCache
	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
}

// NewLockFileWatcher creates a watcher over the media directory holding the
// lock file. The directory is created if missing so it can be watched.
func NewLockFileWatcher(cache *StatusCache, mediaDir string, debounce time.Duration) (*LockFileWatcher, error) {
	if err := os.MkdirAll(mediaDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &LockFileWatcher{
		cache:    cache,
		dir:      mediaDir,
		debounce: debounce,
		watcher:  watcher,
	}, nil
}

// Watch starts watching until the context is cancelled or Close is called.
func (w *LockFileWatcher) Watch(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	go w.processEvents(ctx)
	return nil
}

func (w *LockFileWatcher) processEvents(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != LockFileName {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case <-timerC:
			w.cache.Invalidate()
			timer = nil
			timerC = nil
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are non-fatal: the TTL still bounds staleness.
		}
	}
}

// Close stops the watcher and releases resources.
func (w *LockFileWatcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	return w.watcher.Close()
}
