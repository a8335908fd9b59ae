// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package camera

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// STATUS CACHE
// =============================================================================

// StatusCache memoizes controller probes for a short TTL. Probing touches the
// registry and the filesystem, so status-heavy callers (the CLI status
// command, the intrusion tracker) share one recent snapshot instead of
// hammering the surfaces.
type StatusCache struct {
	controller *Controller
	ttl        time.Duration

	mu       sync.Mutex
	cached   *Status
	cachedAt time.Time

	// Single-flight: concurrent misses share one probe.
	inflight chan struct{}
}

// NewStatusCache wraps a controller with a TTL cache.
func NewStatusCache(controller *Controller, ttl time.Duration) *StatusCache {
	return &StatusCache{
		controller: controller,
		ttl:        ttl,
	}
}

// Get returns the cached status if fresh, probing otherwise. Concurrent
// callers during a miss wait for the single in-flight probe rather than
// launching their own.
func (sc *StatusCache) Get(ctx context.Context) (*Status, error) {
	for {
		sc.mu.Lock()
		if sc.cached != nil && time.Since(sc.cachedAt) < sc.ttl {
			status := sc.cached
			sc.mu.Unlock()
			return status, nil
		}
		if sc.inflight == nil {
			done := make(chan struct{})
			sc.inflight = done
			sc.mu.Unlock()

			status, err := sc.controller.Probe(ctx)

			sc.mu.Lock()
			if err == nil {
				sc.cached = status
				sc.cachedAt = time.Now()
			}
			sc.inflight = nil
			close(done)
			sc.mu.Unlock()
			return status, err
		}
		wait := sc.inflight
		sc.mu.Unlock()

		select {
		case <-wait:
			// Re-check the cache; the probe may have failed.
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Invalidate drops the cached snapshot so the next Get probes fresh. Called
// after block-state changes and on lock-file watcher events.
func (sc *StatusCache) Invalidate() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cached = nil
}

// TTL returns the configured cache lifetime.
func (sc *StatusCache) TTL() time.Duration {
	return sc.ttl
}
