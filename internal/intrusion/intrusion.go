// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package intrusion tracks runs of failed authentication attempts as
// episodes and drives the silent response: evidence capture on every failure
// (capped per episode) and an owner alert once a run crosses the suspicion
// threshold.
//
// The tracker is a two-state machine. It sits Idle until a failure opens an
// episode; further failures inside the sliding window extend the episode, and
// either a successful authentication or window expiry closes it. All
// transitions are serialized, so a burst of concurrent failures lands in one
// episode in arrival order.
package intrusion

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/camguard/internal/audit"
	"github.com/jeranaias/camguard/internal/capture"
	"github.com/jeranaias/camguard/internal/notify"
	"github.com/jeranaias/camguard/internal/storage"
	"github.com/jeranaias/camguard/internal/tasks"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Store persists episodes and their evidence catalog.
type Store interface {
	SaveEpisode(ctx context.Context, rec storage.EpisodeRecord) error
	RecordArtifact(ctx context.Context, rec storage.ArtifactRecord) error
	ListArtifacts(ctx context.Context, episodeID string) ([]storage.ArtifactRecord, error)
}

// Capturer records camera evidence.
type Capturer interface {
	CaptureEvidence(ctx context.Context) (*capture.Artifact, error)
}

// Alerter notifies the owner of a suspected intrusion.
type Alerter interface {
	Send(ctx context.Context, alert notify.Alert) error
}

// =============================================================================
// EPISODE
// =============================================================================

// Episode is the in-memory state of the current run of failures.
type Episode struct {
	ID           string
	OpenedAt     time.Time
	LastFailure  time.Time
	FailureCount int
	CaptureCount int
	Suspected    bool
	Alerted      bool
	Surface      string
}

// =============================================================================
// TRACKER
// =============================================================================

// Options configures the Tracker.
type Options struct {
	// Window is the sliding quiet window. A failure more than Window after
	// the previous one starts a new episode.
	Window time.Duration
	// SuspectThreshold is the failure count that marks an episode suspected
	// and triggers the owner alert.
	SuspectThreshold int
	// CaptureCap bounds evidence captures per episode.
	CaptureCap int
}

// Tracker is the episode state machine.
type Tracker struct {
	opts     Options
	store    Store
	capturer Capturer
	alerter  Alerter
	queue    *tasks.Queue
	auditLog *audit.Logger

	mu      sync.Mutex
	current *Episode

	// now is replaceable in tests
	now func() time.Time

	cancelSweep context.CancelFunc
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithAuditLogger wires episode transitions into the audit trail.
func WithAuditLogger(l *audit.Logger) TrackerOption {
	return func(t *Tracker) { t.auditLog = l }
}

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker. The queue carries capture and alert work so
// failure handling returns immediately.
func NewTracker(opts Options, store Store, capturer Capturer, alerter Alerter, queue *tasks.Queue, extra ...TrackerOption) *Tracker {
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	if opts.SuspectThreshold <= 0 {
		opts.SuspectThreshold = 3
	}
	if opts.CaptureCap <= 0 {
		opts.CaptureCap = 3
	}
	t := &Tracker{
		opts:     opts,
		store:    store,
		capturer: capturer,
		alerter:  alerter,
		queue:    queue,
		now:      time.Now,
	}
	for _, o := range extra {
		o(t)
	}
	return t
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// RecordFailure feeds one failed attempt into the machine and returns the
// episode ID it landed in. Evidence capture and, at the threshold, the owner
// alert are queued as background tasks.
func (t *Tracker) RecordFailure(ctx context.Context, surface string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	// Window expiry rolls the old episode before the new failure counts
	if t.current != nil && now.Sub(t.current.LastFailure) > t.opts.Window {
		t.closeLocked(ctx, now)
	}

	if t.current == nil {
		t.current = &Episode{
			ID:       uuid.New().String(),
			OpenedAt: now,
			Surface:  surface,
		}
		t.logEpisode(audit.EventEpisodeOpened, t.current.ID, nil)
	}

	ep := t.current
	ep.FailureCount++
	ep.LastFailure = now

	if !ep.Suspected && ep.FailureCount >= t.opts.SuspectThreshold {
		ep.Suspected = true
		t.logEpisode(audit.EventEpisodeSuspected, ep.ID, map[string]string{
			"failures": strconv.Itoa(ep.FailureCount),
		})
	}

	if ep.CaptureCount < t.opts.CaptureCap {
		ep.CaptureCount++
		t.enqueueCapture(ep.ID)
	}
	if ep.Suspected && !ep.Alerted {
		ep.Alerted = true
		t.enqueueAlert(ep.ID, ep.Surface, ep.FailureCount, ep.OpenedAt)
	}

	t.persistLocked(ctx, nil)
	return ep.ID
}

// RecordSuccess closes any open episode. A successful authentication ends
// the run.
func (t *Tracker) RecordSuccess(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil {
		t.closeLocked(ctx, t.now())
	}
}

// Current returns a snapshot of the open episode, or nil when idle.
func (t *Tracker) Current() *Episode {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil
	}
	ep := *t.current
	return &ep
}

// closeLocked finalizes the open episode (caller must hold lock).
func (t *Tracker) closeLocked(ctx context.Context, at time.Time) {
	ep := t.current
	t.current = nil
	t.persistEpisode(ctx, ep, &at)
	t.logEpisode(audit.EventEpisodeClosed, ep.ID, map[string]string{
		"failures": strconv.Itoa(ep.FailureCount),
		"captures": strconv.Itoa(ep.CaptureCount),
	})
}

// persistLocked saves the current open episode (caller must hold lock).
func (t *Tracker) persistLocked(ctx context.Context, closedAt *time.Time) {
	if t.current != nil {
		t.persistEpisode(ctx, t.current, closedAt)
	}
}

func (t *Tracker) persistEpisode(ctx context.Context, ep *Episode, closedAt *time.Time) {
	if t.store == nil {
		return
	}
	// Persistence failures must not change gate behavior; the audit trail
	// still carries the event.
	_ = t.store.SaveEpisode(ctx, storage.EpisodeRecord{
		ID:           ep.ID,
		OpenedAt:     ep.OpenedAt,
		ClosedAt:     closedAt,
		FailureCount: ep.FailureCount,
		Suspected:    ep.Suspected,
		CaptureCount: ep.CaptureCount,
		Alerted:      ep.Alerted,
	})
}

// =============================================================================
// BACKGROUND WORK
// =============================================================================

// enqueueCapture queues one evidence capture for the episode.
func (t *Tracker) enqueueCapture(episodeID string) {
	if t.queue == nil || t.capturer == nil {
		return
	}
	task := tasks.NewTask("capture evidence", func(ctx context.Context) error {
		artifact, err := t.capturer.CaptureEvidence(ctx)
		if err != nil {
			t.logEpisode(audit.EventCaptureFailed, episodeID, map[string]string{"error": err.Error()})
			return err
		}
		if t.store != nil {
			_ = t.store.RecordArtifact(ctx, storage.ArtifactRecord{
				EpisodeID:  episodeID,
				Kind:       string(artifact.Kind),
				Path:       artifact.Path,
				CapturedAt: artifact.CapturedAt,
				SizeBytes:  artifact.SizeBytes,
			})
		}
		t.logEpisode(audit.EventCaptureStored, episodeID, map[string]string{
			"kind": string(artifact.Kind),
			"path": artifact.Path,
		})
		return nil
	})
	task.EpisodeID = episodeID
	_ = t.queue.Add(task)
}

// enqueueAlert queues the one owner alert for the episode.
func (t *Tracker) enqueueAlert(episodeID, surface string, failures int, openedAt time.Time) {
	if t.queue == nil || t.alerter == nil {
		return
	}
	task := tasks.NewTask("send intrusion alert", func(ctx context.Context) error {
		var artifacts []string
		if t.store != nil {
			if recs, err := t.store.ListArtifacts(ctx, episodeID); err == nil {
				for _, r := range recs {
					artifacts = append(artifacts, r.Path)
				}
			}
		}
		err := t.alerter.Send(ctx, notify.Alert{
			EpisodeID:    episodeID,
			OccurredAt:   openedAt,
			FailureCount: failures,
			Surface:      surface,
			Artifacts:    artifacts,
		})
		if err != nil {
			t.logEpisode(audit.EventAlertFailed, episodeID, map[string]string{"error": err.Error()})
			return err
		}
		t.logEpisode(audit.EventAlertSent, episodeID, nil)
		return nil
	})
	task.EpisodeID = episodeID
	_ = t.queue.Add(task)
}

// =============================================================================
// WINDOW SWEEPER
// =============================================================================

// StartSweeper closes expired episodes in the background so an abandoned run
// of failures does not hold an episode open forever. Returns a stop func.
func (t *Tracker) StartSweeper(ctx context.Context, interval time.Duration) func() {
	if interval <= 0 {
		interval = t.opts.Window / 4
		if interval <= 0 {
			interval = 15 * time.Second
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancelSweep = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.sweep(ctx)
			}
		}
	}()
	return cancel
}

// sweep closes the current episode if its window has lapsed.
func (t *Tracker) sweep(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil && t.now().Sub(t.current.LastFailure) > t.opts.Window {
		t.closeLocked(ctx, t.now())
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (t *Tracker) logEpisode(eventType, episodeID string, metadata map[string]string) {
	if t.auditLog == nil {
		return
	}
	_ = t.auditLog.Episode(eventType, episodeID, metadata)
}

