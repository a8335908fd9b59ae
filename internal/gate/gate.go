// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gate is the single entry point for every password-protected
// operation. It verifies credentials, applies the requested effect, and feeds
// the intrusion tracker. Results are sealed: a denied attempt reports denial
// and nothing else. Which factor failed, whether an episode opened, whether
// evidence capture fired, none of that reaches the caller.
package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/camguard/internal/audit"
	"github.com/jeranaias/camguard/internal/auth"
	"github.com/jeranaias/camguard/internal/camera"
	"github.com/jeranaias/camguard/internal/intrusion"
	"github.com/jeranaias/camguard/internal/storage"
	"github.com/jeranaias/camguard/internal/util"
)

// =============================================================================
// ACTIONS
// =============================================================================

// Action is a gated operation.
type Action string

const (
	// ActionEnableCamera unblocks the camera.
	ActionEnableCamera Action = "enable_camera"
	// ActionDisableCamera blocks the camera.
	ActionDisableCamera Action = "disable_camera"
	// ActionViewLogs grants access to the attempt and episode history.
	ActionViewLogs Action = "view_logs"
)

// =============================================================================
// RESULT
// =============================================================================

// Result is the sealed outcome of an attempt. When Granted is false every
// other field is zero; the caller learns nothing about why.
type Result struct {
	Granted bool
	Action  Action

	// Report describes the camera surfaces changed, for camera actions.
	Report *camera.ApplyReport

	// EffectErr is set when authentication succeeded but the effect failed
	// (for example, no mechanism could apply the block). Safe to show: the
	// caller has already proven ownership.
	EffectErr error
}

// denied is the uniform rejection.
func denied(action Action) *Result {
	return &Result{Granted: false, Action: action}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotConfigured indicates setup has not run yet. Unlike a bad password,
// this is not secret: without a credential there is nothing to protect.
var ErrNotConfigured = errors.New("camguard is not set up: run setup first")

// =============================================================================
// GATE
// =============================================================================

// AttemptRecorder persists the ordered attempt trail.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, rec storage.AttemptRecord) error
}

// Gate wires credential verification to effects and intrusion response.
type Gate struct {
	auth       *auth.Manager
	tracker    *intrusion.Tracker
	controller *camera.Controller
	cache      *camera.StatusCache
	attempts   AttemptRecorder
	auditLog   *audit.Logger

	// totpRequired forces the second factor even before enrollment is
	// checked; with it unset, TOTP is demanded only when enrolled.
	totpRequired bool
}

// Option configures a Gate.
type Option func(*Gate)

// WithAuditLogger wires attempts into the audit trail.
func WithAuditLogger(l *audit.Logger) Option {
	return func(g *Gate) { g.auditLog = l }
}

// WithStatusCache lets the gate invalidate the status cache after camera
// state changes.
func WithStatusCache(c *camera.StatusCache) Option {
	return func(g *Gate) { g.cache = c }
}

// WithTOTPRequired forces the second factor on every attempt.
func WithTOTPRequired(required bool) Option {
	return func(g *Gate) { g.totpRequired = required }
}

// New creates a Gate.
func New(authMgr *auth.Manager, tracker *intrusion.Tracker, controller *camera.Controller, attempts AttemptRecorder, opts ...Option) *Gate {
	g := &Gate{
		auth:       authMgr,
		tracker:    tracker,
		controller: controller,
		attempts:   attempts,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// =============================================================================
// ATTEMPT
// =============================================================================

// Attempt verifies credentials and, on success, applies the action's effect.
// totpCode may be empty when no second factor is enrolled or required.
//
// The error return carries only system-level conditions (not configured,
// storage unreachable); authentication failure is expressed solely through
// the sealed Result.
func (g *Gate) Attempt(ctx context.Context, action Action, password, totpCode string) (*Result, error) {
	configured, err := g.auth.IsConfigured(ctx)
	if err != nil {
		return nil, err
	}
	if !configured {
		return nil, ErrNotConfigured
	}

	if !g.verify(ctx, password, totpCode) {
		g.recordAttempt(ctx, action, false)
		return denied(action), nil
	}

	g.recordAttempt(ctx, action, true)

	result := &Result{Granted: true, Action: action}
	switch action {
	case ActionEnableCamera:
		result.Report, result.EffectErr = g.setBlocked(ctx, false)
	case ActionDisableCamera:
		result.Report, result.EffectErr = g.setBlocked(ctx, true)
	case ActionViewLogs:
		// Access grant only; the caller reads the trail itself.
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
	return result, nil
}

// verify runs the factor checks. All failure modes collapse to false.
func (g *Gate) verify(ctx context.Context, password, totpCode string) bool {
	if err := g.auth.Verify(ctx, password); err != nil {
		return false
	}

	enrolled, err := g.auth.TOTPEnrolled(ctx)
	if err != nil {
		return false
	}
	if enrolled || g.totpRequired {
		if err := g.auth.VerifyTOTP(ctx, totpCode); err != nil {
			return false
		}
	}
	return true
}

// setBlocked applies a camera state change and invalidates the cache.
func (g *Gate) setBlocked(ctx context.Context, blocked bool) (*camera.ApplyReport, error) {
	report, err := g.controller.SetBlocked(ctx, blocked)
	if g.cache != nil {
		g.cache.Invalidate()
	}
	return report, err
}

// recordAttempt feeds the trail, the audit log, and the intrusion tracker.
func (g *Gate) recordAttempt(ctx context.Context, action Action, granted bool) {
	var episodeID string
	if g.tracker != nil {
		if granted {
			g.tracker.RecordSuccess(ctx)
		} else {
			episodeID = g.tracker.RecordFailure(ctx, string(action))
		}
	}

	if g.attempts != nil {
		// Trail failures must not block the attempt path; the audit log
		// still carries the event.
		_ = g.attempts.RecordAttempt(ctx, storage.AttemptRecord{
			Surface:   string(action),
			Granted:   granted,
			EpisodeID: episodeID,
			SourceIP:  util.LocalIP(),
		})
	}
	if g.auditLog != nil {
		_ = g.auditLog.AuthAttempt(string(action), episodeID, granted, "")
	}
}
