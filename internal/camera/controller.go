// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package camera

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/jeranaias/camguard/internal/audit"
	"github.com/jeranaias/camguard/internal/util"
)

// =============================================================================
// STATUS
// =============================================================================

// SurfaceStatus is the probed state of a single mechanism.
type SurfaceStatus struct {
	ID    string
	State State
	Err   error
}

// Status is a point-in-time view of the camera block state across all
// surfaces. Blocked is the OR of the surfaces: one denying surface is enough
// to keep the camera off.
type Status struct {
	Blocked  bool
	Surfaces []SurfaceStatus
}

// ApplyReport records the outcome of a block-state change per mechanism.
type ApplyReport struct {
	Blocked   bool
	Succeeded []string
	Failed    map[string]error
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller drives the mechanism chain. Changes are applied opportunistically:
// every mechanism gets the chance to take the new state, and the change
// succeeds if at least one does. Surfaces that refuse (typically for lack of
// elevation) are reported, not fatal.
type Controller struct {
	mu         sync.Mutex
	mechanisms []Mechanism
	auditLog   *audit.Logger
	statePath  string
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithAuditLogger wires block-state changes into the audit trail.
func WithAuditLogger(l *audit.Logger) ControllerOption {
	return func(c *Controller) { c.auditLog = l }
}

// WithStateFile records which mechanisms a block actually landed on, so the
// matching unblock reverses only those. Without the record an unblock touches
// every mechanism, and on Windows that can create registry keys that never
// existed on the machine.
func WithStateFile(path string) ControllerOption {
	return func(c *Controller) { c.statePath = path }
}

// NewController creates a controller over the given mechanism chain, applied
// in order.
func NewController(mechanisms []Mechanism, opts ...ControllerOption) *Controller {
	c := &Controller{mechanisms: mechanisms}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mechanisms returns the mechanism IDs in apply order.
func (c *Controller) Mechanisms() []string {
	ids := make([]string, len(c.mechanisms))
	for i, m := range c.mechanisms {
		ids[i] = m.ID()
	}
	return ids
}

// SetBlocked applies the target state to every mechanism. It returns an
// ApplyError only when no mechanism succeeded; in that case no surface
// changed and the previous state stands.
func (c *Controller) SetBlocked(ctx context.Context, blocked bool) (*ApplyReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	targets := c.mechanisms
	if !blocked {
		targets = c.unblockTargets()
	}

	report := &ApplyReport{
		Blocked: blocked,
		Failed:  make(map[string]error),
	}
	for _, m := range targets {
		if err := ctx.Err(); err != nil {
			report.Failed[m.ID()] = err
			continue
		}
		if err := m.Apply(ctx, blocked); err != nil {
			report.Failed[m.ID()] = err
			continue
		}
		report.Succeeded = append(report.Succeeded, m.ID())
	}

	if len(report.Succeeded) == 0 {
		err := &ApplyError{Blocked: blocked, Failed: report.Failed}
		c.logChange(blocked, report.Succeeded, err)
		return report, err
	}

	c.saveState(blocked, report.Succeeded)
	c.logChange(blocked, report.Succeeded, nil)
	return report, nil
}

// blockState is the on-disk record of the mechanisms that took the last block.
type blockState struct {
	Blocked    bool     `json:"blocked"`
	Mechanisms []string `json:"mechanisms"`
}

// unblockTargets narrows the chain to the mechanisms recorded as applied by
// the last block. With no record (first run, state file removed, or no state
// file configured) every mechanism is tried.
func (c *Controller) unblockTargets() []Mechanism {
	if c.statePath == "" {
		return c.mechanisms
	}
	data, err := os.ReadFile(c.statePath)
	if err != nil {
		return c.mechanisms
	}
	var st blockState
	if err := json.Unmarshal(data, &st); err != nil || !st.Blocked {
		return c.mechanisms
	}
	applied := make(map[string]bool, len(st.Mechanisms))
	for _, id := range st.Mechanisms {
		applied[id] = true
	}
	var targets []Mechanism
	for _, m := range c.mechanisms {
		if applied[m.ID()] {
			targets = append(targets, m)
		}
	}
	if len(targets) == 0 {
		return c.mechanisms
	}
	return targets
}

func (c *Controller) saveState(blocked bool, succeeded []string) {
	if c.statePath == "" {
		return
	}
	if !blocked {
		// The record only matters while a block is in force.
		_ = os.Remove(c.statePath)
		return
	}
	data, err := json.Marshal(blockState{Blocked: true, Mechanisms: succeeded})
	if err != nil {
		return
	}
	// State-file failures are not fatal: the unblock falls back to trying
	// every mechanism, which was the behavior before the record existed.
	_ = util.AtomicWriteFile(c.statePath, data, 0600)
}

// Probe queries every mechanism and aggregates the effective state.
func (c *Controller) Probe(ctx context.Context) (*Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := &Status{}
	for _, m := range c.mechanisms {
		state, err := m.Probe(ctx)
		status.Surfaces = append(status.Surfaces, SurfaceStatus{
			ID:    m.ID(),
			State: state,
			Err:   err,
		})
		if state == StateBlocked {
			status.Blocked = true
		}
	}
	return status, nil
}

func (c *Controller) logChange(blocked bool, succeeded []string, err error) {
	if c.auditLog == nil {
		return
	}
	// Audit failures surface through the logger's own failure callback.
	_ = c.auditLog.BlockChange(blocked, succeeded, err)
}
