// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package camera controls the host camera block state through a chain of
// independent blocking mechanisms. Each mechanism is a separate enforcement
// surface (system consent settings, per-app consent, machine policy, and a
// marker lock file); the controller applies them opportunistically and treats
// the camera as blocked if any surface reports blocked.
package camera

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// STATE
// =============================================================================

// State is the block state reported by a mechanism or the controller.
type State int

const (
	// StateUnknown means the mechanism could not determine the state.
	StateUnknown State = iota
	// StateUnblocked means the camera is allowed on this surface.
	StateUnblocked
	// StateBlocked means the camera is denied on this surface.
	StateBlocked
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateBlocked:
		return "blocked"
	case StateUnblocked:
		return "unblocked"
	default:
		return "unknown"
	}
}

// =============================================================================
// MECHANISM
// =============================================================================

// Mechanism IDs, in the order the controller applies them.
const (
	MechanismConsentRegistry = "consent_registry"
	MechanismAppConsent      = "app_consent"
	MechanismGroupPolicy     = "group_policy"
	MechanismLockFile        = "lock_file"
)

// Mechanism is a single camera enforcement surface.
type Mechanism interface {
	// ID returns the stable mechanism identifier.
	ID() string
	// Probe reports the current state of this surface. A probe failure
	// returns StateUnknown with the error.
	Probe(ctx context.Context) (State, error)
	// Apply sets the surface to blocked or unblocked.
	Apply(ctx context.Context, block bool) error
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrAdminRequired is wrapped by mechanisms that need elevated privileges.
var ErrAdminRequired = errors.New("administrator privileges required")

// AdminRequiredError reports which mechanism was refused for lack of
// privileges. It unwraps to ErrAdminRequired.
type AdminRequiredError struct {
	Mechanism string
	Err       error
}

func (e *AdminRequiredError) Error() string {
	return fmt.Sprintf("%s: administrator privileges required: %v", e.Mechanism, e.Err)
}

func (e *AdminRequiredError) Unwrap() error { return ErrAdminRequired }

// ApplyError reports a block-state change where no mechanism succeeded.
// Partial success is not an ApplyError: the controller tolerates individual
// surface failures as long as at least one surface took the change.
type ApplyError struct {
	Blocked bool
	Failed  map[string]error
}

func (e *ApplyError) Error() string {
	op := "unblock"
	if e.Blocked {
		op = "block"
	}
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	return fmt.Sprintf("failed to %s camera: no mechanism succeeded (%s)", op, strings.Join(ids, ", "))
}

// AdminRequired reports whether any failed mechanism needs elevation.
func (e *ApplyError) AdminRequired() bool {
	for _, err := range e.Failed {
		if errors.Is(err, ErrAdminRequired) {
			return true
		}
	}
	return false
}
