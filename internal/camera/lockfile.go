// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// =============================================================================
// LOCK FILE MECHANISM
// =============================================================================

// LockFileName is the marker file that records the blocked state on disk.
const LockFileName = "camera_blocked.lock"

// LockFileMechanism records the block state as a marker file in the media
// directory. It enforces nothing by itself, but it is the one surface that
// works without privileges on every platform, and it survives reboots so the
// controller can restore intent on startup.
type LockFileMechanism struct {
	dir string
}

// NewLockFileMechanism creates a lock-file mechanism rooted at dir.
func NewLockFileMechanism(dir string) *LockFileMechanism {
	return &LockFileMechanism{dir: dir}
}

// ID returns the mechanism identifier.
func (m *LockFileMechanism) ID() string { return MechanismLockFile }

// Path returns the full lock file path.
func (m *LockFileMechanism) Path() string {
	return filepath.Join(m.dir, LockFileName)
}

// Probe reports blocked when the lock file exists.
func (m *LockFileMechanism) Probe(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return StateUnknown, err
	}
	_, err := os.Stat(m.Path())
	if err == nil {
		return StateBlocked, nil
	}
	if os.IsNotExist(err) {
		return StateUnblocked, nil
	}
	return StateUnknown, fmt.Errorf("failed to stat lock file: %w", err)
}

// Apply creates or removes the lock file.
func (m *LockFileMechanism) Apply(ctx context.Context, block bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := m.Path()
	if block {
		if err := os.MkdirAll(m.dir, 0700); err != nil {
			return fmt.Errorf("failed to create media directory: %w", err)
		}
		// Content is informational; existence is the state.
		content := fmt.Sprintf("blocked at %s\n", time.Now().Format(time.RFC3339))
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			return fmt.Errorf("failed to write lock file: %w", err)
		}
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}
