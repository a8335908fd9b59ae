// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows
// +build !windows

package camera

// PlatformMechanisms returns the mechanism chain for non-Windows platforms.
// The registry surfaces are Windows-only; elsewhere the lock file carries the
// block state alone, which still drives status, auditing, and intrusion
// tracking during development and testing.
func PlatformMechanisms(mediaDir string) []Mechanism {
	return []Mechanism{
		NewLockFileMechanism(mediaDir),
	}
}
