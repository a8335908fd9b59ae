// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows
// +build !windows

package capture

import "os/exec"

// hideWindow is a no-op on platforms without console window creation.
func hideWindow(_ *exec.Cmd) {}
