// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// camera_cmd.go - Camera enable/disable commands for camguard.
//
// Command: enable
// Short:   Unblock the camera (password required)
// Aliases: unblock, on
//
// Command: disable
// Short:   Block the camera (password required)
// Aliases: block, off
//
// Examples:
//   camguard enable              Prompt for password, then unblock
//   camguard disable             Prompt for password, then block
//
// Both commands go through the access gate: a failed attempt is recorded,
// feeds the intrusion tracker, and produces no explanation beyond "access
// denied".
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/camguard/internal/camera"
	"github.com/jeranaias/camguard/internal/gate"
)

// HandleEnable unblocks the camera after authentication.
func HandleEnable(args Args) error {
	return runCameraAction(args, gate.ActionEnableCamera, "unblocked")
}

// HandleDisable blocks the camera after authentication.
func HandleDisable(args Args) error {
	return runCameraAction(args, gate.ActionDisableCamera, "blocked")
}

func runCameraAction(args Args, action gate.Action, verb string) error {
	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	password, totpCode, err := app.promptCredentials()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, err := app.Gate.Attempt(ctx, action, password, totpCode)
	if err != nil {
		if errors.Is(err, gate.ErrNotConfigured) {
			return exitErr(ExitNotConfigured, err)
		}
		return err
	}

	if !result.Granted {
		fmt.Println("Access denied.")
		// Give the intrusion response time to finish before the process
		// exits; the caller sees nothing of it.
		app.settle(app.Cfg.VideoDuration() + 20*time.Second)
		return errAccessDenied
	}

	if result.EffectErr != nil {
		var adminErr *camera.AdminRequiredError
		if errors.As(result.EffectErr, &adminErr) {
			return fmt.Errorf("camera could not be %s: %w (try an elevated prompt)", verb, result.EffectErr)
		}
		return fmt.Errorf("camera could not be %s: %w", verb, result.EffectErr)
	}

	if !args.Quiet {
		fmt.Printf("Camera %s.\n", verb)
		if result.Report != nil && len(result.Report.Succeeded) > 0 {
			fmt.Printf("  Mechanisms: %v\n", result.Report.Succeeded)
		}
		if result.Report != nil && len(result.Report.Failed) > 0 {
			for id, ferr := range result.Report.Failed {
				fmt.Printf("  Partial: %s: %v\n", id, ferr)
			}
		}
	}
	return nil
}
