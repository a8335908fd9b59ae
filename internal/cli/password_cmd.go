// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// password_cmd.go - Password rotation for camguard.
//
// Command: change-password
// Short:   Rotate the owner password
// Aliases: passwd
//
// Rotation verifies the current password itself, so it does not go through
// the gate; a wrong current password still feeds the intrusion tracker the
// same way a gated denial would.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/camguard/internal/audit"
	"github.com/jeranaias/camguard/internal/auth"
)

// HandleChangePassword rotates the owner password.
func HandleChangePassword(args Args) error {
	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	configured, err := app.Auth.IsConfigured(ctx)
	if err != nil {
		return err
	}
	if !configured {
		return exitErr(ExitNotConfigured, errors.New("camguard is not set up: run setup first"))
	}

	current, err := promptPassword("Current password: ")
	if err != nil {
		return err
	}
	next, err := promptNewPassword("New password: ")
	if err != nil {
		return err
	}

	err = app.Auth.ChangePassword(ctx, current, next)
	switch {
	case err == nil:
		app.grantDirect(ctx, "change_password")
		app.AuditLog.Log(audit.Event{
			Timestamp: time.Now(),
			EventType: audit.EventPasswordChanged,
			Success:   true,
		})
		fmt.Println("Password changed.")
		return nil

	case errors.Is(err, auth.ErrWeakPassword):
		return exitErr(ExitUsageError, err)

	case errors.Is(err, auth.ErrInvalidCredentials):
		return app.denyDirect(ctx, "change_password")

	default:
		return fmt.Errorf("changing password: %w", err)
	}
}
