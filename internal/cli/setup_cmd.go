// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// setup_cmd.go - First-run setup for camguard.
//
// Command: setup
// Short:   Create the owner password and apply the initial camera block
//
// Examples:
//   camguard setup               Interactive first-run setup
//   camguard setup --confirm     Skip the initial-block confirmation
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/camguard/internal/audit"
	"github.com/jeranaias/camguard/internal/auth"
)

// HandleSetup runs the first-run wizard: owner password creation, initial
// camera block, and a config file on disk for later edits.
func HandleSetup(args Args) error {
	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()

	configured, err := app.Auth.IsConfigured(ctx)
	if err != nil {
		return fmt.Errorf("checking existing credential: %w", err)
	}
	if configured {
		return fmt.Errorf("camguard is already set up; use change-password to rotate the password")
	}

	fmt.Println("camguard first-run setup")
	fmt.Printf("Passwords must be at least %d characters", app.Cfg.Auth.MinPasswordLength)
	var reqs []string
	if app.Cfg.Auth.RequireUpper {
		reqs = append(reqs, "an uppercase letter")
	}
	if app.Cfg.Auth.RequireLower {
		reqs = append(reqs, "a lowercase letter")
	}
	if app.Cfg.Auth.RequireDigit {
		reqs = append(reqs, "a digit")
	}
	for i, r := range reqs {
		if i == 0 {
			fmt.Print(" and include ")
		} else {
			fmt.Print(", ")
		}
		fmt.Print(r)
	}
	fmt.Println(".")
	fmt.Println()

	for {
		password, perr := promptNewPassword("New password: ")
		if perr != nil {
			if errors.Is(perr, errPasswordMismatch) {
				fmt.Printf("  %v\n", perr)
				continue
			}
			return perr
		}
		err = app.Auth.Setup(ctx, password)
		if err == nil {
			break
		}
		if errors.Is(err, auth.ErrWeakPassword) {
			fmt.Printf("  %v\n", err)
			continue
		}
		return fmt.Errorf("saving credential: %w", err)
	}

	fmt.Println("Password saved.")

	// Write the default config next to the credential so the owner has a
	// file to edit for alerts, capture, and retention settings.
	if args.Config == "" {
		if err := app.Cfg.Save(); err != nil {
			fmt.Printf("Warning: could not write config file: %v\n", err)
		}
	}

	blockNow, err := confirmAction(args, "Block the camera now")
	if err != nil {
		return err
	}
	if blockNow {
		applyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		report, berr := app.Controller.SetBlocked(applyCtx, true)
		if berr != nil {
			fmt.Printf("Warning: camera block failed: %v\n", berr)
		} else {
			fmt.Printf("Camera blocked via: %v\n", report.Succeeded)
		}
		app.Cache.Invalidate()
	}

	app.AuditLog.Log(audit.Event{
		Timestamp: time.Now(),
		EventType: audit.EventSetupCompleted,
		Success:   true,
		Detail:    "owner credential created",
	})

	fmt.Println()
	fmt.Println("Setup complete. Next steps:")
	fmt.Println("  camguard totp enroll    Add a second factor")
	fmt.Println("  camguard status         Check the camera state")
	return nil
}
