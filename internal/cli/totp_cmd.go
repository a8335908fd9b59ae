// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// totp_cmd.go - Second-factor management for camguard.
//
// Command: totp
// Short:   Enroll, remove, or check the TOTP second factor
// Aliases: 2fa
//
// Examples:
//   camguard totp enroll         Enroll an authenticator app
//   camguard totp remove         Remove the second factor
//   camguard totp status         Show enrollment state
//
// Once enrolled, every gated action demands a code alongside the password.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/camguard/internal/auth"
)

// HandleTOTP routes the totp subcommands.
func HandleTOTP(args Args) error {
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

	switch args.Subcommand {
	case "enroll", "add":
		return totpEnroll(ctx, app)
	case "remove", "disable":
		return totpRemove(ctx, app, args)
	case "", "status":
		enrolled, terr := app.Auth.TOTPEnrolled(ctx)
		if terr != nil {
			return terr
		}
		if enrolled {
			fmt.Println("TOTP second factor: enrolled")
		} else {
			fmt.Println("TOTP second factor: not enrolled")
			fmt.Println("Run `camguard totp enroll` to add one.")
		}
		return nil
	default:
		return exitErr(ExitUsageError,
			fmt.Errorf("unknown totp subcommand %q (want enroll, remove, or status)", args.Subcommand))
	}
}

func totpEnroll(ctx context.Context, app *App) error {
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	key, err := app.Auth.EnrollTOTP(ctx, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return app.denyDirect(ctx, "totp_enroll")
		}
		return fmt.Errorf("enrolling TOTP: %w", err)
	}
	app.grantDirect(ctx, "totp_enroll")

	fmt.Println("TOTP enrolled. Add this secret to your authenticator app:")
	fmt.Println()
	fmt.Printf("  Secret: %s\n", key.Secret())
	fmt.Printf("  URL:    %s\n", key.URL())
	fmt.Println()

	// Confirm the authenticator produces valid codes before the owner
	// locks themself out behind a factor that was never scanned.
	code, err := promptLine("Enter a code from the app to verify: ")
	if err != nil {
		return err
	}
	if verr := app.Auth.VerifyTOTP(ctx, code); verr != nil {
		fmt.Println("Warning: that code did not verify. Check the authenticator")
		fmt.Println("clock, or run `camguard totp remove` and enroll again.")
		return nil
	}
	fmt.Println("Code verified. Gated commands now require password + code.")
	return nil
}

func totpRemove(ctx context.Context, app *App, args Args) error {
	enrolled, err := app.Auth.TOTPEnrolled(ctx)
	if err != nil {
		return err
	}
	if !enrolled {
		fmt.Println("No TOTP second factor is enrolled.")
		return nil
	}

	ok, err := confirmAction(args, "Remove the TOTP second factor")
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Cancelled.")
		return nil
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}
	// Removing the second factor is itself two-factor: password plus a
	// current code from the enrolled authenticator.
	code, err := promptLine("TOTP code: ")
	if err != nil {
		return err
	}
	if err := app.Auth.UnenrollTOTP(ctx, password, code); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return app.denyDirect(ctx, "totp_remove")
		}
		return fmt.Errorf("removing TOTP: %w", err)
	}
	app.grantDirect(ctx, "totp_remove")
	fmt.Println("TOTP second factor removed.")
	return nil
}
