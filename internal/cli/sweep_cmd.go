// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// sweep_cmd.go - Retention sweep for camguard.
//
// Command: sweep
// Short:   Prune old evidence files and attempt records (password required)
// Aliases: prune
//
// Examples:
//   camguard sweep               Apply the configured retention windows
//
// Retention windows come from config: capture.retention_days for evidence
// files and storage.attempt_retention_days for the attempt trail. A window
// of 0 keeps everything.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jeranaias/camguard/internal/audit"
	"github.com/jeranaias/camguard/internal/capture"
	"github.com/jeranaias/camguard/internal/gate"
)

// HandleSweep authenticates, then applies the configured retention windows.
func HandleSweep(args Args) error {
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

	// Deleting evidence is an owner operation; it rides the same gate as
	// the history it erases.
	result, err := app.Gate.Attempt(ctx, gate.ActionViewLogs, password, totpCode)
	if err != nil {
		if errors.Is(err, gate.ErrNotConfigured) {
			return exitErr(ExitNotConfigured, err)
		}
		return err
	}
	if !result.Granted {
		fmt.Println("Access denied.")
		app.settle(app.Cfg.VideoDuration() + 20*time.Second)
		return errAccessDenied
	}

	swept := map[string]string{}

	if days := app.Cfg.Capture.RetentionDays; days > 0 {
		maxAge := time.Duration(days) * 24 * time.Hour
		sweep, serr := capture.SweepRetention(ctx, app.MediaDir, maxAge)
		if serr != nil {
			return fmt.Errorf("sweeping evidence files: %w", serr)
		}
		pruned, perr := app.Store.PruneArtifacts(ctx, time.Now().Add(-maxAge))
		if perr != nil {
			return fmt.Errorf("pruning evidence catalog: %w", perr)
		}
		swept["files_removed"] = strconv.Itoa(sweep.Removed)
		swept["catalog_pruned"] = strconv.FormatInt(pruned, 10)
		fmt.Printf("Evidence: removed %d files (%d bytes), pruned %d catalog rows.\n",
			sweep.Removed, sweep.Freed, pruned)
		if sweep.Failed > 0 {
			fmt.Printf("  %d files could not be removed.\n", sweep.Failed)
		}
	} else {
		fmt.Println("Evidence retention disabled (capture.retention_days = 0).")
	}

	if days := app.Cfg.Storage.AttemptRetentionDays; days > 0 {
		cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
		pruned, perr := app.Store.PruneAttempts(ctx, cutoff)
		if perr != nil {
			return fmt.Errorf("pruning attempts: %w", perr)
		}
		swept["attempts_pruned"] = strconv.FormatInt(pruned, 10)
		fmt.Printf("Attempts: pruned %d records older than %d days.\n", pruned, days)
	} else {
		fmt.Println("Attempt retention disabled (storage.attempt_retention_days = 0).")
	}

	app.AuditLog.Log(audit.Event{
		Timestamp: time.Now(),
		EventType: audit.EventRetentionSweep,
		Success:   true,
		Metadata:  swept,
	})
	return nil
}
