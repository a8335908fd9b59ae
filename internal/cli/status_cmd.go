// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status_cmd.go - Status command implementation for camguard.
//
// Command: status
// Short:   Show camera block state and protection summary
// Aliases: s
//
// Examples:
//   camguard status              Show status
//   camguard status --json       Status in JSON format
//
// Status Sections:
//   Camera:     Effective block state and per-surface detail
//   Protection: Setup state, TOTP enrollment, alerting
//   Activity:   Attempt counts (24h) and episode totals
//
// Status is deliberately ungated: it reveals only what the owner could see
// by opening the camera app, never attempt or evidence detail.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// statusJSON is the machine-readable status shape.
type statusJSON struct {
	Blocked    bool           `json:"blocked"`
	Surfaces   []surfaceJSON  `json:"surfaces"`
	Configured bool           `json:"configured"`
	TOTP       bool           `json:"totp_enrolled"`
	Alerts     bool           `json:"alerts_enabled"`
	Attempts   map[string]int `json:"attempts_24h"`
	Episodes   map[string]int `json:"episodes"`
}

type surfaceJSON struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// HandleStatus shows the current block state and a protection summary.
func HandleStatus(args Args) error {
	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	probeCtx, probeCancel := context.WithTimeout(ctx, app.Cfg.ProbeTimeout())
	status, err := app.Cache.Get(probeCtx)
	probeCancel()
	if err != nil {
		return fmt.Errorf("probing camera state: %w", err)
	}

	configured, _ := app.Auth.IsConfigured(ctx)
	totp := false
	if configured {
		totp, _ = app.Auth.TOTPEnrolled(ctx)
	}

	attemptStats, _ := app.Store.AttemptStatsSince(ctx, time.Now().Add(-24*time.Hour))
	episodeStats, _ := app.Store.EpisodeStatistics(ctx)

	if args.JSON {
		out := statusJSON{
			Blocked:    status.Blocked,
			Configured: configured,
			TOTP:       totp,
			Alerts:     app.Cfg.Alerts.Enabled,
			Attempts:   map[string]int{},
			Episodes:   map[string]int{},
		}
		for _, s := range status.Surfaces {
			sj := surfaceJSON{ID: s.ID, State: s.State.String()}
			if s.Err != nil {
				sj.Error = s.Err.Error()
			}
			out.Surfaces = append(out.Surfaces, sj)
		}
		if attemptStats != nil {
			out.Attempts["total"] = attemptStats.Total
			out.Attempts["granted"] = attemptStats.Granted
			out.Attempts["denied"] = attemptStats.Denied
		}
		if episodeStats != nil {
			out.Episodes["total"] = episodeStats.Total
			out.Episodes["suspected"] = episodeStats.Suspected
			out.Episodes["open"] = episodeStats.Open
		}
		data, jerr := json.MarshalIndent(out, "", "  ")
		if jerr != nil {
			return jerr
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println("camguard status")
	fmt.Println()
	if status.Blocked {
		fmt.Println("  Camera:     BLOCKED")
	} else {
		fmt.Println("  Camera:     unblocked")
	}
	for _, s := range status.Surfaces {
		if s.Err != nil {
			fmt.Printf("    %-18s %s (%v)\n", s.ID+":", s.State, s.Err)
		} else {
			fmt.Printf("    %-18s %s\n", s.ID+":", s.State)
		}
	}
	fmt.Println()
	fmt.Printf("  Configured: %v\n", configured)
	fmt.Printf("  TOTP:       %v\n", totp)
	fmt.Printf("  Alerts:     %v\n", app.Cfg.Alerts.Enabled)
	if attemptStats != nil {
		fmt.Printf("  Attempts:   %d in 24h (%d granted, %d denied)\n",
			attemptStats.Total, attemptStats.Granted, attemptStats.Denied)
	}
	if episodeStats != nil {
		fmt.Printf("  Episodes:   %d total, %d suspected, %d open\n",
			episodeStats.Total, episodeStats.Suspected, episodeStats.Open)
	}
	if !configured {
		fmt.Println()
		fmt.Println("  Run `camguard setup` to create the owner password.")
	}
	return nil
}
