// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// logs_cmd.go - Access history commands for camguard.
//
// Command: logs
// Short:   View attempt and episode history (password required)
// Aliases: log, history
//
// Examples:
//   camguard logs                         Recent access attempts
//   camguard logs attempts --limit 50     Last 50 attempts
//   camguard logs episodes                Intrusion episodes
//   camguard logs episodes --episode ID   Evidence for one episode
//   camguard logs stats --days 7          Aggregates for the last week
//   camguard logs --json                  Structured output
//
// The history is owner-only: the command authenticates through the gate
// before reading anything, and a failed attempt lands in the very trail
// being requested.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/camguard/internal/gate"
	"github.com/jeranaias/camguard/internal/storage"
)

const defaultLogLimit = 20

// HandleLogs authenticates and shows the requested slice of history.
func HandleLogs(args Args) error {
	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	parser := NewArgParser(args.Raw)
	limit, err := parser.FlagInt("limit", defaultLogLimit)
	if err != nil {
		return exitErr(ExitUsageError, err)
	}

	password, totpCode, err := app.promptCredentials()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

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

	switch parser.Subcommand() {
	case "", "attempts":
		return showAttempts(ctx, app, limit, args.JSON)
	case "episodes":
		if id := parser.Flag("episode"); id != "" {
			return showEpisodeEvidence(ctx, app, id, args.JSON)
		}
		return showEpisodes(ctx, app, limit, args.JSON)
	case "stats":
		days, derr := parser.FlagInt("days", 30)
		if derr != nil {
			return exitErr(ExitUsageError, derr)
		}
		return showStats(ctx, app, days, args.JSON)
	default:
		return exitErr(ExitUsageError,
			fmt.Errorf("unknown logs subcommand %q (want attempts, episodes, or stats)", parser.Subcommand()))
	}
}

func showAttempts(ctx context.Context, app *App, limit int, asJSON bool) error {
	attempts, err := app.Store.ListAttempts(ctx, limit)
	if err != nil {
		return fmt.Errorf("reading attempts: %w", err)
	}

	if asJSON {
		return printJSON(attempts)
	}

	if len(attempts) == 0 {
		fmt.Println("No access attempts recorded.")
		return nil
	}
	fmt.Printf("%-20s  %-16s  %-7s  %s\n", "TIME", "SURFACE", "RESULT", "EPISODE")
	for _, a := range attempts {
		result := "denied"
		if a.Granted {
			result = "granted"
		}
		episode := a.EpisodeID
		if episode == "" {
			episode = "-"
		}
		fmt.Printf("%-20s  %-16s  %-7s  %s\n",
			a.OccurredAt.Format("2006-01-02 15:04:05"), a.Surface, result, episode)
	}
	return nil
}

func showEpisodes(ctx context.Context, app *App, limit int, asJSON bool) error {
	episodes, err := app.Store.ListEpisodes(ctx, limit)
	if err != nil {
		return fmt.Errorf("reading episodes: %w", err)
	}

	if asJSON {
		return printJSON(episodes)
	}

	if len(episodes) == 0 {
		fmt.Println("No intrusion episodes recorded.")
		return nil
	}
	for _, ep := range episodes {
		state := "open"
		if ep.ClosedAt != nil {
			state = "closed " + ep.ClosedAt.Format("2006-01-02 15:04:05")
		}
		flag := ""
		if ep.Suspected {
			flag = "  SUSPECTED"
		}
		fmt.Printf("%s  opened %s  %s%s\n", ep.ID,
			ep.OpenedAt.Format("2006-01-02 15:04:05"), state, flag)
		fmt.Printf("    failures: %d  captures: %d  alerted: %v\n",
			ep.FailureCount, ep.CaptureCount, ep.Alerted)
	}
	fmt.Println()
	fmt.Println("Use --episode ID to list the evidence for one episode.")
	return nil
}

func showEpisodeEvidence(ctx context.Context, app *App, episodeID string, asJSON bool) error {
	if _, err := app.Store.GetEpisode(ctx, episodeID); err != nil {
		if errors.Is(err, storage.ErrEpisodeNotFound) {
			return exitErr(ExitUsageError, fmt.Errorf("no episode %q", episodeID))
		}
		return err
	}
	artifacts, err := app.Store.ListArtifacts(ctx, episodeID)
	if err != nil {
		return fmt.Errorf("reading evidence catalog: %w", err)
	}

	if asJSON {
		return printJSON(artifacts)
	}

	if len(artifacts) == 0 {
		fmt.Printf("No evidence captured for episode %s.\n", episodeID)
		return nil
	}
	fmt.Printf("Evidence for episode %s:\n", episodeID)
	for _, a := range artifacts {
		fmt.Printf("  %-5s  %s  %s  (%d bytes)\n", a.Kind,
			a.CapturedAt.Format("2006-01-02 15:04:05"), a.Path, a.SizeBytes)
	}
	return nil
}

func showStats(ctx context.Context, app *App, days int, asJSON bool) error {
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

	episodeStats, err := app.Store.EpisodeStatistics(ctx)
	if err != nil {
		return fmt.Errorf("aggregating episodes: %w", err)
	}
	byDay, err := app.Store.EpisodesByDay(ctx, since)
	if err != nil {
		return fmt.Errorf("grouping episodes: %w", err)
	}
	attemptStats, err := app.Store.AttemptStatsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("aggregating attempts: %w", err)
	}
	evidenceBytes, evidenceCount, err := app.Store.EvidenceBytes(ctx)
	if err != nil {
		return fmt.Errorf("totaling evidence: %w", err)
	}

	if asJSON {
		return printJSON(map[string]any{
			"window_days":    days,
			"episodes":       episodeStats,
			"episodes_byday": byDay,
			"attempts":       attemptStats,
			"evidence_bytes": evidenceBytes,
			"evidence_count": evidenceCount,
		})
	}

	fmt.Printf("Intrusion statistics (last %d days)\n\n", days)
	fmt.Printf("  Episodes:  %d total, %d suspected, %d open\n",
		episodeStats.Total, episodeStats.Suspected, episodeStats.Open)
	fmt.Printf("  Attempts:  %d (%d granted, %d denied)\n",
		attemptStats.Total, attemptStats.Granted, attemptStats.Denied)
	fmt.Printf("  Evidence:  %d artifacts, %d bytes\n\n", evidenceCount, evidenceBytes)
	if len(byDay) == 0 {
		fmt.Println("  No episodes in the window.")
		return nil
	}
	fmt.Printf("  %-12s  %-9s  %s\n", "DAY", "EPISODES", "SUSPECTED")
	for _, dc := range byDay {
		fmt.Printf("  %-12s  %-9d  %d\n", dc.Day, dc.Episodes, dc.Suspected)
	}
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
