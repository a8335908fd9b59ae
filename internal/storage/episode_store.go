// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// INTRUSION EPISODE STORE
// =============================================================================

// ErrEpisodeNotFound indicates an unknown episode ID.
var ErrEpisodeNotFound = errors.New("episode not found")

// EpisodeRecord is one intrusion episode: a run of authentication failures
// tracked from first failure to quiet-window expiry or a successful auth.
type EpisodeRecord struct {
	ID           string
	OpenedAt     time.Time
	ClosedAt     *time.Time
	FailureCount int
	Suspected    bool
	CaptureCount int
	Alerted      bool
}

// EpisodeStats aggregates the episode history.
type EpisodeStats struct {
	Total     int
	Suspected int
	Open      int
}

// SaveEpisode inserts or updates an episode by ID.
func (s *Store) SaveEpisode(ctx context.Context, rec EpisodeRecord) error {
	var closedMs any
	if rec.ClosedAt != nil {
		closedMs = rec.ClosedAt.UnixMilli()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO intrusion_episodes (id, opened_at_ms, closed_at_ms, failure_count, suspected, capture_count, alerted)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  closed_at_ms = excluded.closed_at_ms,
  failure_count = excluded.failure_count,
  suspected = excluded.suspected,
  capture_count = excluded.capture_count,
  alerted = excluded.alerted;
`,
			rec.ID, rec.OpenedAt.UnixMilli(), closedMs, rec.FailureCount,
			boolInt(rec.Suspected), rec.CaptureCount, boolInt(rec.Alerted),
		)
		if err != nil {
			return fmt.Errorf("failed to save episode: %w", err)
		}
		return nil
	})
}

// GetEpisode loads one episode by ID.
func (s *Store) GetEpisode(ctx context.Context, id string) (*EpisodeRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, opened_at_ms, closed_at_ms, failure_count, suspected, capture_count, alerted
FROM intrusion_episodes WHERE id = ?;
`, id)

	rec, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEpisodeNotFound
	}
	return rec, err
}

// ListEpisodes returns the most recent episodes, newest first.
func (s *Store) ListEpisodes(ctx context.Context, limit int) ([]EpisodeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, opened_at_ms, closed_at_ms, failure_count, suspected, capture_count, alerted
FROM intrusion_episodes ORDER BY opened_at_ms DESC LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	defer rows.Close()

	var out []EpisodeRecord
	for rows.Next() {
		rec, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// EpisodeStatistics aggregates the full episode history.
func (s *Store) EpisodeStatistics(ctx context.Context) (*EpisodeStats, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(suspected), 0),
       COALESCE(SUM(CASE WHEN closed_at_ms IS NULL THEN 1 ELSE 0 END), 0)
FROM intrusion_episodes;
`)
	var stats EpisodeStats
	if err := row.Scan(&stats.Total, &stats.Suspected, &stats.Open); err != nil {
		return nil, fmt.Errorf("failed to aggregate episodes: %w", err)
	}
	return &stats, nil
}

// DayCount is one calendar day's episode tally.
type DayCount struct {
	Day       string // YYYY-MM-DD, UTC
	Episodes  int
	Suspected int
}

// EpisodesByDay groups episodes opened since the cutoff by calendar day,
// newest day first.
func (s *Store) EpisodesByDay(ctx context.Context, since time.Time) ([]DayCount, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT date(opened_at_ms / 1000, 'unixepoch') AS day,
       COUNT(*),
       COALESCE(SUM(suspected), 0)
FROM intrusion_episodes
WHERE opened_at_ms >= ?
GROUP BY day
ORDER BY day DESC;
`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to group episodes by day: %w", err)
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Episodes, &dc.Suspected); err != nil {
			return nil, fmt.Errorf("failed to scan day count: %w", err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row scanner) (*EpisodeRecord, error) {
	var rec EpisodeRecord
	var openedMs int64
	var closedMs sql.NullInt64
	var suspected, alerted int
	err := row.Scan(&rec.ID, &openedMs, &closedMs, &rec.FailureCount,
		&suspected, &rec.CaptureCount, &alerted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan episode: %w", err)
	}
	rec.OpenedAt = time.UnixMilli(openedMs)
	if closedMs.Valid {
		t := time.UnixMilli(closedMs.Int64)
		rec.ClosedAt = &t
	}
	rec.Suspected = suspected != 0
	rec.Alerted = alerted != 0
	return &rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
