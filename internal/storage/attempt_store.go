// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// =============================================================================
// ACCESS ATTEMPT STORE
// =============================================================================

// AttemptRecord is one authentication attempt against a gated surface.
// Attempts are ordered by insertion; the rowid preserves arrival order even
// when timestamps collide.
type AttemptRecord struct {
	ID         int64
	OccurredAt time.Time
	Surface    string
	Granted    bool
	EpisodeID  string
	SourceIP   string
}

// AttemptStats aggregates the attempt trail.
type AttemptStats struct {
	Total   int
	Granted int
	Denied  int
}

// RecordAttempt appends an attempt to the trail.
func (s *Store) RecordAttempt(ctx context.Context, rec AttemptRecord) error {
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now()
	}
	granted := 0
	if rec.Granted {
		granted = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO access_attempts (occurred_at_ms, surface, granted, episode_id, source_ip)
VALUES (?, ?, ?, ?, ?);
`,
			rec.OccurredAt.UnixMilli(), rec.Surface, granted,
			nullable(rec.EpisodeID), nullable(rec.SourceIP),
		)
		if err != nil {
			return fmt.Errorf("failed to record attempt: %w", err)
		}
		return nil
	})
}

// ListAttempts returns the most recent attempts, newest first.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]AttemptRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, occurred_at_ms, surface, granted, episode_id, source_ip
FROM access_attempts ORDER BY id DESC LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var rec AttemptRecord
		var occurredMs int64
		var granted int
		var episodeID, sourceIP sql.NullString
		if err := rows.Scan(&rec.ID, &occurredMs, &rec.Surface, &granted, &episodeID, &sourceIP); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		rec.OccurredAt = time.UnixMilli(occurredMs)
		rec.Granted = granted != 0
		rec.EpisodeID = episodeID.String
		rec.SourceIP = sourceIP.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AttemptStatsSince aggregates attempts recorded at or after since.
func (s *Store) AttemptStatsSince(ctx context.Context, since time.Time) (*AttemptStats, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(granted), 0)
FROM access_attempts WHERE occurred_at_ms >= ?;
`, since.UnixMilli())

	var stats AttemptStats
	if err := row.Scan(&stats.Total, &stats.Granted); err != nil {
		return nil, fmt.Errorf("failed to aggregate attempts: %w", err)
	}
	stats.Denied = stats.Total - stats.Granted
	return &stats, nil
}

// PruneAttempts removes attempts older than before. Returns rows removed.
func (s *Store) PruneAttempts(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM access_attempts WHERE occurred_at_ms < ?;`, before.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to prune attempts: %w", err)
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return removed, err
}

// nullable maps "" to NULL for optional text columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
