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
// EVIDENCE ARTIFACT STORE
// =============================================================================

// ArtifactRecord indexes one captured evidence file against its episode.
// The file itself lives in the media directory; this row is the catalog entry.
type ArtifactRecord struct {
	ID         int64
	EpisodeID  string
	Kind       string
	Path       string
	CapturedAt time.Time
	SizeBytes  int64
}

// RecordArtifact catalogs a captured artifact.
func (s *Store) RecordArtifact(ctx context.Context, rec ArtifactRecord) error {
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = time.Now()
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO evidence_artifacts (episode_id, kind, path, captured_at_ms, size_bytes)
VALUES (?, ?, ?, ?, ?);
`,
			rec.EpisodeID, rec.Kind, rec.Path, rec.CapturedAt.UnixMilli(), rec.SizeBytes,
		)
		if err != nil {
			return fmt.Errorf("failed to record artifact: %w", err)
		}
		return nil
	})
}

// ListArtifacts returns the artifacts for one episode, oldest first.
func (s *Store) ListArtifacts(ctx context.Context, episodeID string) ([]ArtifactRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, episode_id, kind, path, captured_at_ms, size_bytes
FROM evidence_artifacts WHERE episode_id = ? ORDER BY id ASC;
`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var out []ArtifactRecord
	for rows.Next() {
		var rec ArtifactRecord
		var capturedMs int64
		if err := rows.Scan(&rec.ID, &rec.EpisodeID, &rec.Kind, &rec.Path, &capturedMs, &rec.SizeBytes); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		rec.CapturedAt = time.UnixMilli(capturedMs)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// EvidenceBytes returns the total cataloged evidence size and artifact count.
func (s *Store) EvidenceBytes(ctx context.Context) (bytes int64, count int, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size_bytes), 0), COUNT(*) FROM evidence_artifacts;`)
	if err := row.Scan(&bytes, &count); err != nil {
		return 0, 0, fmt.Errorf("failed to total evidence: %w", err)
	}
	return bytes, count, nil
}

// PruneArtifacts removes catalog entries older than before. The retention
// sweep deletes the files; this keeps the catalog in step.
func (s *Store) PruneArtifacts(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM evidence_artifacts WHERE captured_at_ms < ?;`, before.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to prune artifacts: %w", err)
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return removed, err
}
