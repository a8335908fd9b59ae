// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/camguard/internal/auth"
)

// =============================================================================
// CREDENTIAL STORE
// =============================================================================

// LoadCredential returns the single owner credential.
// Implements auth.Persistence.
func (s *Store) LoadCredential(ctx context.Context) (*auth.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT algorithm, iterations, salt, hash, totp_secret, created_at_ms, updated_at_ms
FROM credentials WHERE id = 1;
`)

	var cred auth.Credential
	var createdMs, updatedMs int64
	err := row.Scan(&cred.Algorithm, &cred.Iterations, &cred.Salt, &cred.Hash,
		&cred.TOTPSecret, &createdMs, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNoCredential
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	cred.CreatedAt = time.UnixMilli(createdMs)
	cred.UpdatedAt = time.UnixMilli(updatedMs)
	return &cred, nil
}

// SaveCredential stores the owner credential, replacing any existing one.
// Implements auth.Persistence.
func (s *Store) SaveCredential(ctx context.Context, cred *auth.Credential) error {
	now := time.Now()
	createdAt := cred.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO credentials (id, algorithm, iterations, salt, hash, totp_secret, created_at_ms, updated_at_ms)
VALUES (1, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  algorithm = excluded.algorithm,
  iterations = excluded.iterations,
  salt = excluded.salt,
  hash = excluded.hash,
  totp_secret = excluded.totp_secret,
  updated_at_ms = excluded.updated_at_ms;
`,
			cred.Algorithm, cred.Iterations, cred.Salt, cred.Hash,
			cred.TOTPSecret, createdAt.UnixMilli(), now.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to save credential: %w", err)
		}
		return nil
	})
}
