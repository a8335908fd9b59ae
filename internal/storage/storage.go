// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists camguard's durable state in SQLite: the owner
// credential, the access attempt trail, intrusion episodes, and captured
// evidence artifacts. All writes funnel through a single-writer worker so
// concurrent attempt recording never trips SQLITE_BUSY.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
  id            INTEGER PRIMARY KEY CHECK (id = 1),
  algorithm     TEXT    NOT NULL,
  iterations    INTEGER NOT NULL,
  salt          BLOB    NOT NULL,
  hash          BLOB    NOT NULL,
  totp_secret   TEXT    NOT NULL DEFAULT '',
  created_at_ms INTEGER NOT NULL,
  updated_at_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS access_attempts (
  id             INTEGER PRIMARY KEY AUTOINCREMENT,
  occurred_at_ms INTEGER NOT NULL,
  surface        TEXT    NOT NULL,
  granted        INTEGER NOT NULL,
  episode_id     TEXT,
  source_ip      TEXT
);
CREATE INDEX IF NOT EXISTS idx_attempts_time ON access_attempts(occurred_at_ms);

CREATE TABLE IF NOT EXISTS intrusion_episodes (
  id            TEXT PRIMARY KEY,
  opened_at_ms  INTEGER NOT NULL,
  closed_at_ms  INTEGER,
  failure_count INTEGER NOT NULL DEFAULT 0,
  suspected     INTEGER NOT NULL DEFAULT 0,
  capture_count INTEGER NOT NULL DEFAULT 0,
  alerted       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS evidence_artifacts (
  id             INTEGER PRIMARY KEY AUTOINCREMENT,
  episode_id     TEXT    NOT NULL,
  kind           TEXT    NOT NULL,
  path           TEXT    NOT NULL,
  captured_at_ms INTEGER NOT NULL,
  size_bytes     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_episode ON evidence_artifacts(episode_id);
`

// =============================================================================
// OPEN
// =============================================================================

// Store is the SQLite-backed persistence layer.
type Store struct {
	db     *sql.DB
	writer *Worker
}

// Open opens (creating if needed) the database at path and applies the
// schema. The returned Store owns the connection; call Close when done.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Per-connection pragmas: WAL for concurrent readers, NORMAL sync for
	// durability at local-daemon scale, busy_timeout as a second line of
	// defense behind the single-writer worker.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite with one process: a single connection avoids writer contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		db:     db,
		writer: NewWorker(db),
	}, nil
}

// Close stops the writer and closes the database.
func (s *Store) Close() error {
	s.writer.Close()
	return s.db.Close()
}
