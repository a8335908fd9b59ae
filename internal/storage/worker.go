// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
)

// =============================================================================
// SINGLE-WRITER WORKER
// =============================================================================

// TxFn runs inside a write transaction.
type TxFn func(ctx context.Context, tx *sql.Tx) error

type job struct {
	fn TxFn
	ch chan error
}

// Worker serializes write transactions through one goroutine. SQLite allows
// a single writer; funneling writes here means attempt bursts during an
// intrusion episode queue instead of failing.
type Worker struct {
	db   *sql.DB
	jobs chan job
	done chan struct{}
}

// NewWorker starts the writer loop.
func NewWorker(db *sql.DB) *Worker {
	w := &Worker{
		db:   db,
		jobs: make(chan job, 256),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

// Close drains pending jobs and stops the loop.
func (w *Worker) Close() {
	close(w.jobs)
	<-w.done
}

// Do runs fn in a write transaction on the writer goroutine.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	ch := make(chan error, 1)
	j := job{fn: fn, ch: ch}

	// Enqueue, bailing out if the caller's context expires while the
	// buffer is full.
	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Wait for the result. If the caller gives up, the worker still
	// completes the transaction; the result lands in the buffered ch and
	// is discarded.
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer close(w.done)

	// RELIABILITY: transactions run detached from the caller's context. An
	// abandoned job (caller timed out waiting) must still commit; an audit
	// write half-done is worse than one delivered late.
	ctx := context.Background()
	for j := range w.jobs {
		tx, err := w.db.BeginTx(ctx, nil)
		if err != nil {
			j.ch <- err
			continue
		}
		if err := j.fn(ctx, tx); err != nil {
			_ = tx.Rollback()
			j.ch <- err
			continue
		}
		j.ch <- tx.Commit()
	}
}
