// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks provides a background task system for work that must never
// block or betray the interactive path: evidence capture, alert delivery,
// and retention sweeps all run here.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TASK STATUS
// =============================================================================

// TaskStatus represents the current state of a background task.
type TaskStatus string

const (
	// TaskStatusQueued indicates the task is waiting to be executed
	TaskStatusQueued TaskStatus = "Queued"

	// TaskStatusRunning indicates the task is currently executing
	TaskStatusRunning TaskStatus = "Running"

	// TaskStatusComplete indicates the task finished successfully
	TaskStatusComplete TaskStatus = "Complete"

	// TaskStatusFailed indicates the task encountered an error
	TaskStatusFailed TaskStatus = "Failed"

	// TaskStatusCanceled indicates the task was canceled
	TaskStatusCanceled TaskStatus = "Canceled"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// =============================================================================
// TASK STRUCTURE
// =============================================================================

// TaskFn is the work a task performs.
type TaskFn func(ctx context.Context) error

// Task represents one unit of background work.
type Task struct {
	// ID is a unique identifier for this task
	ID string

	// Description is a human-readable description of what this task does
	Description string

	// EpisodeID ties evidence work back to its intrusion episode
	EpisodeID string

	// Fn is the work to perform
	Fn TaskFn

	// Status is the current state of the task
	Status TaskStatus

	// StartTime is when the task started running
	StartTime time.Time

	// EndTime is when the task completed or failed
	EndTime time.Time

	// Error is the error message if the task failed
	Error string

	// cancel is the context cancel function for this task
	cancel context.CancelFunc

	// mu protects concurrent access to the task
	mu sync.RWMutex
}

// NewTask creates a new task.
func NewTask(description string, fn TaskFn) *Task {
	return &Task{
		ID:          uuid.New().String(),
		Description: description,
		Fn:          fn,
		Status:      TaskStatusQueued,
	}
}

// =============================================================================
// TASK METHODS
// =============================================================================

// SetStatus updates the task status (thread-safe). Valid transitions:
// Queued -> Running -> Complete/Failed/Canceled. Queued tasks may also be
// canceled directly.
func (t *Task) SetStatus(status TaskStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	valid := false
	switch t.Status {
	case TaskStatusQueued:
		valid = status == TaskStatusQueued || status == TaskStatusRunning || status == TaskStatusCanceled
	case TaskStatusRunning:
		valid = status == TaskStatusComplete || status == TaskStatusFailed || status == TaskStatusCanceled
	default:
		// Terminal states do not transition
	}
	if !valid {
		return fmt.Errorf("invalid status transition: %s -> %s", t.Status, status)
	}

	t.Status = status
	switch status {
	case TaskStatusRunning:
		t.StartTime = time.Now()
	case TaskStatusComplete, TaskStatusFailed, TaskStatusCanceled:
		t.EndTime = time.Now()
	}
	return nil
}

// GetStatus returns the current status (thread-safe).
func (t *Task) GetStatus() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// SetError records a failure message (thread-safe).
func (t *Task) SetError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Error = msg
}

// Duration returns how long the task ran.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.StartTime.IsZero() {
		return 0
	}
	if t.EndTime.IsZero() {
		return time.Since(t.StartTime)
	}
	return t.EndTime.Sub(t.StartTime)
}

// Cancel stops a running task via its context.
func (t *Task) Cancel() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// setCancel stores the context cancel function.
func (t *Task) setCancel(cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel = cancel
}

// Clone returns a snapshot copy safe to hand outside the queue.
func (t *Task) Clone() *Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &Task{
		ID:          t.ID,
		Description: t.Description,
		EpisodeID:   t.EpisodeID,
		Status:      t.Status,
		StartTime:   t.StartTime,
		EndTime:     t.EndTime,
		Error:       t.Error,
	}
}
