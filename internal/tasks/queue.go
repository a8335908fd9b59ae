// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// TASK QUEUE
// =============================================================================

// Queue manages background tasks with thread-safe operations.
type Queue struct {
	// tasks is the list of all tasks (both queued and completed)
	tasks []*Task

	// running tracks currently running tasks by ID
	running map[string]*Task

	// maxHistory is the maximum number of completed tasks to keep
	maxHistory int

	// maxQueueSize is the maximum number of queued tasks allowed (0 = unlimited)
	maxQueueSize int

	// mu protects concurrent access to the queue
	mu sync.RWMutex

	// notifyChan sends notifications when tasks change state
	notifyChan chan TaskNotification
}

// TaskNotification represents a notification about a task state change.
type TaskNotification struct {
	TaskID      string
	Description string
	EpisodeID   string
	Status      TaskStatus
	Error       string
	Duration    time.Duration
}

// NewQueue creates a new task queue.
// maxHistory sets the maximum number of completed tasks to keep (0 = unlimited).
func NewQueue(maxHistory int) *Queue {
	return NewQueueWithOptions(maxHistory, 0)
}

// NewQueueWithOptions creates a new task queue with custom settings.
func NewQueueWithOptions(maxHistory, maxQueueSize int) *Queue {
	return &Queue{
		tasks:        make([]*Task, 0),
		running:      make(map[string]*Task),
		maxHistory:   maxHistory,
		maxQueueSize: maxQueueSize,
		notifyChan:   make(chan TaskNotification, 100),
	}
}

// =============================================================================
// TASK MANAGEMENT
// =============================================================================

// Add adds a new task to the queue.
// Returns an error if the queue has reached its maximum size.
func (q *Queue) Add(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxQueueSize > 0 {
		queuedCount := 0
		for _, t := range q.tasks {
			if t.GetStatus() == TaskStatusQueued {
				queuedCount++
			}
		}
		if queuedCount >= q.maxQueueSize {
			return fmt.Errorf("queue is full: %d queued tasks (max: %d)", queuedCount, q.maxQueueSize)
		}
	}

	_ = task.SetStatus(TaskStatusQueued)
	q.tasks = append(q.tasks, task)
	return nil
}

// Get retrieves a snapshot of a task by ID, or nil if not found.
func (q *Queue) Get(id string) *Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, task := range q.tasks {
		if task.ID == id {
			return task.Clone()
		}
	}
	return nil
}

// Queued returns the tasks currently waiting to run, in order.
func (q *Queue) Queued() []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []*Task
	for _, task := range q.tasks {
		if task.GetStatus() == TaskStatusQueued {
			out = append(out, task)
		}
	}
	return out
}

// RunningCount returns the number of tasks executing now.
func (q *Queue) RunningCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.running)
}

// History returns snapshots of all tasks, newest last.
func (q *Queue) History() []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*Task, 0, len(q.tasks))
	for _, task := range q.tasks {
		out = append(out, task.Clone())
	}
	return out
}

// markRunning moves a task into the running set.
func (q *Queue) markRunning(task *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.running[task.ID] = task
}

// markDone removes a task from the running set, emits a notification, and
// trims history.
func (q *Queue) markDone(task *Task) {
	q.mu.Lock()
	delete(q.running, task.ID)
	q.trimHistoryLocked()
	q.mu.Unlock()

	snapshot := task.Clone()
	notification := TaskNotification{
		TaskID:      snapshot.ID,
		Description: snapshot.Description,
		EpisodeID:   snapshot.EpisodeID,
		Status:      snapshot.Status,
		Error:       snapshot.Error,
		Duration:    snapshot.EndTime.Sub(snapshot.StartTime),
	}
	// Non-blocking: notifications are best-effort
	select {
	case q.notifyChan <- notification:
	default:
	}
}

// trimHistoryLocked drops the oldest terminal tasks beyond maxHistory.
func (q *Queue) trimHistoryLocked() {
	if q.maxHistory <= 0 {
		return
	}
	terminal := 0
	for _, t := range q.tasks {
		switch t.GetStatus() {
		case TaskStatusComplete, TaskStatusFailed, TaskStatusCanceled:
			terminal++
		}
	}
	if terminal <= q.maxHistory {
		return
	}

	drop := terminal - q.maxHistory
	kept := q.tasks[:0]
	for _, t := range q.tasks {
		status := t.GetStatus()
		isTerminal := status == TaskStatusComplete || status == TaskStatusFailed || status == TaskStatusCanceled
		if isTerminal && drop > 0 {
			drop--
			continue
		}
		kept = append(kept, t)
	}
	q.tasks = kept
}

// Notifications returns the channel of task state change notifications.
func (q *Queue) Notifications() <-chan TaskNotification {
	return q.notifyChan
}
