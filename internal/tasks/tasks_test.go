// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// waitForStatus polls until the task reaches a terminal state.
func waitForStatus(t *testing.T, q *Queue, id string, want TaskStatus) *Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task := q.Get(id)
		if task != nil && task.GetStatus() == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached %s", id, want)
	return nil
}

func TestRunnerExecutesTask(t *testing.T) {
	q := NewQueue(10)
	r := NewRunner(q)
	r.Start()
	defer r.Stop()

	var ran atomic.Bool
	task := NewTask("capture evidence", func(_ context.Context) error {
		ran.Store(true)
		return nil
	})
	if err := q.Add(task); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	done := waitForStatus(t, q, task.ID, TaskStatusComplete)
	if !ran.Load() {
		t.Error("Task function never ran")
	}
	if done.Error != "" {
		t.Errorf("Unexpected error: %s", done.Error)
	}
}

func TestRunnerRecordsFailure(t *testing.T) {
	q := NewQueue(10)
	r := NewRunner(q)
	r.Start()
	defer r.Stop()

	task := NewTask("send alert", func(_ context.Context) error {
		return errors.New("smtp unreachable")
	})
	if err := q.Add(task); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	done := waitForStatus(t, q, task.ID, TaskStatusFailed)
	if done.Error != "smtp unreachable" {
		t.Errorf("Expected failure message, got %q", done.Error)
	}
}

func TestRunnerRecoversFromPanic(t *testing.T) {
	q := NewQueue(10)
	r := NewRunner(q)
	r.Start()
	defer r.Stop()

	panicky := NewTask("bad task", func(_ context.Context) error {
		panic("boom")
	})
	if err := q.Add(panicky); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	waitForStatus(t, q, panicky.ID, TaskStatusFailed)

	// Runner must still process subsequent tasks
	follow := NewTask("good task", func(_ context.Context) error { return nil })
	if err := q.Add(follow); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	waitForStatus(t, q, follow.ID, TaskStatusComplete)
}

func TestRunnerTimeout(t *testing.T) {
	q := NewQueue(10)
	r := NewRunnerWithOptions(q, 1, 50*time.Millisecond)
	r.Start()
	defer r.Stop()

	task := NewTask("slow capture", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Second):
			return nil
		}
	})
	if err := q.Add(task); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	waitForStatus(t, q, task.ID, TaskStatusFailed)
}

func TestRunnerConcurrencyLimit(t *testing.T) {
	q := NewQueue(10)
	r := NewRunnerWithOptions(q, 1, time.Minute)
	r.Start()
	defer r.Stop()

	var concurrent, peak int32
	fn := func(_ context.Context) error {
		n := atomic.AddInt32(&concurrent, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
		return nil
	}

	var ids []string
	for i := 0; i < 3; i++ {
		task := NewTask("work", fn)
		ids = append(ids, task.ID)
		if err := q.Add(task); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	for _, id := range ids {
		waitForStatus(t, q, id, TaskStatusComplete)
	}
	if p := atomic.LoadInt32(&peak); p > 1 {
		t.Errorf("Expected max 1 concurrent task, saw %d", p)
	}
}

func TestQueueSizeLimit(t *testing.T) {
	q := NewQueueWithOptions(10, 2)

	for i := 0; i < 2; i++ {
		if err := q.Add(NewTask("t", func(_ context.Context) error { return nil })); err != nil {
			t.Fatalf("Add %d failed: %v", i, err)
		}
	}
	if err := q.Add(NewTask("overflow", func(_ context.Context) error { return nil })); err == nil {
		t.Error("Expected queue-full error")
	}
}

func TestQueueNotifications(t *testing.T) {
	q := NewQueue(10)
	r := NewRunner(q)
	r.Start()
	defer r.Stop()

	task := NewTask("capture", func(_ context.Context) error { return nil })
	task.EpisodeID = "ep-9"
	if err := q.Add(task); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	select {
	case n := <-q.Notifications():
		if n.TaskID != task.ID || n.Status != TaskStatusComplete || n.EpisodeID != "ep-9" {
			t.Errorf("Unexpected notification: %+v", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("No notification received")
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	task := NewTask("t", func(_ context.Context) error { return nil })

	if err := task.SetStatus(TaskStatusComplete); err == nil {
		t.Error("Queued -> Complete must be rejected")
	}
	if err := task.SetStatus(TaskStatusRunning); err != nil {
		t.Errorf("Queued -> Running failed: %v", err)
	}
	if err := task.SetStatus(TaskStatusComplete); err != nil {
		t.Errorf("Running -> Complete failed: %v", err)
	}
	if err := task.SetStatus(TaskStatusRunning); err == nil {
		t.Error("Terminal state must not transition")
	}
}

func TestQueueHistoryTrim(t *testing.T) {
	q := NewQueue(2)
	r := NewRunner(q)
	r.Start()
	defer r.Stop()

	var ids []string
	for i := 0; i < 5; i++ {
		task := NewTask("t", func(_ context.Context) error { return nil })
		ids = append(ids, task.ID)
		if err := q.Add(task); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		waitForStatus(t, q, task.ID, TaskStatusComplete)
	}

	history := q.History()
	if len(history) > 3 {
		t.Errorf("Expected history trimmed to ~2, got %d", len(history))
	}
}
