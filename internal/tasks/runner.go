// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// TASK RUNNER
// =============================================================================

// Runner executes background tasks from a queue.
type Runner struct {
	queue         *Queue
	wg            sync.WaitGroup
	stop          chan struct{}
	stopped       atomic.Bool   // Prevents new tasks after Stop() is called
	maxConcurrent int           // Maximum number of concurrent tasks
	semaphore     chan struct{} // Semaphore to limit concurrency
	taskTimeout   time.Duration // Timeout for each task (0 = no timeout)
}

// NewRunner creates a runner with defaults suited to evidence work: two
// concurrent tasks (capture holds the camera device; alerts are quick) and
// a one-minute timeout.
func NewRunner(queue *Queue) *Runner {
	return NewRunnerWithOptions(queue, 2, time.Minute)
}

// NewRunnerWithOptions creates a runner with custom settings.
func NewRunnerWithOptions(queue *Queue, maxConcurrent int, taskTimeout time.Duration) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Runner{
		queue:         queue,
		stop:          make(chan struct{}),
		maxConcurrent: maxConcurrent,
		semaphore:     make(chan struct{}, maxConcurrent),
		taskTimeout:   taskTimeout,
	}
}

// =============================================================================
// RUNNER LIFECYCLE
// =============================================================================

// Start begins processing tasks from the queue.
func (r *Runner) Start() {
	go r.processLoop()
}

// Stop gracefully stops the runner, waiting for running tasks to finish.
func (r *Runner) Stop() {
	r.stopped.Store(true)
	close(r.stop)
	r.wg.Wait()
}

// =============================================================================
// TASK PROCESSING
// =============================================================================

// processLoop continuously picks up queued tasks.
func (r *Runner) processLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if r.stopped.Load() {
				return
			}
			for _, task := range r.queue.Queued() {
				if r.stopped.Load() {
					return
				}
				select {
				case r.semaphore <- struct{}{}:
					if err := task.SetStatus(TaskStatusRunning); err != nil {
						// Already picked up or canceled
						<-r.semaphore
						continue
					}
					r.queue.markRunning(task)
					r.wg.Add(1)
					go r.execute(task)
				default:
					// At capacity; try again next tick
				}
			}
		}
	}
}

// execute runs one task under its timeout.
func (r *Runner) execute(task *Task) {
	defer r.wg.Done()
	defer func() { <-r.semaphore }()

	ctx := context.Background()
	var cancel context.CancelFunc
	if r.taskTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.taskTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	task.setCancel(cancel)
	defer cancel()

	// RELIABILITY: a panicking task must not take the runner down
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("task panicked: %v", p)
			}
		}()
		return task.Fn(ctx)
	}()

	switch {
	case err == nil:
		_ = task.SetStatus(TaskStatusComplete)
	case ctx.Err() == context.Canceled:
		task.SetError(err.Error())
		_ = task.SetStatus(TaskStatusCanceled)
	default:
		task.SetError(err.Error())
		_ = task.SetStatus(TaskStatusFailed)
	}
	r.queue.markDone(task)
}
