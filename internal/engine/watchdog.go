package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/store"
)

// runWatchdog expires stale Running tasks on a fixed interval until ctx is
// cancelled. Errors are logged and the loop resumes on the next tick.
func (e *Engine) runWatchdog(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.watchdogOnce(ctx); err != nil {
				e.logger.Error("watchdog iteration failed", "error", err)
			}
		}
	}
}

// watchdogOnce scans Running tasks and times out every task whose heartbeat
// is older than its timeout. Enumeration takes no locks; each expiry
// re-checks under the task's lock.
func (e *Engine) watchdogOnce(ctx context.Context) error {
	ids, err := e.tasks.ListByState(ctx, domain.TaskStateRunning)
	if err != nil {
		return err
	}

	expired := 0
	for _, id := range ids {
		timedOut, err := e.expireTask(ctx, id)
		if err != nil {
			return err
		}
		if timedOut {
			expired++
		}
	}

	if expired > 0 {
		e.logger.Warn("watchdog expired tasks", "count", expired)
	}
	return nil
}

// expireTask times out one task if it is still Running and stale. Returns
// whether a transition happened.
func (e *Engine) expireTask(ctx context.Context, id string) (bool, error) {
	release := e.locks.acquire(id)
	defer release()

	task, err := e.load(ctx, id)
	if errors.Is(err, store.ErrTaskNotFound) || errors.Is(err, store.ErrInternal) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if task.State != domain.TaskStateRunning || task.TimeoutSecs <= 0 {
		return false, nil
	}
	now := e.now().UTC()
	if now.Sub(task.LastActiveAt) <= time.Duration(task.TimeoutSecs)*time.Second {
		return false, nil
	}

	retriesRemain := task.RetryCount < task.MaxRetries
	next, ok := NextState(task.State, EventTimeout, retriesRemain)
	if !ok {
		return false, nil
	}

	prev := task.State
	task.State = next
	task.Version++

	switch next {
	case domain.TaskStateTimedOut:
		task.EndedAt = &now
	case domain.TaskStateRetrying:
		task.Error = fmt.Sprintf("timed out after %ds without a heartbeat", task.TimeoutSecs)
		task.ClaimedBy = ""
		task.StartedAt = nil
		task.EndedAt = nil
		task.LastActiveAt = now
	}

	if err := e.applyUpdate(ctx, task, prev); err != nil {
		return false, err
	}
	e.metrics.Running.Dec()
	e.metrics.Timeouts.Inc()

	e.logger.Warn("task timed out",
		"task_id", id,
		"state", string(task.State),
		"timeout_secs", task.TimeoutSecs)
	return true, nil
}
