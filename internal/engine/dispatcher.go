package engine

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/store"
)

// runDispatcher advances Pending and Retrying tasks toward execution on a
// fixed interval until ctx is cancelled. Errors are logged and the loop
// resumes on the next tick.
func (e *Engine) runDispatcher(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.dispatchOnce(ctx); err != nil {
				e.logger.Error("dispatch iteration failed", "error", err)
			}
		}
	}
}

// dispatchOnce visits every registered type, computes its remaining
// concurrency slack and queues up to that many waiting tasks in id order.
// Queued-but-unclaimed tasks count against the cap alongside Running ones,
// otherwise successive iterations could queue more work than claims may
// admit.
func (e *Engine) dispatchOnce(ctx context.Context) error {
	types, err := e.types.List(ctx)
	if err != nil {
		return err
	}

	runningIDs, err := e.tasks.ListByState(ctx, domain.TaskStateRunning)
	if err != nil {
		return err
	}
	queuedIDs, err := e.tasks.ListByState(ctx, domain.TaskStateQueued)
	if err != nil {
		return err
	}

	for _, taskType := range types {
		typeIDs, err := e.tasks.ListByType(ctx, taskType.ID)
		if err != nil {
			return err
		}

		slack := -1 // unlimited
		if taskType.MaxConcurrency > 0 {
			inFlight := len(lo.Intersect(typeIDs, runningIDs)) +
				len(lo.Intersect(typeIDs, queuedIDs))
			slack = taskType.MaxConcurrency - inFlight
			if slack <= 0 {
				continue
			}
		}

		if err := e.dispatchType(ctx, taskType.ID, typeIDs, slack); err != nil {
			return err
		}
	}
	return nil
}

// dispatchType queues up to slack waiting tasks of one type; slack < 0 means
// unlimited. Candidates are the type's Pending and Retrying tasks in
// ascending id order, which is submission order for time-sortable ids.
func (e *Engine) dispatchType(ctx context.Context, typeID string, typeIDs []string, slack int) error {
	pendingIDs, err := e.tasks.ListByState(ctx, domain.TaskStatePending)
	if err != nil {
		return err
	}
	retryingIDs, err := e.tasks.ListByState(ctx, domain.TaskStateRetrying)
	if err != nil {
		return err
	}

	candidates := lo.Intersect(typeIDs, append(pendingIDs, retryingIDs...))

	for _, id := range candidates {
		if slack == 0 {
			return nil
		}
		queued, err := e.dispatchTask(ctx, id)
		if err != nil {
			return err
		}
		if queued && slack > 0 {
			slack--
		}
	}
	return nil
}

// dispatchTask re-reads one candidate under its lock and queues it if it is
// still waiting. Returns whether a transition happened; a task that moved on
// since enumeration is skipped silently.
func (e *Engine) dispatchTask(ctx context.Context, id string) (bool, error) {
	release := e.locks.acquire(id)
	defer release()

	task, err := e.load(ctx, id)
	if errors.Is(err, store.ErrTaskNotFound) || errors.Is(err, store.ErrInternal) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	next, ok := NextState(task.State, EventDispatch, false)
	if !ok {
		return false, nil
	}

	prev := task.State
	if prev == domain.TaskStateRetrying {
		task.RetryCount++
	}
	task.State = next
	task.Version++

	if err := e.applyUpdate(ctx, task, prev); err != nil {
		return false, err
	}

	e.logger.Debug("task queued",
		"task_id", id,
		"type_id", task.TypeID,
		"retry_count", task.RetryCount)
	return true, nil
}
