package store

import (
	"errors"
	"fmt"
)

// The five error kinds exposed by the engine. Every error surfaced by a store
// or façade operation wraps exactly one of these; the API layer maps them to
// status codes with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an operation loses an optimistic update,
	// targets the wrong state, or targets a terminal task.
	ErrConflict = errors.New("conflict")

	// ErrValidation is returned for malformed input, unknown types on
	// submit, and progress counter regressions.
	ErrValidation = errors.New("validation failed")

	// ErrStorage is returned when the persistence port fails. The engine
	// never retries the port silently.
	ErrStorage = errors.New("storage failure")

	// ErrInternal is returned on invariant breaks such as index
	// inconsistency detected mid-update.
	ErrInternal = errors.New("internal invariant violated")
)

// Entity-specific variants.
var (
	// ErrTaskNotFound indicates the requested task does not exist.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// ErrTaskTypeNotFound indicates the requested task type does not exist.
	ErrTaskTypeNotFound = fmt.Errorf("%w: task type", ErrNotFound)

	// ErrScheduleNotFound indicates the requested schedule does not exist.
	ErrScheduleNotFound = fmt.Errorf("%w: schedule", ErrNotFound)

	// ErrTaskExists indicates a create collided with an existing task ID.
	ErrTaskExists = fmt.Errorf("%w: task already exists", ErrConflict)

	// ErrTypeExists indicates a task type registration collided with an
	// existing registration.
	ErrTypeExists = fmt.Errorf("%w: task type already exists", ErrConflict)

	// ErrStaleVersion indicates an optimistic update lost to a concurrent
	// writer.
	ErrStaleVersion = fmt.Errorf("%w: stale version", ErrConflict)

	// ErrWrongState indicates the task is not in a state that permits the
	// attempted transition.
	ErrWrongState = fmt.Errorf("%w: wrong state", ErrConflict)

	// ErrWrongWorker indicates a progress/complete/fail call from a worker
	// other than the claimant.
	ErrWrongWorker = fmt.Errorf("%w: not the claimant", ErrConflict)

	// ErrTaskTerminal indicates a mutation was attempted on a terminal
	// task. After a cancel this is the documented "abandon this task"
	// signal for workers.
	ErrTaskTerminal = fmt.Errorf("%w: task is terminal", ErrConflict)

	// ErrTypeInUse indicates an unregister was attempted while tasks of the
	// type are still live.
	ErrTypeInUse = fmt.Errorf("%w: task type has live tasks", ErrConflict)
)

// IsNotFound reports whether err is any kind of "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is any kind of conflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
