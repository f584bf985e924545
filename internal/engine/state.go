package engine

import (
	"github.com/taskhive/taskhive/internal/domain"
)

// Event is a lifecycle event applied to a task.
type Event string

// Lifecycle events. EventProgress leaves the state unchanged but is part of
// the table so the façade has a single transition authority.
const (
	EventDispatch Event = "dispatch"
	EventClaim    Event = "claim"
	EventProgress Event = "progress"
	EventComplete Event = "complete"
	EventFail     Event = "fail"
	EventTimeout  Event = "timeout"
	EventCancel   Event = "cancel"
)

// NextState is the sole authority over permitted transitions. It returns the
// successor state for applying event to a task in state, and whether the
// transition is allowed. retriesRemain selects the Retrying branch of fail
// and timeout. Terminal states permit nothing.
func NextState(state domain.TaskState, event Event, retriesRemain bool) (domain.TaskState, bool) {
	switch state {
	case domain.TaskStatePending:
		switch event {
		case EventDispatch:
			return domain.TaskStateQueued, true
		case EventCancel:
			return domain.TaskStateCancelled, true
		}

	case domain.TaskStateQueued:
		switch event {
		case EventClaim:
			return domain.TaskStateRunning, true
		case EventCancel:
			return domain.TaskStateCancelled, true
		}

	case domain.TaskStateRunning:
		switch event {
		case EventProgress:
			return domain.TaskStateRunning, true
		case EventComplete:
			return domain.TaskStateCompleted, true
		case EventFail:
			if retriesRemain {
				return domain.TaskStateRetrying, true
			}
			return domain.TaskStateFailed, true
		case EventTimeout:
			if retriesRemain {
				return domain.TaskStateRetrying, true
			}
			return domain.TaskStateTimedOut, true
		case EventCancel:
			return domain.TaskStateCancelled, true
		}

	case domain.TaskStateRetrying:
		switch event {
		case EventDispatch:
			return domain.TaskStateQueued, true
		case EventCancel:
			return domain.TaskStateCancelled, true
		}
	}

	return state, false
}
