package api

import (
	"errors"
	"net/http"

	"github.com/taskhive/taskhive/internal/api/shared"
	"github.com/taskhive/taskhive/internal/store"
)

// MapErrorToStatusCode maps engine errors to HTTP status codes based on the
// error kind. This keeps handlers free of status logic and prevents leaking
// internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict

	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest

	// Storage and Internal both surface as 500; the distinction matters in
	// the logs, not on the wire.
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing error message based on
// the error kind.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrTaskTypeNotFound):
		return "Task type not found"
	case errors.Is(err, store.ErrScheduleNotFound):
		return "Schedule not found"
	case errors.Is(err, store.ErrNotFound):
		return "Not found"

	case errors.Is(err, store.ErrTaskTerminal):
		return "Task is in a terminal state"
	case errors.Is(err, store.ErrWrongWorker):
		return "Task is claimed by another worker"
	case errors.Is(err, store.ErrWrongState):
		return "Task state does not permit this operation"
	case errors.Is(err, store.ErrTypeInUse):
		return "Task type still has live tasks"
	case errors.Is(err, store.ErrTypeExists):
		return "Task type already registered"
	case errors.Is(err, store.ErrConflict):
		return "Conflicting update"

	case errors.Is(err, store.ErrValidation):
		// Validation messages are produced by the engine and safe to show.
		return err.Error()

	case errors.Is(err, store.ErrStorage):
		return "Storage failure"

	default:
		return "An unexpected error occurred"
	}
}

// respondEngineError maps err onto the wire and logs it, in one call.
func respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := MapErrorToStatusCode(err)
	shared.RespondWithErrorAndLog(w, r, status, GetSafeErrorMessage(err), err)
}
