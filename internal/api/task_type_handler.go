package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskhive/taskhive/internal/api/shared"
	"github.com/taskhive/taskhive/internal/engine"
)

// RegisterTypeRequest is the body of POST /task-types.
type RegisterTypeRequest struct {
	ID                 string `json:"id"                   validate:"required"`
	Service            string `json:"service"              validate:"required"`
	DefaultTimeoutSecs int64  `json:"default_timeout_secs" validate:"gte=0"`
	MaxConcurrency     int    `json:"max_concurrency"      validate:"gte=0"`
}

// TaskTypeHandler handles task type registration requests.
type TaskTypeHandler struct {
	engine *engine.Engine
}

// NewTaskTypeHandler creates a TaskTypeHandler over the engine.
func NewTaskTypeHandler(eng *engine.Engine) *TaskTypeHandler {
	return &TaskTypeHandler{engine: eng}
}

// Register handles POST /task-types.
func (h *TaskTypeHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterTypeRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	taskType, err := h.engine.RegisterType(r.Context(), req.ID, req.Service,
		req.DefaultTimeoutSecs, req.MaxConcurrency)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, taskType)
}

// List handles GET /task-types.
func (h *TaskTypeHandler) List(w http.ResponseWriter, r *http.Request) {
	types, err := h.engine.ListTypes(r.Context())
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, types)
}

// Unregister handles DELETE /task-types/{id}.
func (h *TaskTypeHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.UnregisterType(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
