package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskhive/taskhive/internal/api/shared"
	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/scheduler"
)

// CreateScheduleRequest is the body of POST /schedules.
type CreateScheduleRequest struct {
	Name        string          `json:"name"      validate:"required"`
	CronExpr    string          `json:"cron_expr" validate:"required"`
	TypeID      string          `json:"type_id"   validate:"required"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	TimeoutSecs *int64          `json:"timeout_secs,omitempty" validate:"omitempty,gte=0"`
	MaxRetries  *int            `json:"max_retries,omitempty"  validate:"omitempty,gte=0"`
}

// ScheduleHandler handles recurring-schedule HTTP requests.
type ScheduleHandler struct {
	scheduler *scheduler.Service
}

// NewScheduleHandler creates a ScheduleHandler over the scheduler service.
func NewScheduleHandler(svc *scheduler.Service) *ScheduleHandler {
	return &ScheduleHandler{scheduler: svc}
}

// Create handles POST /schedules.
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	schedule, err := h.scheduler.Create(r.Context(), req.Name, req.CronExpr, req.TypeID,
		domain.SubmitOptions{
			TimeoutSecs: req.TimeoutSecs,
			MaxRetries:  req.MaxRetries,
			Payload:     req.Payload,
		})
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, schedule)
}

// List handles GET /schedules.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.scheduler.List(r.Context())
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, schedules)
}

// Get handles GET /schedules/{id}.
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	schedule, err := h.scheduler.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, schedule)
}

// Delete handles DELETE /schedules/{id}.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
