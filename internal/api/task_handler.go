package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taskhive/taskhive/internal/api/shared"
	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/engine"
)

// SubmitTaskRequest is the body of POST /tasks.
type SubmitTaskRequest struct {
	TypeID      string          `json:"type_id"      validate:"required"`
	TimeoutSecs *int64          `json:"timeout_secs,omitempty" validate:"omitempty,gte=0"`
	MaxRetries  *int            `json:"max_retries,omitempty"  validate:"omitempty,gte=0"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// ClaimRequest is the body of POST /tasks/{id}/@claim.
type ClaimRequest struct {
	ClaimedBy string `json:"claimed_by" validate:"required"`
}

// ProgressRequest is the body of POST /tasks/{id}/@progress.
type ProgressRequest struct {
	ClaimedBy string `json:"claimed_by" validate:"required"`
	Total     int64  `json:"total"      validate:"gte=0"`
	Success   int64  `json:"success"    validate:"gte=0"`
	Failed    int64  `json:"failed"     validate:"gte=0"`
	Message   string `json:"message,omitempty"`
}

// CompleteRequest is the body of POST /tasks/{id}/@complete.
type CompleteRequest struct {
	ClaimedBy string `json:"claimed_by" validate:"required"`
	Message   string `json:"message,omitempty"`
}

// FailRequest is the body of POST /tasks/{id}/@fail.
type FailRequest struct {
	ClaimedBy string `json:"claimed_by" validate:"required"`
	Error     string `json:"error"      validate:"required"`
	Message   string `json:"message,omitempty"`
}

// AppendLogRequest is the body of POST /tasks/{id}/@log.
type AppendLogRequest struct {
	Level domain.LogLevel `json:"level" validate:"required,oneof=debug info warn error"`
	Lines []string        `json:"lines" validate:"required,min=1"`
}

// AppendLogResponse reports the sequence numbers assigned to appended lines.
type AppendLogResponse struct {
	Seqs []int64 `json:"seqs"`
}

// TaskHandler handles task-related HTTP requests.
type TaskHandler struct {
	engine *engine.Engine
}

// NewTaskHandler creates a TaskHandler over the engine.
func NewTaskHandler(eng *engine.Engine) *TaskHandler {
	return &TaskHandler{engine: eng}
}

// Submit handles POST /tasks.
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.engine.Submit(r.Context(), req.TypeID, domain.SubmitOptions{
		TimeoutSecs: req.TimeoutSecs,
		MaxRetries:  req.MaxRetries,
		Payload:     req.Payload,
	})
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, task)
}

// Get handles GET /tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// List handles GET /tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	state := domain.TaskState(r.URL.Query().Get("state"))
	typeID := r.URL.Query().Get("type_id")

	tasks, err := h.engine.ListTasks(r.Context(), state, typeID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, tasks)
}

// Claim handles POST /tasks/{id}/@claim.
func (h *TaskHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.engine.Claim(r.Context(), chi.URLParam(r, "id"), req.ClaimedBy)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// Progress handles POST /tasks/{id}/@progress.
func (h *TaskHandler) Progress(w http.ResponseWriter, r *http.Request) {
	var req ProgressRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.engine.ReportProgress(r.Context(), chi.URLParam(r, "id"), req.ClaimedBy,
		domain.Progress{Total: req.Total, Success: req.Success, Failed: req.Failed},
		req.Message)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// Complete handles POST /tasks/{id}/@complete.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.engine.Complete(r.Context(), chi.URLParam(r, "id"), req.ClaimedBy, req.Message)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// Fail handles POST /tasks/{id}/@fail.
func (h *TaskHandler) Fail(w http.ResponseWriter, r *http.Request) {
	var req FailRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.engine.Fail(r.Context(), chi.URLParam(r, "id"), req.ClaimedBy, req.Error, req.Message)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// Cancel handles POST /tasks/{id}/@cancel.
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	task, err := h.engine.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// Poll handles GET /tasks/{id}/@poll. Always 200 on success, even when the
// version has not advanced; clients compare versions to detect "no change".
func (h *TaskHandler) Poll(w http.ResponseWriter, r *http.Request) {
	seen, err := strconv.ParseInt(r.URL.Query().Get("seen_version"), 10, 64)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "seen_version must be an integer")
		return
	}

	timeoutSecs := int64(0)
	if raw := r.URL.Query().Get("timeout_secs"); raw != "" {
		timeoutSecs, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || timeoutSecs < 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "timeout_secs must be a non-negative integer")
			return
		}
	}

	task, err := h.engine.Poll(r.Context(), chi.URLParam(r, "id"), seen,
		time.Duration(timeoutSecs)*time.Second)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// AppendLog handles POST /tasks/{id}/@log.
func (h *TaskHandler) AppendLog(w http.ResponseWriter, r *http.Request) {
	var req AppendLogRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	seqs, err := h.engine.AppendLog(r.Context(), chi.URLParam(r, "id"), req.Level, req.Lines)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, AppendLogResponse{Seqs: seqs})
}

// QueryLogs handles GET /tasks/{id}/@logs.
func (h *TaskHandler) QueryLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	desc := query.Get("desc") == "true"
	level := domain.LogLevel(query.Get("level"))

	entries, err := h.engine.QueryLogs(r.Context(), chi.URLParam(r, "id"), limit, desc, level)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, entries)
}
