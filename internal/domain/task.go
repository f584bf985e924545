package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/xid"
)

// TaskState represents the lifecycle state of a task.
type TaskState string

// Possible task states. Pending through Running are live states; Completed,
// Failed, Cancelled and TimedOut are terminal. Retrying is a transient state
// between a failed attempt and the next dispatch.
const (
	TaskStatePending   TaskState = "pending"
	TaskStateQueued    TaskState = "queued"
	TaskStateRunning   TaskState = "running"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateCancelled TaskState = "cancelled"
	TaskStateTimedOut  TaskState = "timed_out"
	TaskStateRetrying  TaskState = "retrying"
)

// AllTaskStates lists every valid state, in lifecycle order. Used by the
// repository to enumerate state index prefixes.
var AllTaskStates = []TaskState{
	TaskStatePending,
	TaskStateQueued,
	TaskStateRunning,
	TaskStateCompleted,
	TaskStateFailed,
	TaskStateCancelled,
	TaskStateTimedOut,
	TaskStateRetrying,
}

// IsValid reports whether the state is one of the defined task states.
func (s TaskState) IsValid() bool {
	switch s {
	case TaskStatePending, TaskStateQueued, TaskStateRunning,
		TaskStateCompleted, TaskStateFailed, TaskStateCancelled,
		TaskStateTimedOut, TaskStateRetrying:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state permits no further transitions.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCancelled, TaskStateTimedOut:
		return true
	default:
		return false
	}
}

// Common validation errors for Task.
var (
	ErrEmptyTaskID        = errors.New("task ID cannot be empty")
	ErrEmptyTaskTypeID    = errors.New("task type ID cannot be empty")
	ErrInvalidTaskState   = errors.New("invalid task state")
	ErrNegativeTimeout    = errors.New("timeout_secs cannot be negative")
	ErrNegativeRetries    = errors.New("max_retries cannot be negative")
	ErrRetryCountExceeds  = errors.New("retry_count cannot exceed max_retries")
	ErrProgressRegression = errors.New("progress counters cannot decrease")
	ErrProgressOverflow   = errors.New("success + failed cannot exceed total")
	ErrNegativeProgress   = errors.New("progress counters cannot be negative")
)

// Progress tracks a task's work counters as reported by its worker.
// Invariant: Success + Failed <= Total, all three non-negative and
// non-decreasing over the task's lifetime.
type Progress struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
}

// Validate checks the static progress invariants.
func (p Progress) Validate() error {
	if p.Total < 0 || p.Success < 0 || p.Failed < 0 {
		return ErrNegativeProgress
	}
	if p.Success+p.Failed > p.Total {
		return ErrProgressOverflow
	}
	return nil
}

// ValidateAgainst checks the monotonicity invariants of a progress update
// relative to the previously accepted counters.
func (p Progress) ValidateAgainst(prev Progress) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Total < prev.Total || p.Success < prev.Success || p.Failed < prev.Failed {
		return ErrProgressRegression
	}
	return nil
}

// Task represents a single job instance owned by the engine. Workers only ever
// see copies over the wire; every mutation goes through the engine and bumps
// Version by exactly one.
type Task struct {
	ID           string          `json:"id"`
	TypeID       string          `json:"type_id"`
	State        TaskState       `json:"state"`
	Progress     Progress        `json:"progress"`
	Message      string          `json:"message,omitempty"`
	Error        string          `json:"error,omitempty"`
	ClaimedBy    string          `json:"claimed_by,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	LastActiveAt time.Time       `json:"last_active_at"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	EndedAt      *time.Time      `json:"ended_at,omitempty"`
	TimeoutSecs  int64           `json:"timeout_secs"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	Version      int64           `json:"version"`

	// extra carries fields written by newer versions of the engine so they
	// survive a read-modify-write by this one.
	extra map[string]json.RawMessage
}

// SubmitOptions carries the caller-supplied overrides accepted at submit time.
// Nil pointer fields fall back to the task type's defaults.
type SubmitOptions struct {
	TimeoutSecs *int64
	MaxRetries  *int
	Payload     json.RawMessage
}

// NewTask creates a Pending task of the given type, generating a time-sortable
// ID so that dispatch order by ascending ID is submission order.
func NewTask(taskType *TaskType, opts SubmitOptions, now time.Time) (*Task, error) {
	timeout := taskType.DefaultTimeoutSecs
	if opts.TimeoutSecs != nil {
		timeout = *opts.TimeoutSecs
	}
	maxRetries := 0
	if opts.MaxRetries != nil {
		maxRetries = *opts.MaxRetries
	}

	task := &Task{
		ID:           xid.New().String(),
		TypeID:       taskType.ID,
		State:        TaskStatePending,
		Payload:      opts.Payload,
		LastActiveAt: now,
		CreatedAt:    now,
		TimeoutSecs:  timeout,
		MaxRetries:   maxRetries,
		Version:      1,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// Validate checks the Task's field invariants.
func (t *Task) Validate() error {
	if t.ID == "" {
		return ErrEmptyTaskID
	}
	if t.TypeID == "" {
		return ErrEmptyTaskTypeID
	}
	if !t.State.IsValid() {
		return ErrInvalidTaskState
	}
	if t.TimeoutSecs < 0 {
		return ErrNegativeTimeout
	}
	if t.MaxRetries < 0 {
		return ErrNegativeRetries
	}
	if t.RetryCount > t.MaxRetries {
		return ErrRetryCountExceeds
	}
	return t.Progress.Validate()
}

// Clone returns a deep copy of the task. The engine hands clones to callers so
// the stored record is never aliased outside the per-task lock.
func (t *Task) Clone() *Task {
	cp := *t
	if t.StartedAt != nil {
		ts := *t.StartedAt
		cp.StartedAt = &ts
	}
	if t.EndedAt != nil {
		ts := *t.EndedAt
		cp.EndedAt = &ts
	}
	if t.Payload != nil {
		cp.Payload = append(json.RawMessage(nil), t.Payload...)
	}
	if t.extra != nil {
		cp.extra = make(map[string]json.RawMessage, len(t.extra))
		for k, v := range t.extra {
			cp.extra[k] = v
		}
	}
	return &cp
}

// taskAlias avoids recursing into the custom JSON methods below.
type taskAlias Task

// knownTaskFields are the JSON keys owned by this version of the record.
// Anything else round-trips through Task.extra untouched.
var knownTaskFields = map[string]struct{}{
	"id": {}, "type_id": {}, "state": {}, "progress": {}, "message": {},
	"error": {}, "claimed_by": {}, "payload": {}, "last_active_at": {},
	"created_at": {}, "started_at": {}, "ended_at": {}, "timeout_secs": {},
	"retry_count": {}, "max_retries": {}, "version": {},
}

// UnmarshalJSON decodes a task record, preserving unknown fields so records
// written by newer engine versions are not truncated on rewrite.
func (t *Task) UnmarshalJSON(data []byte) error {
	var alias taskAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range knownTaskFields {
		delete(raw, key)
	}

	*t = Task(alias)
	if len(raw) > 0 {
		t.extra = raw
	}
	return nil
}

// MarshalJSON encodes the task record, merging back any preserved unknown
// fields.
func (t *Task) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(taskAlias(*t))
	if err != nil {
		return nil, err
	}
	if len(t.extra) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range t.extra {
		merged[key] = value
	}
	return json.Marshal(merged)
}
