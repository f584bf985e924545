package domain

import (
	"errors"
	"time"
)

// Common validation errors for TaskType.
var (
	ErrEmptyTypeID          = errors.New("task type ID cannot be empty")
	ErrEmptyTypeService     = errors.New("task type service cannot be empty")
	ErrNegativeConcurrency  = errors.New("max_concurrency cannot be negative")
	ErrNegativeTypeTimeout  = errors.New("default_timeout_secs cannot be negative")
)

// TaskType is a service-registered job class. Every task references exactly one
// type and inherits its timeout default at submit time. MaxConcurrency bounds
// the number of simultaneously Running tasks of the type; zero means unlimited.
// DefaultTimeoutSecs of zero disables the watchdog for tasks of the type.
type TaskType struct {
	ID                 string    `json:"id"`
	Service            string    `json:"service"`
	DefaultTimeoutSecs int64     `json:"default_timeout_secs"`
	MaxConcurrency     int       `json:"max_concurrency"`
	CreatedAt          time.Time `json:"created_at"`
}

// NewTaskType creates a TaskType with the given attributes.
// Returns an error if validation fails.
func NewTaskType(id, service string, defaultTimeoutSecs int64, maxConcurrency int, now time.Time) (*TaskType, error) {
	tt := &TaskType{
		ID:                 id,
		Service:            service,
		DefaultTimeoutSecs: defaultTimeoutSecs,
		MaxConcurrency:     maxConcurrency,
		CreatedAt:          now,
	}
	if err := tt.Validate(); err != nil {
		return nil, err
	}
	return tt, nil
}

// Validate checks the TaskType's field invariants.
func (t *TaskType) Validate() error {
	if t.ID == "" {
		return ErrEmptyTypeID
	}
	if t.Service == "" {
		return ErrEmptyTypeService
	}
	if t.DefaultTimeoutSecs < 0 {
		return ErrNegativeTypeTimeout
	}
	if t.MaxConcurrency < 0 {
		return ErrNegativeConcurrency
	}
	return nil
}
