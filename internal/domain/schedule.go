package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/xid"
)

// Common validation errors for Schedule.
var (
	ErrEmptyScheduleName = errors.New("schedule name cannot be empty")
	ErrEmptyCronExpr     = errors.New("schedule cron expression cannot be empty")
)

// Schedule describes a recurring task submission: whenever NextRun comes due,
// the scheduler submits a task of TypeID with the stored payload and advances
// NextRun along the cron expression.
type Schedule struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	CronExpr    string          `json:"cron_expr"`
	TypeID      string          `json:"type_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	TimeoutSecs *int64          `json:"timeout_secs,omitempty"`
	MaxRetries  *int            `json:"max_retries,omitempty"`
	Enabled     bool            `json:"enabled"`
	LastRun     *time.Time      `json:"last_run,omitempty"`
	NextRun     time.Time       `json:"next_run"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewSchedule creates a Schedule with a generated ID. NextRun must be computed
// by the caller from the cron expression; the domain does not parse cron.
func NewSchedule(name, cronExpr, typeID string, nextRun, now time.Time) (*Schedule, error) {
	s := &Schedule{
		ID:        xid.New().String(),
		Name:      name,
		CronExpr:  cronExpr,
		TypeID:    typeID,
		Enabled:   true,
		NextRun:   nextRun,
		CreatedAt: now,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the Schedule's field invariants.
func (s *Schedule) Validate() error {
	if s.Name == "" {
		return ErrEmptyScheduleName
	}
	if s.CronExpr == "" {
		return ErrEmptyCronExpr
	}
	if s.TypeID == "" {
		return ErrEmptyTaskTypeID
	}
	return nil
}
