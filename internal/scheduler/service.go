// Package scheduler submits recurring tasks. Each schedule carries a cron
// expression; whenever its next-run time comes due, the service submits a
// task of the schedule's type through the engine and advances the next-run
// time along the expression.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/engine"
	"github.com/taskhive/taskhive/internal/store"
)

// Service drives the schedule loop.
type Service struct {
	schedules store.ScheduleStore
	engine    *engine.Engine
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a scheduler checking for due schedules every interval.
func NewService(schedules store.ScheduleStore, eng *engine.Engine, interval time.Duration, logger *slog.Logger) *Service {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Service{
		schedules: schedules,
		engine:    eng,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// Create validates and persists a new schedule, computing its first run time
// from the cron expression.
func (s *Service) Create(ctx context.Context, name, cronExpr, typeID string, opts domain.SubmitOptions) (*domain.Schedule, error) {
	nextRun, err := NextRunTime(cronExpr, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid cron expression: %v", store.ErrValidation, err)
	}

	schedule, err := domain.NewSchedule(name, cronExpr, typeID, nextRun, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	schedule.Payload = opts.Payload
	schedule.TimeoutSecs = opts.TimeoutSecs
	schedule.MaxRetries = opts.MaxRetries

	if err := s.schedules.Create(ctx, schedule); err != nil {
		return nil, err
	}

	s.logger.Info("schedule created",
		"schedule_id", schedule.ID,
		"name", schedule.Name,
		"type_id", schedule.TypeID,
		"next_run", schedule.NextRun)
	return schedule, nil
}

// Get returns one schedule.
func (s *Service) Get(ctx context.Context, id string) (*domain.Schedule, error) {
	return s.schedules.Get(ctx, id)
}

// List returns all schedules.
func (s *Service) List(ctx context.Context) ([]*domain.Schedule, error) {
	return s.schedules.List(ctx)
}

// Delete removes a schedule.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.schedules.Delete(ctx, id)
}

// Run checks for due schedules on a fixed interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.processDue(ctx)
		}
	}
}

// processDue submits a task for every enabled schedule whose next run has
// arrived, then advances it. Failures are logged per schedule so one bad
// entry cannot stall the rest.
func (s *Service) processDue(ctx context.Context) {
	schedules, err := s.schedules.List(ctx)
	if err != nil {
		s.logger.Error("failed to list schedules", "error", err)
		return
	}

	now := s.now().UTC()
	for _, schedule := range schedules {
		if !schedule.Enabled || schedule.NextRun.After(now) {
			continue
		}
		if err := s.fire(ctx, schedule, now); err != nil {
			s.logger.Error("failed to fire schedule",
				"schedule_id", schedule.ID,
				"name", schedule.Name,
				"error", err)
		}
	}
}

// fire submits one due schedule's task and persists the advanced run times.
func (s *Service) fire(ctx context.Context, schedule *domain.Schedule, now time.Time) error {
	task, err := s.engine.Submit(ctx, schedule.TypeID, domain.SubmitOptions{
		TimeoutSecs: schedule.TimeoutSecs,
		MaxRetries:  schedule.MaxRetries,
		Payload:     schedule.Payload,
	})
	if err != nil {
		return err
	}

	nextRun, err := NextRunTime(schedule.CronExpr, now)
	if err != nil {
		return fmt.Errorf("invalid cron expression on stored schedule: %w", err)
	}

	lastRun := now
	schedule.LastRun = &lastRun
	schedule.NextRun = nextRun
	if err := s.schedules.Update(ctx, schedule); err != nil {
		return err
	}

	s.logger.Info("scheduled task submitted",
		"schedule_id", schedule.ID,
		"name", schedule.Name,
		"task_id", task.ID,
		"next_run", nextRun)
	return nil
}

// ValidateCronExpression reports whether expr parses as a standard 5-field
// cron expression.
func ValidateCronExpression(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

// NextRunTime returns the first activation of expr strictly after from.
func NextRunTime(expr string, from time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}
