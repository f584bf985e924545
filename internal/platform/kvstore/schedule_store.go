package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/platform/kv"
	"github.com/taskhive/taskhive/internal/store"
)

// ScheduleStore implements store.ScheduleStore over the kv port.
type ScheduleStore struct {
	kv kv.Store
}

// NewScheduleStore creates a ScheduleStore over the given port.
func NewScheduleStore(kvStore kv.Store) *ScheduleStore {
	return &ScheduleStore{kv: kvStore}
}

// Create implements store.ScheduleStore.
func (s *ScheduleStore) Create(ctx context.Context, schedule *domain.Schedule) error {
	data, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("%w: encode schedule: %v", store.ErrInternal, err)
	}
	if err := s.kv.Put(ctx, schedKey(schedule.ID), data); err != nil {
		return wrapStorage("create schedule", err)
	}
	return nil
}

// Get implements store.ScheduleStore.
func (s *ScheduleStore) Get(ctx context.Context, id string) (*domain.Schedule, error) {
	data, _, err := s.kv.Get(ctx, schedKey(id))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, store.ErrScheduleNotFound
	}
	if err != nil {
		return nil, wrapStorage("get schedule", err)
	}

	var schedule domain.Schedule
	if err := json.Unmarshal(data, &schedule); err != nil {
		return nil, fmt.Errorf("%w: decode schedule %s: %v", store.ErrInternal, id, err)
	}
	return &schedule, nil
}

// List implements store.ScheduleStore.
func (s *ScheduleStore) List(ctx context.Context) ([]*domain.Schedule, error) {
	entries, err := s.kv.Scan(ctx, schedKeyPrefix)
	if err != nil {
		return nil, wrapStorage("scan schedules", err)
	}

	schedules := make([]*domain.Schedule, 0, len(entries))
	for _, e := range entries {
		var schedule domain.Schedule
		if err := json.Unmarshal(e.Value, &schedule); err != nil {
			return nil, fmt.Errorf("%w: decode schedule: %v", store.ErrInternal, err)
		}
		schedules = append(schedules, &schedule)
	}
	return schedules, nil
}

// Update implements store.ScheduleStore.
func (s *ScheduleStore) Update(ctx context.Context, schedule *domain.Schedule) error {
	data, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("%w: encode schedule: %v", store.ErrInternal, err)
	}
	if err := s.kv.Put(ctx, schedKey(schedule.ID), data); err != nil {
		return wrapStorage("update schedule", err)
	}
	return nil
}

// Delete implements store.ScheduleStore.
func (s *ScheduleStore) Delete(ctx context.Context, id string) error {
	err := s.kv.Delete(ctx, schedKey(id))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return store.ErrScheduleNotFound
	}
	if err != nil {
		return wrapStorage("delete schedule", err)
	}
	return nil
}
