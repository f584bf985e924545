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

// TaskTypeStore implements store.TaskTypeStore over the kv port.
type TaskTypeStore struct {
	kv kv.Store
}

// NewTaskTypeStore creates a TaskTypeStore over the given port.
func NewTaskTypeStore(kvStore kv.Store) *TaskTypeStore {
	return &TaskTypeStore{kv: kvStore}
}

// Create implements store.TaskTypeStore.
func (s *TaskTypeStore) Create(ctx context.Context, taskType *domain.TaskType) error {
	data, err := json.Marshal(taskType)
	if err != nil {
		return fmt.Errorf("%w: encode task type: %v", store.ErrInternal, err)
	}

	err = s.kv.CompareAndSet(ctx, typeKey(taskType.ID), 0, data)
	if errors.Is(err, kv.ErrVersionMismatch) {
		return store.ErrTypeExists
	}
	if err != nil {
		return wrapStorage("create task type", err)
	}
	return nil
}

// Get implements store.TaskTypeStore.
func (s *TaskTypeStore) Get(ctx context.Context, id string) (*domain.TaskType, error) {
	data, _, err := s.kv.Get(ctx, typeKey(id))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, store.ErrTaskTypeNotFound
	}
	if err != nil {
		return nil, wrapStorage("get task type", err)
	}

	var taskType domain.TaskType
	if err := json.Unmarshal(data, &taskType); err != nil {
		return nil, fmt.Errorf("%w: decode task type %s: %v", store.ErrInternal, id, err)
	}
	return &taskType, nil
}

// List implements store.TaskTypeStore.
func (s *TaskTypeStore) List(ctx context.Context) ([]*domain.TaskType, error) {
	entries, err := s.kv.Scan(ctx, typeKeyPrefix)
	if err != nil {
		return nil, wrapStorage("scan task types", err)
	}

	types := make([]*domain.TaskType, 0, len(entries))
	for _, e := range entries {
		var taskType domain.TaskType
		if err := json.Unmarshal(e.Value, &taskType); err != nil {
			return nil, fmt.Errorf("%w: decode task type: %v", store.ErrInternal, err)
		}
		types = append(types, &taskType)
	}
	return types, nil
}

// Delete implements store.TaskTypeStore.
func (s *TaskTypeStore) Delete(ctx context.Context, id string) error {
	err := s.kv.Delete(ctx, typeKey(id))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return store.ErrTaskTypeNotFound
	}
	if err != nil {
		return wrapStorage("delete task type", err)
	}
	return nil
}
