package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/platform/kv"
	"github.com/taskhive/taskhive/internal/store"
)

// TaskStore implements store.TaskStore over the kv port. The task record's
// Version and the port's per-key version advance in lockstep: Create writes
// both at 1, every Update compare-and-sets on Version-1.
type TaskStore struct {
	kv kv.Store
}

// NewTaskStore creates a TaskStore over the given port.
func NewTaskStore(kvStore kv.Store) *TaskStore {
	return &TaskStore{kv: kvStore}
}

// Create implements store.TaskStore. The record is written first with a
// create-only compare-and-set; the two index keys follow. A failure after the
// record write leaves a partial record, which the engine treats as an
// invariant break for that ID.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("%w: encode task: %v", store.ErrInternal, err)
	}

	err = s.kv.CompareAndSet(ctx, taskKey(task.ID), 0, data)
	if errors.Is(err, kv.ErrVersionMismatch) {
		return store.ErrTaskExists
	}
	if err != nil {
		return wrapStorage("create task", err)
	}

	if err := s.kv.Put(ctx, stateIdxKey(task.State, task.ID), nil); err != nil {
		return fmt.Errorf("%w: state index write after record create: %v", store.ErrInternal, err)
	}
	if err := s.kv.Put(ctx, typeIdxKey(task.TypeID, task.ID), nil); err != nil {
		return fmt.Errorf("%w: type index write after record create: %v", store.ErrInternal, err)
	}
	return nil
}

// Get implements store.TaskStore.
func (s *TaskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	data, _, err := s.kv.Get(ctx, taskKey(id))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, store.ErrTaskNotFound
	}
	if err != nil {
		return nil, wrapStorage("get task", err)
	}

	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("%w: decode task %s: %v", store.ErrInternal, id, err)
	}
	return &task, nil
}

// Update implements store.TaskStore. The caller has already bumped
// task.Version; the compare-and-set on Version-1 detects concurrent writers.
// When the state changed, the old index entry is deleted and the new one
// written; a missing old entry is repaired in place rather than failed.
func (s *TaskStore) Update(ctx context.Context, task *domain.Task, prevState domain.TaskState) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("%w: encode task: %v", store.ErrInternal, err)
	}

	err = s.kv.CompareAndSet(ctx, taskKey(task.ID), uint64(task.Version-1), data)
	if errors.Is(err, kv.ErrVersionMismatch) {
		return store.ErrStaleVersion
	}
	if err != nil {
		return wrapStorage("update task", err)
	}

	if prevState == task.State {
		return nil
	}

	if err := s.kv.Delete(ctx, stateIdxKey(prevState, task.ID)); err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			return fmt.Errorf("%w: state index delete after record update: %v", store.ErrInternal, err)
		}
		// Old entry already gone: index was inconsistent, the write below
		// restores it.
	}
	if err := s.kv.Put(ctx, stateIdxKey(task.State, task.ID), nil); err != nil {
		return fmt.Errorf("%w: state index write after record update: %v", store.ErrInternal, err)
	}
	return nil
}

// ListByState implements store.TaskStore.
func (s *TaskStore) ListByState(ctx context.Context, state domain.TaskState) ([]string, error) {
	return s.scanIDs(ctx, stateIdxPrefix(state))
}

// ListByType implements store.TaskStore.
func (s *TaskStore) ListByType(ctx context.Context, typeID string) ([]string, error) {
	return s.scanIDs(ctx, typeIdxPrefix(typeID))
}

func (s *TaskStore) scanIDs(ctx context.Context, prefix string) ([]string, error) {
	entries, err := s.kv.Scan(ctx, prefix)
	if err != nil {
		return nil, wrapStorage("scan index", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, strings.TrimPrefix(e.Key, prefix))
	}
	return ids, nil
}

// AppendLog implements store.TaskStore. Concurrent appends to one task are
// serialized by the engine's per-task lock, so the read-latest-then-write
// sequence is safe.
func (s *TaskStore) AppendLog(ctx context.Context, id string, level domain.LogLevel, line string) (int64, error) {
	entries, err := s.kv.Scan(ctx, taskLogPrefix(id))
	if err != nil {
		return 0, wrapStorage("scan logs", err)
	}

	var last int64
	if len(entries) > 0 {
		var tail domain.LogEntry
		if err := json.Unmarshal(entries[len(entries)-1].Value, &tail); err != nil {
			return 0, fmt.Errorf("%w: decode log entry: %v", store.ErrInternal, err)
		}
		last = tail.Seq
	}

	entry := domain.LogEntry{
		Seq:   last + 1,
		TS:    time.Now().UTC(),
		Level: level,
		Line:  line,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("%w: encode log entry: %v", store.ErrInternal, err)
	}
	if err := s.kv.Put(ctx, logKey(id, entry.Seq), data); err != nil {
		return 0, wrapStorage("append log", err)
	}
	return entry.Seq, nil
}

// Logs implements store.TaskStore.
func (s *TaskStore) Logs(ctx context.Context, id string, limit int, desc bool, level domain.LogLevel) ([]domain.LogEntry, error) {
	raw, err := s.kv.Scan(ctx, taskLogPrefix(id))
	if err != nil {
		return nil, wrapStorage("scan logs", err)
	}

	entries := make([]domain.LogEntry, 0, len(raw))
	for _, e := range raw {
		var entry domain.LogEntry
		if err := json.Unmarshal(e.Value, &entry); err != nil {
			return nil, fmt.Errorf("%w: decode log entry: %v", store.ErrInternal, err)
		}
		if level != "" && entry.Level != level {
			continue
		}
		entries = append(entries, entry)
	}

	if desc {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// wrapStorage converts a port failure into the store's Storage error kind.
func wrapStorage(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", store.ErrStorage, op, err)
}
