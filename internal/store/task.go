package store

import (
	"context"

	"github.com/taskhive/taskhive/internal/domain"
)

// TaskStore persists task records and keeps the state/type inverted indexes in
// sync with every write. Callers serialize writes to a task through the
// engine's per-task lock; the store additionally detects concurrent writers
// via compare-and-set on the record version and fails with ErrStaleVersion.
type TaskStore interface {
	// Create persists a new task and its index entries. Fails with
	// ErrTaskExists if the ID is already present.
	Create(ctx context.Context, task *domain.Task) error

	// Get returns the task or ErrTaskNotFound.
	Get(ctx context.Context, id string) (*domain.Task, error)

	// Update rewrites the task record and repairs the state index. prevState
	// names the state the stored record held before this mutation.
	Update(ctx context.Context, task *domain.Task, prevState domain.TaskState) error

	// ListByState returns the IDs of every task in the given state, ordered
	// ascending.
	ListByState(ctx context.Context, state domain.TaskState) ([]string, error)

	// ListByType returns the IDs of every task of the given type, ordered
	// ascending.
	ListByType(ctx context.Context, typeID string) ([]string, error)

	// AppendLog appends a line to the task's log stream and returns its
	// sequence number (dense, starting at 1).
	AppendLog(ctx context.Context, id string, level domain.LogLevel, line string) (int64, error)

	// Logs returns the task's log entries in sequence order. limit of 0
	// means no limit; desc reverses the order; level filters when non-empty.
	Logs(ctx context.Context, id string, limit int, desc bool, level domain.LogLevel) ([]domain.LogEntry, error)
}

// TaskTypeStore persists task type registrations.
type TaskTypeStore interface {
	// Create registers a task type. Fails with ErrTypeExists on duplicate.
	Create(ctx context.Context, taskType *domain.TaskType) error

	// Get returns the task type or ErrTaskTypeNotFound.
	Get(ctx context.Context, id string) (*domain.TaskType, error)

	// List returns all registered task types ordered by ID.
	List(ctx context.Context) ([]*domain.TaskType, error)

	// Delete removes a task type registration or returns
	// ErrTaskTypeNotFound.
	Delete(ctx context.Context, id string) error
}

// ScheduleStore persists recurring task schedules.
type ScheduleStore interface {
	// Create persists a new schedule.
	Create(ctx context.Context, schedule *domain.Schedule) error

	// Get returns the schedule or ErrScheduleNotFound.
	Get(ctx context.Context, id string) (*domain.Schedule, error)

	// List returns all schedules ordered by ID.
	List(ctx context.Context) ([]*domain.Schedule, error)

	// Update rewrites the schedule record.
	Update(ctx context.Context, schedule *domain.Schedule) error

	// Delete removes the schedule or returns ErrScheduleNotFound.
	Delete(ctx context.Context, id string) error
}
