package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/store"
)

// logGraceWindow is how long after termination a task's log stream stays
// writable, so workers can flush their final lines after complete/fail.
const logGraceWindow = 60 * time.Second

// Config holds the engine's tuning knobs.
type Config struct {
	// DispatchInterval is the pause between dispatcher iterations.
	DispatchInterval time.Duration

	// WatchdogInterval is the pause between watchdog iterations.
	WatchdogInterval time.Duration

	// PollMaxTimeout caps the timeout accepted by Poll.
	PollMaxTimeout time.Duration

	// NotifierIdleEvict is how long an idle notifier entry survives.
	NotifierIdleEvict time.Duration
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		DispatchInterval:  2 * time.Second,
		WatchdogInterval:  10 * time.Second,
		PollMaxTimeout:    30 * time.Second,
		NotifierIdleEvict: 60 * time.Second,
	}
}

// Engine is the façade over the task repository, the state machine and the
// notifier. Every operation on a task runs under that task's lock and follows
// the same sequence: read, decide via the transition table, write with
// compare-and-set, publish.
type Engine struct {
	tasks    store.TaskStore
	types    store.TaskTypeStore
	notifier *notifier
	locks    *lockTable
	metrics  *Metrics
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time

	// poisoned marks task IDs whose create left a partial record behind
	// (record written, index write failed). Further operations on such an
	// ID are refused until the operator intervenes.
	poisonMu sync.Mutex
	poisoned map[string]struct{}
}

// New creates an Engine over the given stores. metrics may not be nil; use
// NewMetrics with a throwaway registry in tests.
func New(tasks store.TaskStore, types store.TaskTypeStore, cfg Config, metrics *Metrics, logger *slog.Logger) *Engine {
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = DefaultConfig().DispatchInterval
	}
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = DefaultConfig().WatchdogInterval
	}
	if cfg.PollMaxTimeout <= 0 {
		cfg.PollMaxTimeout = DefaultConfig().PollMaxTimeout
	}
	if cfg.NotifierIdleEvict <= 0 {
		cfg.NotifierIdleEvict = DefaultConfig().NotifierIdleEvict
	}

	now := time.Now
	e := &Engine{
		tasks:    tasks,
		types:    types,
		locks:    newLockTable(),
		metrics:  metrics,
		logger:   logger.With(slog.String("engine_id", uuid.NewString())),
		cfg:      cfg,
		now:      now,
		poisoned: make(map[string]struct{}),
	}
	e.notifier = newNotifier(cfg.NotifierIdleEvict, func() time.Time { return e.now() })
	return e
}

// SetNowFunc overrides the engine's clock. Tests only.
func (e *Engine) SetNowFunc(now func() time.Time) {
	e.now = now
}

// RegisterType registers a task type.
func (e *Engine) RegisterType(ctx context.Context, id, service string, defaultTimeoutSecs int64, maxConcurrency int) (*domain.TaskType, error) {
	taskType, err := domain.NewTaskType(id, service, defaultTimeoutSecs, maxConcurrency, e.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if err := e.types.Create(ctx, taskType); err != nil {
		return nil, err
	}

	e.logger.Info("task type registered",
		"type_id", taskType.ID,
		"service", taskType.Service,
		"max_concurrency", taskType.MaxConcurrency)
	return taskType, nil
}

// ListTypes returns all registered task types.
func (e *Engine) ListTypes(ctx context.Context) ([]*domain.TaskType, error) {
	return e.types.List(ctx)
}

// UnregisterType removes a task type. It is refused while any task of the
// type is in a non-terminal state.
func (e *Engine) UnregisterType(ctx context.Context, id string) error {
	if _, err := e.types.Get(ctx, id); err != nil {
		return err
	}

	ids, err := e.tasks.ListByType(ctx, id)
	if err != nil {
		return err
	}
	for _, taskID := range ids {
		task, err := e.tasks.Get(ctx, taskID)
		if errors.Is(err, store.ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if !task.State.IsTerminal() {
			return fmt.Errorf("%w: %s", store.ErrTypeInUse, taskID)
		}
	}

	return e.types.Delete(ctx, id)
}

// Submit validates the type reference and options, persists the task as
// Pending and publishes version 1.
func (e *Engine) Submit(ctx context.Context, typeID string, opts domain.SubmitOptions) (*domain.Task, error) {
	taskType, err := e.types.Get(ctx, typeID)
	if errors.Is(err, store.ErrTaskTypeNotFound) {
		// Unknown type on submit is a validation failure, not a lookup miss.
		return nil, fmt.Errorf("%w: unknown task type %q", store.ErrValidation, typeID)
	}
	if err != nil {
		return nil, err
	}

	task, err := domain.NewTask(taskType, opts, e.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	release := e.locks.acquire(task.ID)
	defer release()

	if err := e.tasks.Create(ctx, task); err != nil {
		if errors.Is(err, store.ErrInternal) {
			e.poison(task.ID, err)
		}
		return nil, err
	}

	e.metrics.Submitted.Inc()
	e.metrics.Transitions.WithLabelValues(string(domain.TaskStatePending)).Inc()
	e.notifier.publish(task.ID, task.Version)

	e.logger.Info("task submitted",
		"task_id", task.ID,
		"type_id", task.TypeID,
		"timeout_secs", task.TimeoutSecs,
		"max_retries", task.MaxRetries)
	return task.Clone(), nil
}

// Get returns the current task record.
func (e *Engine) Get(ctx context.Context, id string) (*domain.Task, error) {
	if err := e.checkPoisoned(id); err != nil {
		return nil, err
	}
	return e.tasks.Get(ctx, id)
}

// ListTasks returns the tasks matching the optional state and type filters,
// resolved through the inverted indexes.
func (e *Engine) ListTasks(ctx context.Context, state domain.TaskState, typeID string) ([]*domain.Task, error) {
	if state != "" && !state.IsValid() {
		return nil, fmt.Errorf("%w: unknown state %q", store.ErrValidation, state)
	}

	var ids []string
	var err error
	switch {
	case state != "" && typeID != "":
		var byState, byType []string
		if byState, err = e.tasks.ListByState(ctx, state); err != nil {
			return nil, err
		}
		if byType, err = e.tasks.ListByType(ctx, typeID); err != nil {
			return nil, err
		}
		ids = lo.Intersect(byState, byType)
	case state != "":
		ids, err = e.tasks.ListByState(ctx, state)
	case typeID != "":
		ids, err = e.tasks.ListByType(ctx, typeID)
	default:
		for _, s := range domain.AllTaskStates {
			batch, err := e.tasks.ListByState(ctx, s)
			if err != nil {
				return nil, err
			}
			ids = append(ids, batch...)
		}
	}
	if err != nil {
		return nil, err
	}

	tasks := make([]*domain.Task, 0, len(ids))
	for _, id := range ids {
		task, err := e.tasks.Get(ctx, id)
		if errors.Is(err, store.ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Claim transitions a Queued task to Running on behalf of workerID. If the
// task reached Queued through a retry, the previous attempt's error is
// archived into the log stream and cleared from the record.
func (e *Engine) Claim(ctx context.Context, id, workerID string) (*domain.Task, error) {
	if workerID == "" {
		return nil, fmt.Errorf("%w: claimed_by is required", store.ErrValidation)
	}

	release := e.locks.acquire(id)
	defer release()

	task, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	next, ok := NextState(task.State, EventClaim, false)
	if !ok || task.ClaimedBy != "" {
		return nil, e.transitionRefused(task, EventClaim)
	}

	if task.Error != "" {
		// Archive the previous attempt's failure now that a new worker owns
		// the task.
		line := fmt.Sprintf("previous attempt failed: %s", task.Error)
		if _, err := e.tasks.AppendLog(ctx, id, domain.LogLevelInfo, line); err != nil {
			return nil, err
		}
		task.Error = ""
	}

	now := e.now().UTC()
	task.State = next
	task.ClaimedBy = workerID
	task.StartedAt = &now
	task.LastActiveAt = now
	task.Version++

	if err := e.applyUpdate(ctx, task, domain.TaskStateQueued); err != nil {
		return nil, err
	}
	e.metrics.Running.Inc()

	e.logger.Info("task claimed", "task_id", id, "claimed_by", workerID)
	return task.Clone(), nil
}

// ReportProgress records a worker's progress counters. Counters must not
// regress; identical counters are accepted and still refresh the heartbeat.
func (e *Engine) ReportProgress(ctx context.Context, id, workerID string, progress domain.Progress, message string) (*domain.Task, error) {
	release := e.locks.acquire(id)
	defer release()

	task, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := NextState(task.State, EventProgress, false); !ok {
		return nil, e.transitionRefused(task, EventProgress)
	}
	if task.ClaimedBy != workerID {
		return nil, fmt.Errorf("%w: task %s is claimed by %q", store.ErrWrongWorker, id, task.ClaimedBy)
	}
	if err := progress.ValidateAgainst(task.Progress); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	task.Progress = progress
	if message != "" {
		task.Message = message
	}
	task.LastActiveAt = e.now().UTC()
	task.Version++

	if err := e.applyUpdate(ctx, task, domain.TaskStateRunning); err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// Complete terminates a Running task successfully.
func (e *Engine) Complete(ctx context.Context, id, workerID, message string) (*domain.Task, error) {
	return e.finish(ctx, id, workerID, EventComplete, "", message)
}

// Fail records a failed attempt. When retries remain the task moves to
// Retrying and will be re-queued by the dispatcher; otherwise it terminates
// as Failed.
func (e *Engine) Fail(ctx context.Context, id, workerID, errMsg, message string) (*domain.Task, error) {
	if errMsg == "" {
		return nil, fmt.Errorf("%w: error is required", store.ErrValidation)
	}
	return e.finish(ctx, id, workerID, EventFail, errMsg, message)
}

// finish applies a claimant-initiated terminal event (complete or fail).
func (e *Engine) finish(ctx context.Context, id, workerID string, event Event, errMsg, message string) (*domain.Task, error) {
	release := e.locks.acquire(id)
	defer release()

	task, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	retriesRemain := task.RetryCount < task.MaxRetries
	next, ok := NextState(task.State, event, retriesRemain)
	if !ok {
		return nil, e.transitionRefused(task, event)
	}
	if task.ClaimedBy != workerID {
		return nil, fmt.Errorf("%w: task %s is claimed by %q", store.ErrWrongWorker, id, task.ClaimedBy)
	}

	now := e.now().UTC()
	prev := task.State
	task.State = next
	task.Version++

	switch next {
	case domain.TaskStateCompleted:
		if message != "" {
			task.Message = message
		}
		task.EndedAt = &now
	case domain.TaskStateFailed:
		task.Error = errMsg
		if message != "" {
			task.Message = message
		}
		task.EndedAt = &now
	case domain.TaskStateRetrying:
		// Same ID and log stream; the attempt's bookkeeping is reset and the
		// error kept until the retry is claimed.
		task.Error = errMsg
		task.ClaimedBy = ""
		task.StartedAt = nil
		task.EndedAt = nil
		task.LastActiveAt = now
	}

	if err := e.applyUpdate(ctx, task, prev); err != nil {
		return nil, err
	}
	e.metrics.Running.Dec()

	e.logger.Info("task finished",
		"task_id", id,
		"state", string(task.State),
		"error", task.Error)
	return task.Clone(), nil
}

// Cancel moves a non-terminal task to Cancelled. A Running task is not
// preempted — the remote worker learns of the cancel through the Conflict it
// receives on its next progress report — but the stored state is
// authoritative immediately.
func (e *Engine) Cancel(ctx context.Context, id string) (*domain.Task, error) {
	release := e.locks.acquire(id)
	defer release()

	task, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	next, ok := NextState(task.State, EventCancel, false)
	if !ok {
		return nil, e.transitionRefused(task, EventCancel)
	}

	now := e.now().UTC()
	prev := task.State
	task.State = next
	task.EndedAt = &now
	task.Version++

	if err := e.applyUpdate(ctx, task, prev); err != nil {
		return nil, err
	}
	if prev == domain.TaskStateRunning {
		e.metrics.Running.Dec()
	}

	e.logger.Info("task cancelled", "task_id", id, "previous_state", string(prev))
	return task.Clone(), nil
}

// Poll returns the task as soon as its version exceeds seen, or after timeout
// (capped by the engine-wide maximum), whichever comes first. The returned
// record is always re-read from storage, so a waiter woken by an evicted
// notifier entry still observes the freshest state.
func (e *Engine) Poll(ctx context.Context, id string, seen int64, timeout time.Duration) (*domain.Task, error) {
	e.metrics.PollRequests.Inc()

	if timeout > e.cfg.PollMaxTimeout {
		timeout = e.cfg.PollMaxTimeout
	}

	task, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Version > seen || timeout <= 0 {
		return task, nil
	}

	e.metrics.PollWaiters.Inc()
	e.notifier.wait(ctx, id, seen, timeout)
	e.metrics.PollWaiters.Dec()

	return e.Get(ctx, id)
}

// AppendLog appends lines to the task's log stream and refreshes the
// heartbeat. The stream stays writable for a short grace window after
// termination; log writes do not wake poll waiters.
func (e *Engine) AppendLog(ctx context.Context, id string, level domain.LogLevel, lines []string) ([]int64, error) {
	if !level.IsValid() {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, domain.ErrInvalidLogLevel)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: lines are required", store.ErrValidation)
	}

	release := e.locks.acquire(id)
	defer release()

	task, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.logWritable(task) {
		return nil, fmt.Errorf("%w: log stream closed", store.ErrTaskTerminal)
	}

	seqs := make([]int64, 0, len(lines))
	for _, line := range lines {
		seq, err := e.tasks.AppendLog(ctx, id, level, line)
		if err != nil {
			return nil, err
		}
		seqs = append(seqs, seq)
	}

	if !task.State.IsTerminal() {
		task.LastActiveAt = e.now().UTC()
		task.Version++
		// Heartbeat only: the version advances with the record write but
		// log appends never publish to the state channel.
		if err := e.tasks.Update(ctx, task, task.State); err != nil {
			return nil, err
		}
	}
	return seqs, nil
}

// QueryLogs returns the task's log entries. Reads are always allowed.
func (e *Engine) QueryLogs(ctx context.Context, id string, limit int, desc bool, level domain.LogLevel) ([]domain.LogEntry, error) {
	if level != "" && !level.IsValid() {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, domain.ErrInvalidLogLevel)
	}
	if _, err := e.Get(ctx, id); err != nil {
		return nil, err
	}
	return e.tasks.Logs(ctx, id, limit, desc, level)
}

// logWritable reports whether the task's log stream accepts appends.
func (e *Engine) logWritable(task *domain.Task) bool {
	if !task.State.IsTerminal() {
		return true
	}
	return task.EndedAt != nil && e.now().Sub(*task.EndedAt) <= logGraceWindow
}

// load reads the task under the caller-held lock, honoring the poison list.
func (e *Engine) load(ctx context.Context, id string) (*domain.Task, error) {
	if err := e.checkPoisoned(id); err != nil {
		return nil, err
	}
	return e.tasks.Get(ctx, id)
}

// applyUpdate persists the mutated task and publishes its new version.
func (e *Engine) applyUpdate(ctx context.Context, task *domain.Task, prevState domain.TaskState) error {
	if err := e.tasks.Update(ctx, task, prevState); err != nil {
		return err
	}
	if task.State != prevState {
		e.metrics.Transitions.WithLabelValues(string(task.State)).Inc()
	}
	e.notifier.publish(task.ID, task.Version)
	return nil
}

// transitionRefused builds the Conflict error for a disallowed event.
func (e *Engine) transitionRefused(task *domain.Task, event Event) error {
	if task.State.IsTerminal() {
		return fmt.Errorf("%w: task %s is %s", store.ErrTaskTerminal, task.ID, task.State)
	}
	return fmt.Errorf("%w: cannot %s task %s in state %s", store.ErrWrongState, event, task.ID, task.State)
}

func (e *Engine) poison(id string, cause error) {
	e.poisonMu.Lock()
	e.poisoned[id] = struct{}{}
	e.poisonMu.Unlock()
	e.logger.Error("task record left partially written, refusing further operations",
		"task_id", id, "error", cause)
}

func (e *Engine) checkPoisoned(id string) error {
	e.poisonMu.Lock()
	_, bad := e.poisoned[id]
	e.poisonMu.Unlock()
	if bad {
		return fmt.Errorf("%w: task %s has a partially written record", store.ErrInternal, id)
	}
	return nil
}
