package scheduler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/engine"
	"github.com/taskhive/taskhive/internal/platform/kv"
	"github.com/taskhive/taskhive/internal/platform/kvstore"
	"github.com/taskhive/taskhive/internal/store"
)

func newTestService(t *testing.T) (*Service, *engine.Engine, *time.Time) {
	t.Helper()
	kvStore := kv.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eng := engine.New(
		kvstore.NewTaskStore(kvStore),
		kvstore.NewTaskTypeStore(kvStore),
		engine.DefaultConfig(),
		engine.NewMetrics(prometheus.NewRegistry()),
		logger,
	)

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	eng.SetNowFunc(func() time.Time { return current })

	svc := NewService(kvstore.NewScheduleStore(kvStore), eng, time.Second, logger)
	svc.now = func() time.Time { return current }

	_, err := eng.RegisterType(context.Background(), "index-rebuild", "search", 300, 0)
	require.NoError(t, err)

	return svc, eng, &current
}

func TestNextRunTime(t *testing.T) {
	from := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	next, err := NextRunTime("0 2 * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC), next)

	next, err = NextRunTime("*/15 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 45, 0, 0, time.UTC), next)

	_, err = NextRunTime("not a cron", from)
	assert.Error(t, err)
}

func TestValidateCronExpression(t *testing.T) {
	assert.NoError(t, ValidateCronExpression("0 2 * * *"))
	assert.NoError(t, ValidateCronExpression("@hourly"))
	assert.Error(t, ValidateCronExpression("99 99 * * *"))
}

func TestServiceCreate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	t.Run("valid schedule", func(t *testing.T) {
		schedule, err := svc.Create(ctx, "nightly", "0 2 * * *", "index-rebuild", domain.SubmitOptions{
			Payload: json.RawMessage(`{"full":true}`),
		})
		require.NoError(t, err)
		assert.True(t, schedule.Enabled)
		assert.Equal(t, time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC), schedule.NextRun)

		got, err := svc.Get(ctx, schedule.ID)
		require.NoError(t, err)
		assert.Equal(t, schedule.ID, got.ID)
	})

	t.Run("invalid cron rejected", func(t *testing.T) {
		_, err := svc.Create(ctx, "broken", "nope", "index-rebuild", domain.SubmitOptions{})
		assert.ErrorIs(t, err, store.ErrValidation)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		_, err := svc.Create(ctx, "", "0 2 * * *", "index-rebuild", domain.SubmitOptions{})
		assert.ErrorIs(t, err, store.ErrValidation)
	})
}

func TestServiceFiresDueSchedules(t *testing.T) {
	svc, eng, current := newTestService(t)
	ctx := context.Background()

	schedule, err := svc.Create(ctx, "quarter-hourly", "*/15 * * * *", "index-rebuild", domain.SubmitOptions{
		Payload: json.RawMessage(`{"shard":1}`),
	})
	require.NoError(t, err)
	firstRun := schedule.NextRun

	// Not due yet: nothing is submitted.
	svc.processDue(ctx)
	tasks, err := eng.ListTasks(ctx, "", "index-rebuild")
	require.NoError(t, err)
	assert.Empty(t, tasks)

	// Cross the due time: one task appears and the schedule advances.
	*current = firstRun.Add(time.Second)
	svc.processDue(ctx)

	tasks, err = eng.ListTasks(ctx, "", "index-rebuild")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskStatePending, tasks[0].State)
	assert.JSONEq(t, `{"shard":1}`, string(tasks[0].Payload))

	got, err := svc.Get(ctx, schedule.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRun)
	assert.True(t, got.NextRun.After(firstRun))

	// Firing again before the new due time submits nothing more.
	svc.processDue(ctx)
	tasks, err = eng.ListTasks(ctx, "", "index-rebuild")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestServiceSkipsDisabledSchedules(t *testing.T) {
	svc, eng, current := newTestService(t)
	ctx := context.Background()

	schedule, err := svc.Create(ctx, "paused", "*/15 * * * *", "index-rebuild", domain.SubmitOptions{})
	require.NoError(t, err)

	got, err := svc.Get(ctx, schedule.ID)
	require.NoError(t, err)
	got.Enabled = false
	require.NoError(t, svc.schedules.Update(ctx, got))

	*current = schedule.NextRun.Add(time.Hour)
	svc.processDue(ctx)

	tasks, err := eng.ListTasks(ctx, "", "index-rebuild")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestServiceDelete(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	schedule, err := svc.Create(ctx, "nightly", "0 2 * * *", "index-rebuild", domain.SubmitOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, schedule.ID))
	assert.ErrorIs(t, svc.Delete(ctx, schedule.ID), store.ErrScheduleNotFound)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
