package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/engine"
	"github.com/taskhive/taskhive/internal/platform/kv"
	"github.com/taskhive/taskhive/internal/platform/kvstore"
	"github.com/taskhive/taskhive/internal/scheduler"
	"github.com/taskhive/taskhive/internal/store"
)

type testServer struct {
	server *httptest.Server
	engine *engine.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	kvStore := kv.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := prometheus.NewRegistry()

	eng := engine.New(
		kvstore.NewTaskStore(kvStore),
		kvstore.NewTaskTypeStore(kvStore),
		engine.DefaultConfig(),
		engine.NewMetrics(registry),
		logger,
	)
	sched := scheduler.NewService(kvstore.NewScheduleStore(kvStore), eng, time.Second, logger)

	server := httptest.NewServer(NewRouter(eng, sched, registry))
	t.Cleanup(server.Close)
	return &testServer{server: server, engine: eng}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.server.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeTask(t *testing.T, data []byte) domain.Task {
	t.Helper()
	var task domain.Task
	require.NoError(t, json.Unmarshal(data, &task))
	return task
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	resp, _ := ts.do(t, http.MethodPost, "/task-types", map[string]any{
		"id":                   "index-rebuild",
		"service":              "search",
		"default_timeout_secs": 300,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := ts.do(t, http.MethodPost, "/tasks", map[string]any{
		"type_id": "index-rebuild",
		"payload": map[string]any{"shard": 4},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	task := decodeTask(t, body)
	assert.Equal(t, domain.TaskStatePending, task.State)
	assert.Equal(t, int64(1), task.Version)

	require.NoError(t, ts.engine.DispatchNow(ctx))

	resp, body = ts.do(t, http.MethodPost, "/tasks/"+task.ID+"/@claim", map[string]any{
		"claimed_by": "worker-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.TaskStateRunning, decodeTask(t, body).State)

	resp, body = ts.do(t, http.MethodPost, "/tasks/"+task.ID+"/@progress", map[string]any{
		"claimed_by": "worker-1",
		"total":      10,
		"success":    5,
		"message":    "halfway",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeTask(t, body)
	assert.Equal(t, int64(5), got.Progress.Success)
	assert.Equal(t, "halfway", got.Message)

	resp, _ = ts.do(t, http.MethodPost, "/tasks/"+task.ID+"/@log", map[string]any{
		"level": "info",
		"lines": []string{"indexing shard 4"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPost, "/tasks/"+task.ID+"/@complete", map[string]any{
		"claimed_by": "worker-1",
		"message":    "done",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.TaskStateCompleted, decodeTask(t, body).State)

	resp, body = ts.do(t, http.MethodGet, "/tasks/"+task.ID+"/@logs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []domain.LogEntry
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "indexing shard 4", entries[0].Line)
}

func TestTaskEndpointStatusCodes(t *testing.T) {
	ts := newTestServer(t)

	t.Run("get unknown task is 404", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodGet, "/tasks/nope", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("submit unknown type is 400", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodPost, "/tasks", map[string]any{"type_id": "ghost"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("submit without type is 400", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodPost, "/tasks", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, ts.server.URL+"/tasks", bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		resp, err := ts.server.Client().Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("claim before queue is 409", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodPost, "/task-types", map[string]any{
			"id": "export", "service": "reports",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		resp, body := ts.do(t, http.MethodPost, "/tasks", map[string]any{"type_id": "export"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		task := decodeTask(t, body)

		resp, _ = ts.do(t, http.MethodPost, "/tasks/"+task.ID+"/@claim", map[string]any{
			"claimed_by": "worker-1",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("double cancel is 409", func(t *testing.T) {
		resp, body := ts.do(t, http.MethodPost, "/tasks", map[string]any{"type_id": "export"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		task := decodeTask(t, body)

		resp, _ = ts.do(t, http.MethodPost, "/tasks/"+task.ID+"/@cancel", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp, _ = ts.do(t, http.MethodPost, "/tasks/"+task.ID+"/@cancel", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("unregister in-use type is 409", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodPost, "/tasks", map[string]any{"type_id": "export"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		resp, _ = ts.do(t, http.MethodDelete, "/task-types/export", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestPollEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	resp, _ := ts.do(t, http.MethodPost, "/task-types", map[string]any{
		"id": "index-rebuild", "service": "search",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, body := ts.do(t, http.MethodPost, "/tasks", map[string]any{"type_id": "index-rebuild"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	task := decodeTask(t, body)

	t.Run("missing seen_version is 400", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodGet, "/tasks/"+task.ID+"/@poll", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("stale seen version returns immediately", func(t *testing.T) {
		resp, body := ts.do(t, http.MethodGet, "/tasks/"+task.ID+"/@poll?seen_version=0", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int64(1), decodeTask(t, body).Version)
	})

	t.Run("waiter observes the next transition", func(t *testing.T) {
		go func() {
			time.Sleep(50 * time.Millisecond)
			_ = ts.engine.DispatchNow(ctx)
		}()

		resp, body := ts.do(t, http.MethodGet,
			"/tasks/"+task.ID+"/@poll?seen_version=1&timeout_secs=5", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decodeTask(t, body)
		assert.Equal(t, domain.TaskStateQueued, got.State)
		assert.Equal(t, int64(2), got.Version)
	})
}

func TestScheduleEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/schedules", map[string]any{
		"name":      "nightly",
		"cron_expr": "0 2 * * *",
		"type_id":   "index-rebuild",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var schedule domain.Schedule
	require.NoError(t, json.Unmarshal(body, &schedule))
	assert.True(t, schedule.Enabled)

	resp, _ = ts.do(t, http.MethodPost, "/schedules", map[string]any{
		"name":      "broken",
		"cron_expr": "not cron",
		"type_id":   "index-rebuild",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/schedules", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []domain.Schedule
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Len(t, all, 1)

	resp, _ = ts.do(t, http.MethodDelete, "/schedules/"+schedule.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodGet, "/schedules/"+schedule.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, _ = ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMapErrorToStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, MapErrorToStatusCode(store.ErrTaskNotFound))
	assert.Equal(t, http.StatusConflict, MapErrorToStatusCode(store.ErrStaleVersion))
	assert.Equal(t, http.StatusConflict, MapErrorToStatusCode(store.ErrTaskTerminal))
	assert.Equal(t, http.StatusBadRequest, MapErrorToStatusCode(store.ErrValidation))
	assert.Equal(t, http.StatusInternalServerError, MapErrorToStatusCode(store.ErrStorage))
	assert.Equal(t, http.StatusInternalServerError, MapErrorToStatusCode(store.ErrInternal))
}
