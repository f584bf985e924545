package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchedule(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	nextRun := now.Add(time.Hour)

	t.Run("valid schedule", func(t *testing.T) {
		s, err := NewSchedule("nightly-rebuild", "0 2 * * *", "index-rebuild", nextRun, now)
		require.NoError(t, err)
		assert.NotEmpty(t, s.ID)
		assert.True(t, s.Enabled)
		assert.Equal(t, nextRun, s.NextRun)
		assert.Nil(t, s.LastRun)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		_, err := NewSchedule("", "0 2 * * *", "index-rebuild", nextRun, now)
		assert.ErrorIs(t, err, ErrEmptyScheduleName)
	})

	t.Run("empty cron rejected", func(t *testing.T) {
		_, err := NewSchedule("nightly", "", "index-rebuild", nextRun, now)
		assert.ErrorIs(t, err, ErrEmptyCronExpr)
	})

	t.Run("empty type rejected", func(t *testing.T) {
		_, err := NewSchedule("nightly", "0 2 * * *", "", nextRun, now)
		assert.ErrorIs(t, err, ErrEmptyTaskTypeID)
	})
}

func TestNewTaskTypeValidation(t *testing.T) {
	now := time.Now().UTC()

	_, err := NewTaskType("", "search", 300, 1, now)
	assert.ErrorIs(t, err, ErrEmptyTypeID)

	_, err = NewTaskType("index-rebuild", "", 300, 1, now)
	assert.ErrorIs(t, err, ErrEmptyTypeService)

	_, err = NewTaskType("index-rebuild", "search", -1, 1, now)
	assert.ErrorIs(t, err, ErrNegativeTypeTimeout)

	_, err = NewTaskType("index-rebuild", "search", 300, -1, now)
	assert.ErrorIs(t, err, ErrNegativeConcurrency)

	tt, err := NewTaskType("index-rebuild", "search", 0, 0, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), tt.DefaultTimeoutSecs)
	assert.Equal(t, 0, tt.MaxConcurrency)
}

func TestLogLevelIsValid(t *testing.T) {
	for _, level := range []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError} {
		assert.True(t, level.IsValid())
	}
	assert.False(t, LogLevel("trace").IsValid())
	assert.False(t, LogLevel("").IsValid())
}
