package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 2, cfg.Engine.DispatchIntervalSecs)
	assert.Equal(t, 10, cfg.Engine.WatchdogIntervalSecs)
	assert.Equal(t, 30, cfg.Engine.PollMaxTimeoutSecs)
	assert.Equal(t, 60, cfg.Engine.NotifierIdleEvictSecs)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 5, cfg.Scheduler.IntervalSecs)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TASKHIVE_SERVER_PORT", "9090")
	t.Setenv("TASKHIVE_SERVER_LOG_LEVEL", "debug")
	t.Setenv("TASKHIVE_DATABASE_DRIVER", "sqlite")
	t.Setenv("TASKHIVE_DATABASE_DSN", "/tmp/taskhive.db")
	t.Setenv("TASKHIVE_ENGINE_DISPATCH_INTERVAL_SECS", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/taskhive.db", cfg.Database.DSN)
	assert.Equal(t, 1, cfg.Engine.DispatchIntervalSecs)
}

func TestLoadValidation(t *testing.T) {
	t.Run("invalid log level", func(t *testing.T) {
		t.Setenv("TASKHIVE_SERVER_LOG_LEVEL", "verbose")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("TASKHIVE_DATABASE_DRIVER", "cassandra")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("sqlite requires a dsn", func(t *testing.T) {
		t.Setenv("TASKHIVE_DATABASE_DRIVER", "sqlite")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("non-positive interval", func(t *testing.T) {
		t.Setenv("TASKHIVE_ENGINE_DISPATCH_INTERVAL_SECS", "0")
		_, err := Load()
		assert.Error(t, err)
	})
}
