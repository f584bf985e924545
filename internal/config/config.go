package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Engine    EngineConfig    `mapstructure:"engine"    validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig selects and configures the persistence backend.
// The memory driver needs no DSN; sqlite takes a file path, postgres a
// connection URL.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=memory sqlite postgres"`
	DSN    string `mapstructure:"dsn"    validate:"required_unless=Driver memory"`
}

// EngineConfig contains the engine's four tuning knobs.
type EngineConfig struct {
	DispatchIntervalSecs  int `mapstructure:"dispatch_interval_secs"   validate:"gt=0"`
	WatchdogIntervalSecs  int `mapstructure:"watchdog_interval_secs"   validate:"gt=0"`
	PollMaxTimeoutSecs    int `mapstructure:"poll_max_timeout_secs"    validate:"gt=0"`
	NotifierIdleEvictSecs int `mapstructure:"notifier_idle_evict_secs" validate:"gt=0"`
}

// SchedulerConfig contains the recurring-schedule loop settings.
type SchedulerConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	IntervalSecs int  `mapstructure:"interval_secs" validate:"gt=0"`
}
