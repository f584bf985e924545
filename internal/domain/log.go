package domain

import (
	"errors"
	"time"
)

// LogLevel classifies a task log line.
type LogLevel string

// Valid log levels, mirroring slog's level set.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ErrInvalidLogLevel is returned when a log append carries an unknown level.
var ErrInvalidLogLevel = errors.New("invalid log level")

// IsValid reports whether the level is one of the defined log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// LogEntry is one line of a task's append-only log stream. Seq is dense and
// strictly increasing from 1 within a task; retries share the stream.
type LogEntry struct {
	Seq   int64     `json:"seq"`
	TS    time.Time `json:"ts"`
	Level LogLevel  `json:"level"`
	Line  string    `json:"line"`
}
