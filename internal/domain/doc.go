// Package domain contains the core entities of the task engine: tasks, task
// types, log entries and schedules, together with their states and validation
// rules. It is independent of persistence and delivery mechanisms.
package domain
