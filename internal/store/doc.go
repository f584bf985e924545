// Package store defines interfaces for data persistence operations.
// These interfaces abstract the key-value persistence layout from the
// engine's core logic, allowing the lifecycle rules to remain independent
// of the backing store.
package store
