// Package kv defines the engine's persistence port: an ordered key→bytes
// store with per-key versions, prefix scan and a single-key compare-and-set.
// Backends live alongside the interface (memory, sqlite, postgres); everything
// above this package is backend-agnostic.
package kv

import (
	"context"
	"errors"
	"fmt"
)

// Port errors. Backends wrap their driver errors in ErrStorage; callers match
// with errors.Is and never retry the port silently.
var (
	// ErrKeyNotFound is returned by Get and Delete for a missing key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrVersionMismatch is returned by CompareAndSet when the stored
	// version differs from the expected one, including the create case
	// (expected 0) racing an existing key.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrStorage wraps backend failures.
	ErrStorage = errors.New("storage failure")
)

// Entry is one key/value pair returned by Scan, carrying the backend's
// per-key version.
type Entry struct {
	Key     string
	Value   []byte
	Version uint64
}

// Store is the ordered key→bytes persistence port. Versions start at 1 on
// first write and increase by one per overwrite; CompareAndSet with expected
// version 0 creates the key only if it is absent.
type Store interface {
	// Get returns the value and version stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, uint64, error)

	// Put writes value under key unconditionally, bumping the version.
	Put(ctx context.Context, key string, value []byte) error

	// CompareAndSet writes value under key only if the stored version equals
	// expected (0 meaning the key must not exist). Fails with
	// ErrVersionMismatch otherwise.
	CompareAndSet(ctx context.Context, key string, expected uint64, value []byte) error

	// Delete removes key. Deleting an absent key returns ErrKeyNotFound.
	Delete(ctx context.Context, key string) error

	// Scan returns every entry whose key starts with prefix, ordered by key
	// ascending.
	Scan(ctx context.Context, prefix string) ([]Entry, error)

	// Close releases backend resources.
	Close() error
}

// PrefixEnd returns the smallest key greater than every key with the given
// prefix, for backends that scan with half-open key ranges. The empty string
// means "no upper bound" (prefix was empty or all 0xff).
func PrefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}

// storageErr wraps a backend error in ErrStorage with an operation label.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
