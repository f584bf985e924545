package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store used by tests and the "memory" database
// driver. Contents are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   []byte
	version uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, 0, ErrKeyNotFound
	}
	return append([]byte(nil), e.value...), e.version, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.entries[key]
	s.entries[key] = memoryEntry{
		value:   append([]byte(nil), value...),
		version: prev.version + 1,
	}
	return nil
}

// CompareAndSet implements Store.
func (s *MemoryStore) CompareAndSet(_ context.Context, key string, expected uint64, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	current := uint64(0)
	if ok {
		current = e.version
	}
	if current != expected {
		return ErrVersionMismatch
	}
	s.entries[key] = memoryEntry{
		value:   append([]byte(nil), value...),
		version: current + 1,
	}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return ErrKeyNotFound
	}
	delete(s.entries, key)
	return nil
}

// Scan implements Store.
func (s *MemoryStore) Scan(_ context.Context, prefix string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for key, e := range s.entries {
		if strings.HasPrefix(key, prefix) {
			out = append(out, Entry{
				Key:     key,
				Value:   append([]byte(nil), e.value...),
				Version: e.version,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
