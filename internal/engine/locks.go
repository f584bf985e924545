package engine

import (
	"sync"
)

// lockTable is a map of reference-counted per-task mutexes. Entries are
// created on first acquire and dropped when the last holder releases, so the
// table stays proportional to the number of tasks under active mutation.
//
// Lock ordering rule: at most one task lock is held at a time; nothing in
// this package nests acquisitions.
type lockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[string]*lockEntry)}
}

// acquire blocks until the lock for id is held and returns the release
// function. Callers must release on every path.
func (t *lockTable) acquire(id string) func() {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		e = &lockEntry{}
		t.entries[id] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		t.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(t.entries, id)
		}
		t.mu.Unlock()
	}
}

// len reports the number of live lock entries; used by tests and shutdown
// draining.
func (t *lockTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
