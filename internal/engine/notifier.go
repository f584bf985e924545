package engine

import (
	"context"
	"sync"
	"time"
)

// notifier broadcasts per-task version advances to long-poll waiters. Each
// watched task has one entry holding the latest published version and a
// channel that is closed (and replaced) on every publish.
//
// Entries with zero waiters and no publish within the idle window are evicted
// by the janitor; a publish for an evicted id is a no-op, which is safe
// because pollers re-read storage when they wake or time out.
type notifier struct {
	mu        sync.Mutex
	entries   map[string]*notifyEntry
	idleEvict time.Duration
	now       func() time.Time
}

type notifyEntry struct {
	version int64
	ch      chan struct{}
	waiters int
	active  time.Time
}

func newNotifier(idleEvict time.Duration, now func() time.Time) *notifier {
	return &notifier{
		entries:   make(map[string]*notifyEntry),
		idleEvict: idleEvict,
		now:       now,
	}
}

// publish records version for id and wakes every waiter. Versions are
// monotonic per task; a stale publish (version not above the recorded one)
// still wakes waiters so they re-read storage.
func (n *notifier) publish(id string, version int64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	e, ok := n.entries[id]
	if !ok {
		return
	}
	if version > e.version {
		e.version = version
	}
	e.active = n.now()
	close(e.ch)
	e.ch = make(chan struct{})
}

// wait suspends until the recorded version for id exceeds seen, the timeout
// elapses, or ctx is cancelled. It returns the recorded version and whether a
// publish woke the waiter. Callers re-read storage either way.
func (n *notifier) wait(ctx context.Context, id string, seen int64, timeout time.Duration) (int64, bool) {
	n.mu.Lock()
	e, ok := n.entries[id]
	if !ok {
		e = &notifyEntry{
			version: seen,
			ch:      make(chan struct{}),
			active:  n.now(),
		}
		n.entries[id] = e
	}
	if e.version > seen {
		version := e.version
		n.mu.Unlock()
		return version, true
	}
	e.waiters++
	ch := e.ch
	n.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	woken := false
	select {
	case <-ch:
		woken = true
	case <-timer.C:
	case <-ctx.Done():
	}

	n.mu.Lock()
	e.waiters--
	version := e.version
	n.mu.Unlock()
	return version, woken
}

// evictIdle drops entries with no waiters and no recent publish, returning
// the number evicted.
func (n *notifier) evictIdle() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	cutoff := n.now().Add(-n.idleEvict)
	evicted := 0
	for id, e := range n.entries {
		if e.waiters == 0 && e.active.Before(cutoff) {
			delete(n.entries, id)
			evicted++
		}
	}
	return evicted
}

// janitor runs evictIdle on a fixed interval until ctx is cancelled.
func (n *notifier) janitor(ctx context.Context) error {
	ticker := time.NewTicker(n.idleEvict)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n.evictIdle()
		}
	}
}

// watcherCount reports the number of live entries; used by tests.
func (n *notifier) watcherCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.entries)
}
