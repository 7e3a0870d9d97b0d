// Package admission implements the per-client concurrency queue (C3) and the
// background reaper that evicts idle client bookkeeping (C10).
package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTimeout is returned by Acquire when a slot did not free up within the
// configured queue timeout.
var ErrTimeout = context.DeadlineExceeded

// entry holds one client's admission slot and bookkeeping.
type entry struct {
	sem      *semaphore.Weighted
	held     atomic.Int64
	lastSeen time.Time
}

// Queue admits at most maxInflight concurrent requests per client key,
// queuing additional requests up to queueTimeout before rejecting them.
// Each client gets its own weighted semaphore, created lazily on first use.
type Queue struct {
	maxInflight  int64
	queueTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// NewQueue creates a Queue admitting maxInflight concurrent requests per
// client, with callers waiting up to queueTimeout for a free slot.
func NewQueue(maxInflight int64, queueTimeout time.Duration) *Queue {
	return &Queue{
		maxInflight:  maxInflight,
		queueTimeout: queueTimeout,
		entries:      make(map[string]*entry),
	}
}

// Acquire blocks until a slot is free for key or queueTimeout elapses. On
// success it returns a release function that MUST be called exactly once to
// free the slot; the caller should defer it immediately upon return.
func (q *Queue) Acquire(ctx context.Context, key string) (release func(), err error) {
	e := q.entryFor(key)

	waitCtx, cancel := context.WithTimeout(ctx, q.queueTimeout)
	defer cancel()

	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		return nil, ErrTimeout
	}
	e.held.Add(1)

	var released sync.Once
	return func() {
		released.Do(func() {
			e.held.Add(-1)
			e.sem.Release(1)
		})
	}, nil
}

// Depth returns the number of slots currently held by key (0 if key is
// unknown or idle).
func (q *Queue) Depth(key string) int64 {
	q.mu.Lock()
	e, ok := q.entries[key]
	q.mu.Unlock()
	if !ok {
		return 0
	}
	return e.held.Load()
}

func (q *Queue) entryFor(key string) *entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(q.maxInflight)}
		q.entries[key] = e
	}
	e.lastSeen = time.Now()
	return e
}

// evictIdle removes bookkeeping for clients untouched since cutoff and not
// currently holding any slot. Called by the reaper.
func (q *Queue) evictIdle(cutoff time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	evicted := 0
	for k, e := range q.entries {
		if e.lastSeen.After(cutoff) {
			continue
		}
		if e.held.Load() > 0 {
			continue // still in use, leave it
		}
		delete(q.entries, k)
		evicted++
	}
	return evicted
}

// trackedKeys returns the number of clients with bookkeeping, for metrics.
func (q *Queue) trackedKeys() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
