package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// InProcessLimiter buckets requests per key using golang.org/x/time/rate
// token buckets. It is the default limiter backend: no external
// dependencies, suitable for a single gateway instance.
type InProcessLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	buckets  map[string]*bucket
	done     chan struct{}
	closeOne sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// idleEvictionHorizon is how long an unused per-client bucket is kept
// before being reclaimed by the sweep loop.
const idleEvictionHorizon = 30 * time.Minute

// NewInProcessLimiter creates a limiter allowing rps sustained
// requests/sec per key with the given burst ceiling.
func NewInProcessLimiter(rps float64, burst int) *InProcessLimiter {
	l := &InProcessLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow implements Limiter.
func (l *InProcessLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	allowed := b.limiter.Allow()
	l.mu.Unlock()

	return allowed, nil
}

// Close implements Limiter.
func (l *InProcessLimiter) Close() {
	l.closeOne.Do(func() { close(l.done) })
}

func (l *InProcessLimiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.done:
			return
		}
	}
}

func (l *InProcessLimiter) evictIdle() {
	cutoff := time.Now().Add(-idleEvictionHorizon)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}
