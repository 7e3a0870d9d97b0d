// Package backend holds the gateway's static backend pools (C4) and the
// shared HTTP client used to reach them (C5).
package backend

import (
	"errors"
	"sync/atomic"
)

// ErrNoBackend is returned by Pool.Next when the pool has no configured
// backends at all. When every configured backend's breaker is open, Next
// degrades to the least-recently-failed member instead of returning this.
var ErrNoBackend = errors.New("backend: no eligible backend in pool")

// Pool round-robins across a fixed set of backend URLs, skipping any member
// whose circuit breaker is open.
type Pool struct {
	name     string
	backends []string
	cb       *CircuitBreaker
	counter  atomic.Uint64
}

// NewPool creates a named pool over backends, policed by cb.
func NewPool(name string, backends []string, cb *CircuitBreaker) *Pool {
	return &Pool{name: name, backends: backends, cb: cb}
}

// Name returns the pool's route name (e.g. "chat").
func (p *Pool) Name() string { return p.name }

// Len returns the number of configured backends, regardless of health.
func (p *Pool) Len() int { return len(p.backends) }

// Next returns the next backend URL in round-robin order among the
// currently eligible (circuit-closed) members. If every member's breaker is
// open, it falls back to the least-recently-failed member rather than
// erroring, so a pool with no healthy backend still degrades gracefully.
// ErrNoBackend is only returned when the pool has no configured backends.
func (p *Pool) Next() (string, error) {
	n := len(p.backends)
	if n == 0 {
		return "", ErrNoBackend
	}

	start := p.counter.Add(1)
	for i := 0; i < n; i++ {
		candidate := p.backends[(int(start)+i)%n]
		if p.cb.Allow(candidate) {
			return candidate, nil
		}
	}
	return p.cb.LeastRecentlyFailed(p.backends), nil
}

// RecordSuccess reports a successful call against backendURL.
func (p *Pool) RecordSuccess(backendURL string) { p.cb.RecordSuccess(backendURL) }

// RecordFailure reports a failed call against backendURL.
func (p *Pool) RecordFailure(backendURL string) { p.cb.RecordFailure(backendURL) }

// CircuitState returns backendURL's breaker state as a metrics gauge value
// (0=closed, 1=open, 2=half-open).
func (p *Pool) CircuitState(backendURL string) float64 { return p.cb.StateValue(backendURL) }

// Registry is the fixed mapping of route name to backend pool.
type Registry struct {
	Chat     *Pool
	Text2SQL *Pool
	Embed    *Pool
	Rerank   *Pool
}

// NewRegistry builds the four static pools from configuration. text2sql,
// embed and rerank are always single-backend pools; chat may round-robin
// across several.
func NewRegistry(chat []string, text2sql, embed, rerank string, cbEnabled bool, cbCfg CBConfig) *Registry {
	all := append(append([]string{}, chat...), text2sql, embed, rerank)

	cb := NewCircuitBreaker(cbEnabled, cbCfg, all)

	return &Registry{
		Chat:     NewPool("chat", chat, cb),
		Text2SQL: NewPool("text2sql", []string{text2sql}, cb),
		Embed:    NewPool("embed", []string{embed}, cb),
		Rerank:   NewPool("rerank", []string{rerank}, cb),
	}
}
