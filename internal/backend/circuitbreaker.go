package backend

import (
	"sync"
	"time"
)

// cbState represents the operational state of a per-backend circuit breaker.
//
//	cbClosed   — normal operation; all requests pass through.
//	cbOpen     — backend is failing; requests are rejected immediately.
//	cbHalfOpen — recovery probe; one request is allowed to test the backend.
type cbState int

const (
	cbClosed   cbState = 0
	cbOpen     cbState = 1
	cbHalfOpen cbState = 2
)

// Default circuit breaker tuning, used when CBConfig's fields are zero.
const (
	DefaultCBErrorThreshold  = 5
	DefaultCBTimeWindow      = 60 * time.Second
	DefaultCBHalfOpenTimeout = 30 * time.Second
)

// CBConfig holds circuit breaker tuning parameters. Zero values fall back to
// the package defaults above.
type CBConfig struct {
	ErrorThreshold  int
	TimeWindow      time.Duration
	HalfOpenTimeout time.Duration
}

func (c *CBConfig) errorThreshold() int {
	if c.ErrorThreshold > 0 {
		return c.ErrorThreshold
	}
	return DefaultCBErrorThreshold
}

func (c *CBConfig) timeWindow() time.Duration {
	if c.TimeWindow > 0 {
		return c.TimeWindow
	}
	return DefaultCBTimeWindow
}

func (c *CBConfig) halfOpenTimeout() time.Duration {
	if c.HalfOpenTimeout > 0 {
		return c.HalfOpenTimeout
	}
	return DefaultCBHalfOpenTimeout
}

// backendCB holds per-backend circuit breaker state.
type backendCB struct {
	mu sync.Mutex

	state         cbState
	errorCount    int
	windowStart   time.Time
	openedAt      time.Time
	probeInflight bool
	lastFailure   time.Time
}

// CircuitBreaker tracks independent open/closed/half-open state for each
// backend URL in a pool. When disabled (the default), every backend is
// treated as always-allow; enabling it lets a misbehaving pool member drop
// out of rotation without operator intervention.
type CircuitBreaker struct {
	mu       sync.RWMutex
	breakers map[string]*backendCB
	cfg      CBConfig
	enabled  bool
}

// NewCircuitBreaker creates a CircuitBreaker seeded with the given backend
// URLs. When enabled is false, Allow always returns true and
// RecordSuccess/RecordFailure are no-ops.
func NewCircuitBreaker(enabled bool, cfg CBConfig, backends []string) *CircuitBreaker {
	cb := &CircuitBreaker{
		breakers: make(map[string]*backendCB, len(backends)),
		cfg:      cfg,
		enabled:  enabled,
	}
	for _, b := range backends {
		cb.breakers[b] = &backendCB{state: cbClosed, windowStart: time.Now()}
	}
	return cb
}

// Allow reports whether backendURL should receive the next request.
func (cb *CircuitBreaker) Allow(backendURL string) bool {
	if !cb.enabled {
		return true
	}
	bcb := cb.get(backendURL)
	if bcb == nil {
		return true
	}

	bcb.mu.Lock()
	defer bcb.mu.Unlock()

	switch bcb.state {
	case cbClosed:
		return true
	case cbOpen:
		if time.Since(bcb.openedAt) >= cb.cfg.halfOpenTimeout() {
			bcb.state = cbHalfOpen
			bcb.probeInflight = true
			return true
		}
		return false
	case cbHalfOpen:
		if bcb.probeInflight {
			return false
		}
		bcb.probeInflight = true
		return true
	}
	return true
}

// RecordSuccess resets backendURL's breaker to Closed.
func (cb *CircuitBreaker) RecordSuccess(backendURL string) {
	if !cb.enabled {
		return
	}
	bcb := cb.get(backendURL)
	if bcb == nil {
		return
	}
	bcb.mu.Lock()
	defer bcb.mu.Unlock()
	bcb.state = cbClosed
	bcb.errorCount = 0
	bcb.probeInflight = false
	bcb.windowStart = time.Now()
}

// RecordFailure increments backendURL's error counter, opening the breaker
// once ErrorThreshold failures land within TimeWindow.
func (cb *CircuitBreaker) RecordFailure(backendURL string) {
	if !cb.enabled {
		return
	}
	bcb := cb.get(backendURL)
	if bcb == nil {
		return
	}
	bcb.mu.Lock()
	defer bcb.mu.Unlock()

	now := time.Now()
	if now.Sub(bcb.windowStart) > cb.cfg.timeWindow() {
		bcb.errorCount = 0
		bcb.windowStart = now
	}

	bcb.errorCount++
	bcb.probeInflight = false
	bcb.lastFailure = now

	if bcb.errorCount >= cb.cfg.errorThreshold() {
		bcb.state = cbOpen
		bcb.openedAt = now
	}
}

// StateLabel returns a human-readable state name for metrics export.
func (cb *CircuitBreaker) StateLabel(backendURL string) string {
	bcb := cb.get(backendURL)
	if bcb == nil {
		return "closed"
	}
	bcb.mu.Lock()
	defer bcb.mu.Unlock()
	switch bcb.state {
	case cbOpen:
		return "open"
	case cbHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// StateValue returns backendURL's state as the gauge value
// gateway_circuit_breaker_state uses: 0=closed, 1=open, 2=half-open.
func (cb *CircuitBreaker) StateValue(backendURL string) float64 {
	bcb := cb.get(backendURL)
	if bcb == nil {
		return float64(cbClosed)
	}
	bcb.mu.Lock()
	defer bcb.mu.Unlock()
	return float64(bcb.state)
}

// LeastRecentlyFailed returns the member of candidates that failed longest
// ago (or never, if any candidate has no recorded failure), for use as a
// degraded-selection fallback when every candidate's breaker is open.
func (cb *CircuitBreaker) LeastRecentlyFailed(candidates []string) string {
	best := ""
	var bestFailure time.Time
	for i, c := range candidates {
		bcb := cb.get(c)
		failure := time.Time{}
		if bcb != nil {
			bcb.mu.Lock()
			failure = bcb.lastFailure
			bcb.mu.Unlock()
		}
		if i == 0 || failure.Before(bestFailure) {
			best = c
			bestFailure = failure
		}
	}
	return best
}

func (cb *CircuitBreaker) get(backendURL string) *backendCB {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.breakers[backendURL]
}
