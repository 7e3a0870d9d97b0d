package backend

import (
	"testing"
	"time"
)

const testBackend = "http://backend-a.internal"

func newEnabledCB() *CircuitBreaker {
	return NewCircuitBreaker(true, CBConfig{}, []string{testBackend, "http://backend-b.internal"})
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb := newEnabledCB()
	if cb.StateLabel(testBackend) != "closed" {
		t.Errorf("should start closed, got %s", cb.StateLabel(testBackend))
	}
}

func TestCircuitBreaker_AllowClosedState(t *testing.T) {
	cb := newEnabledCB()
	if !cb.Allow(testBackend) {
		t.Error("closed breaker should allow requests")
	}
}

func TestCircuitBreaker_AllowUnknownBackend(t *testing.T) {
	cb := newEnabledCB()
	if !cb.Allow("http://unknown.internal") {
		t.Error("unknown backend should be allowed")
	}
}

func TestCircuitBreaker_DisabledAlwaysAllows(t *testing.T) {
	cb := NewCircuitBreaker(false, CBConfig{}, []string{testBackend})
	for i := 0; i < DefaultCBErrorThreshold*2; i++ {
		cb.RecordFailure(testBackend)
	}
	if !cb.Allow(testBackend) {
		t.Error("disabled circuit breaker must always allow")
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := newEnabledCB()

	for i := 0; i < DefaultCBErrorThreshold-1; i++ {
		cb.RecordFailure(testBackend)
		if cb.StateLabel(testBackend) != "closed" {
			t.Fatalf("should remain closed before threshold, iteration %d", i)
		}
	}

	cb.RecordFailure(testBackend)
	if cb.StateLabel(testBackend) != "open" {
		t.Error("should be open after reaching threshold")
	}
}

func TestCircuitBreaker_OpenRejectsRequests(t *testing.T) {
	cb := newEnabledCB()
	for i := 0; i < DefaultCBErrorThreshold; i++ {
		cb.RecordFailure(testBackend)
	}
	if cb.Allow(testBackend) {
		t.Error("open breaker should reject requests")
	}
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := newEnabledCB()
	for i := 0; i < DefaultCBErrorThreshold-1; i++ {
		cb.RecordFailure(testBackend)
	}
	cb.RecordSuccess(testBackend)
	if cb.StateLabel(testBackend) != "closed" {
		t.Error("success should reset to closed")
	}
}

func TestCircuitBreaker_WindowReset(t *testing.T) {
	cb := newEnabledCB()

	bcb := cb.breakers[testBackend]
	bcb.mu.Lock()
	bcb.windowStart = time.Now().Add(-DefaultCBTimeWindow - time.Second)
	bcb.errorCount = DefaultCBErrorThreshold - 1
	bcb.mu.Unlock()

	cb.RecordFailure(testBackend)

	if cb.StateLabel(testBackend) != "closed" {
		t.Error("error counter should reset after window expires")
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := newEnabledCB()

	for i := 0; i < DefaultCBErrorThreshold; i++ {
		cb.RecordFailure(testBackend)
	}

	bcb := cb.breakers[testBackend]
	bcb.mu.Lock()
	bcb.openedAt = time.Now().Add(-DefaultCBHalfOpenTimeout - time.Second)
	bcb.mu.Unlock()

	if !cb.Allow(testBackend) {
		t.Error("should allow one probe in half-open state")
	}
	if cb.StateLabel(testBackend) != "half_open" {
		t.Errorf("expected half_open, got %s", cb.StateLabel(testBackend))
	}
	if cb.Allow(testBackend) {
		t.Error("should reject second request while probe is in flight")
	}
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	cb := newEnabledCB()
	for i := 0; i < DefaultCBErrorThreshold; i++ {
		cb.RecordFailure(testBackend)
	}
	bcb := cb.breakers[testBackend]
	bcb.mu.Lock()
	bcb.openedAt = time.Now().Add(-DefaultCBHalfOpenTimeout - time.Second)
	bcb.mu.Unlock()

	cb.Allow(testBackend)
	cb.RecordSuccess(testBackend)

	if cb.StateLabel(testBackend) != "closed" {
		t.Error("success in half-open should close the breaker")
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := newEnabledCB()
	for i := 0; i < DefaultCBErrorThreshold; i++ {
		cb.RecordFailure(testBackend)
	}
	bcb := cb.breakers[testBackend]
	bcb.mu.Lock()
	bcb.openedAt = time.Now().Add(-DefaultCBHalfOpenTimeout - time.Second)
	bcb.mu.Unlock()

	cb.Allow(testBackend)
	cb.RecordFailure(testBackend)

	if cb.StateLabel(testBackend) != "open" {
		t.Error("failure in half-open should reopen the breaker")
	}
}

func TestCircuitBreaker_IndependentBackends(t *testing.T) {
	cb := newEnabledCB()
	for i := 0; i < DefaultCBErrorThreshold; i++ {
		cb.RecordFailure(testBackend)
	}
	if cb.StateLabel(testBackend) != "open" {
		t.Error("backend-a should be open")
	}
	if cb.StateLabel("http://backend-b.internal") != "closed" {
		t.Error("backend-b should remain closed")
	}
}
