package backend

import (
	"testing"
	"time"
)

func TestPool_RoundRobinsAcrossBackends(t *testing.T) {
	cb := NewCircuitBreaker(false, CBConfig{}, nil)
	pool := NewPool("chat", []string{"a", "b", "c"}, cb)

	seen := map[string]int{}
	for i := 0; i < 9; i++ {
		u, err := pool.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen[u]++
	}

	for _, u := range []string{"a", "b", "c"} {
		if seen[u] != 3 {
			t.Errorf("expected %s to be chosen 3 times, got %d", u, seen[u])
		}
	}
}

func TestPool_SkipsOpenBreakers(t *testing.T) {
	cb := NewCircuitBreaker(true, CBConfig{ErrorThreshold: 1}, []string{"a", "b"})
	pool := NewPool("chat", []string{"a", "b"}, cb)

	cb.RecordFailure("a")

	for i := 0; i < 4; i++ {
		u, err := pool.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if u != "b" {
			t.Errorf("expected only b to be selected while a is open, got %s", u)
		}
	}
}

func TestPool_NoBackendsReturnsError(t *testing.T) {
	pool := NewPool("chat", nil, NewCircuitBreaker(false, CBConfig{}, nil))
	if _, err := pool.Next(); err != ErrNoBackend {
		t.Errorf("expected ErrNoBackend, got %v", err)
	}
}

func TestPool_AllBreakersOpenFallsBackToLeastRecentlyFailed(t *testing.T) {
	cb := NewCircuitBreaker(true, CBConfig{ErrorThreshold: 1}, []string{"a", "b"})
	pool := NewPool("chat", []string{"a", "b"}, cb)

	cb.RecordFailure("a")
	time.Sleep(time.Millisecond)
	cb.RecordFailure("b")

	u, err := pool.Next()
	if err != nil {
		t.Fatalf("expected degraded selection instead of an error, got %v", err)
	}
	if u != "a" {
		t.Errorf("expected fallback to the least-recently-failed backend (a), got %s", u)
	}
}

func TestRegistry_BuildsAllFourPools(t *testing.T) {
	reg := NewRegistry([]string{"c1", "c2"}, "t2sql", "embed1", "rerank1", false, CBConfig{})

	if reg.Chat.Len() != 2 {
		t.Errorf("expected 2 chat backends, got %d", reg.Chat.Len())
	}
	if reg.Text2SQL.Len() != 1 || reg.Embed.Len() != 1 || reg.Rerank.Len() != 1 {
		t.Error("expected single-member text2sql/embed/rerank pools")
	}
}
