package ratelimit_test

import (
	"context"
	"testing"

	"github.com/nulpointcorp/inference-gateway/internal/ratelimit"
)

func TestInProcessLimiter_AllowsUpToBurst(t *testing.T) {
	limiter := ratelimit.NewInProcessLimiter(1, 5)
	defer limiter.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, "client-a")
		if err != nil {
			t.Fatalf("unexpected error at iteration %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("expected allowed=true within burst at iteration %d", i)
		}
	}

	if allowed, _ := limiter.Allow(ctx, "client-a"); allowed {
		t.Error("expected allowed=false once burst is exhausted")
	}
}

func TestInProcessLimiter_KeysAreIsolatedPerClient(t *testing.T) {
	limiter := ratelimit.NewInProcessLimiter(1, 1)
	defer limiter.Close()
	ctx := context.Background()

	if allowed, _ := limiter.Allow(ctx, "client-a"); !allowed {
		t.Fatal("expected client-a's first request to be allowed")
	}
	if allowed, _ := limiter.Allow(ctx, "client-b"); !allowed {
		t.Fatal("expected client-b's first request to be allowed independently of client-a")
	}
}
