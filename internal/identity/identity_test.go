package identity

import (
	"testing"

	"github.com/valyala/fasthttp"
)

func TestExtract_XForwardedFor(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")

	got := Extract(ctx)
	if got != "203.0.113.5" {
		t.Fatalf("got %q, want %q", got, "203.0.113.5")
	}
}

func TestExtract_XForwardedForSingle(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-Forwarded-For", "203.0.113.5")

	got := Extract(ctx)
	if got != "203.0.113.5" {
		t.Fatalf("got %q, want %q", got, "203.0.113.5")
	}
}

func TestExtract_FallsBackToRemoteAddr(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}

	got := Extract(ctx)
	if got == "" {
		t.Fatal("expected a non-empty fallback identity")
	}
}
