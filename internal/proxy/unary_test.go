package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
)

func TestDoUnary_PassesThroughErrorStatus(t *testing.T) {
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"bad request"}`))
	}))
	defer backendSrv.Close()

	o := &Orchestrator{client: http.DefaultClient, backendAPIKey: "k", log: discardLogger()}
	ctx := newPostCtx("/v1/embeddings", []byte(`{}`))
	rt := route{upstreamPath: "/v1/embeddings"}

	lifetimeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	o.doUnary(lifetimeCtx, ctx, rt, backendSrv.URL)

	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", ctx.Response.StatusCode())
	}
	if string(ctx.Response.Body()) != `{"detail":"bad request"}` {
		t.Fatalf("body = %s", ctx.Response.Body())
	}
}

func TestDoUnary_UpstreamUnreachableIs502(t *testing.T) {
	o := &Orchestrator{client: http.DefaultClient, backendAPIKey: "k", log: discardLogger()}
	ctx := newPostCtx("/v1/embeddings", []byte(`{}`))
	rt := route{upstreamPath: "/v1/embeddings"}

	lifetimeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	o.doUnary(lifetimeCtx, ctx, rt, "http://127.0.0.1:1")

	if ctx.Response.StatusCode() != fasthttp.StatusBadGateway {
		t.Fatalf("status = %d, want 502", ctx.Response.StatusCode())
	}
}

func TestDoUnary_LifetimeExceededIs504(t *testing.T) {
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer backendSrv.Close()

	o := &Orchestrator{client: http.DefaultClient, backendAPIKey: "k", log: discardLogger()}
	ctx := newPostCtx("/v1/embeddings", []byte(`{}`))
	rt := route{upstreamPath: "/v1/embeddings"}

	lifetimeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	o.doUnary(lifetimeCtx, ctx, rt, backendSrv.URL)

	if ctx.Response.StatusCode() != fasthttp.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", ctx.Response.StatusCode())
	}
}
