package proxy

import (
	"net/http"
	"testing"
	"time"

	"github.com/nulpointcorp/inference-gateway/internal/admission"
	"github.com/nulpointcorp/inference-gateway/internal/backend"
	"github.com/valyala/fasthttp"
)

func TestHandleHealth_ReportsChatBackendCountWithoutAuth(t *testing.T) {
	reg := backend.NewRegistry([]string{"http://a", "http://b"}, "http://t2sql", "http://embed", "http://rerank", false, backend.CBConfig{})
	routes := RouteTable(reg)
	q := admission.NewQueue(10, time.Second)
	o := New(routes, &fakeLimiter{allow: true}, q, http.DefaultClient, "key", time.Second, time.Second, time.Second, Options{})

	s := NewServer(o, reg, "gateway-key")

	ctx := &fasthttp.RequestCtx{}
	s.handleHealth(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK && ctx.Response.StatusCode() != 0 {
		t.Fatalf("status = %d, want 200 (or unset, fasthttp defaults to 200)", ctx.Response.StatusCode())
	}
	body := string(ctx.Response.Body())
	if body != `{"chat_backends":2,"ok":true}` {
		t.Fatalf("body = %s", body)
	}
}
