package proxy

import (
	"testing"

	"github.com/nulpointcorp/inference-gateway/internal/backend"
)

func TestRouteTable_HasAllFourRoutesWithExpectedUpstreamPaths(t *testing.T) {
	reg := backend.NewRegistry([]string{"http://chat-1"}, "http://t2sql", "http://embed", "http://rerank", false, backend.CBConfig{})
	rt := RouteTable(reg)

	cases := []struct {
		path         string
		wantPool     string
		wantUpstream string
		wantStream   bool
	}{
		{"/v1/chat/completions", "chat", "/v1/chat/completions", true},
		{"/v1/text2sql", "text2sql", "/v1/chat/completions", true},
		{"/v1/embeddings", "embed", "/v1/embeddings", false},
		{"/v1/rerank", "rerank", "/rerank", false},
	}

	for _, c := range cases {
		entry, ok := rt[c.path]
		if !ok {
			t.Fatalf("missing route for %s", c.path)
		}
		if entry.pool.Name() != c.wantPool {
			t.Errorf("%s: pool = %q, want %q", c.path, entry.pool.Name(), c.wantPool)
		}
		if entry.upstreamPath != c.wantUpstream {
			t.Errorf("%s: upstreamPath = %q, want %q", c.path, entry.upstreamPath, c.wantUpstream)
		}
		if entry.streamCapable != c.wantStream {
			t.Errorf("%s: streamCapable = %v, want %v", c.path, entry.streamCapable, c.wantStream)
		}
	}

	if len(rt) != 4 {
		t.Errorf("route table has %d entries, want 4", len(rt))
	}
}
