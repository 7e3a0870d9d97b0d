package proxy

import "github.com/nulpointcorp/inference-gateway/internal/backend"

// route describes one entry of the immutable C8 route table: which pool
// serves it, what path the backend expects the request on, and whether the
// payload's stream flag may switch it to C7.
type route struct {
	pool          *backend.Pool
	upstreamPath  string
	streamCapable bool
}

// RouteTable builds the four-entry static route table from a backend
// registry. Unknown (method, path) pairs fall through to 404 in the router.
func RouteTable(reg *backend.Registry) map[string]route {
	return map[string]route{
		"/v1/chat/completions": {pool: reg.Chat, upstreamPath: "/v1/chat/completions", streamCapable: true},
		"/v1/text2sql":         {pool: reg.Text2SQL, upstreamPath: "/v1/chat/completions", streamCapable: true},
		"/v1/embeddings":       {pool: reg.Embed, upstreamPath: "/v1/embeddings", streamCapable: false},
		"/v1/rerank":           {pool: reg.Rerank, upstreamPath: "/rerank", streamCapable: false},
	}
}
