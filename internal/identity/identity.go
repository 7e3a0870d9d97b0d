// Package identity extracts the per-client key that C2, C3 and C10 use to
// bucket rate limits, admission slots and idle state.
package identity

import (
	"strings"

	"github.com/valyala/fasthttp"
)

// Extract returns the client identity for ctx: the leftmost token of
// X-Forwarded-For when present, otherwise the TCP remote address. The
// gateway sits behind a trusted load balancer, so the leftmost
// X-Forwarded-For entry is taken at face value rather than validated
// against a list of trusted proxy hops.
func Extract(ctx *fasthttp.RequestCtx) string {
	if xff := ctx.Request.Header.Peek("X-Forwarded-For"); len(xff) > 0 {
		first := string(xff)
		if i := strings.IndexByte(first, ','); i >= 0 {
			first = first[:i]
		}
		first = strings.TrimSpace(first)
		if first != "" {
			return first
		}
	}
	return ctx.RemoteIP().String()
}
