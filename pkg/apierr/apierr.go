// Package apierr provides the gateway's error response envelope and the
// HTTP status codes associated with each admission/proxy failure mode.
package apierr

import (
	"encoding/json"
	"strconv"

	"github.com/valyala/fasthttp"
)

// envelope is the wire shape of every error response: {"detail": "..."}.
type envelope struct {
	Detail string `json:"detail"`
}

// Write writes detail as a JSON {"detail": ...} body with the given status.
// An empty detail omits the body entirely (used for auth failures, which
// carry no detail per the downstream wire contract).
func Write(ctx *fasthttp.RequestCtx, status int, detail string) {
	ctx.SetStatusCode(status)
	if detail == "" {
		return
	}
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{Detail: detail})
	ctx.SetBody(body)
}

// WriteAuthMissing writes a 401 for a request with no Authorization header.
func WriteAuthMissing(ctx *fasthttp.RequestCtx) {
	Write(ctx, fasthttp.StatusUnauthorized, "")
}

// WriteAuthInvalid writes a 403 for a request whose bearer token does not
// match GATEWAY_API_KEY.
func WriteAuthInvalid(ctx *fasthttp.RequestCtx) {
	Write(ctx, fasthttp.StatusForbidden, "")
}

// WriteRateLimit writes a 429 for a C2 rejection. Retry-After is always 1,
// matching the sliding window's fixed granularity.
func WriteRateLimit(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Retry-After", "1")
	Write(ctx, fasthttp.StatusTooManyRequests, "Rate limit exceeded")
}

// WriteAdmissionTimeout writes a 429 for a C3 queue timeout. retryAfterSecs
// should be ceil(QUEUE_TIMEOUT_SECS).
func WriteAdmissionTimeout(ctx *fasthttp.RequestCtx, retryAfterSecs int) {
	ctx.Response.Header.Set("Retry-After", strconv.Itoa(retryAfterSecs))
	Write(ctx, fasthttp.StatusTooManyRequests, "Too many concurrent requests from this org IP")
}

// WriteLifetimeExceeded writes a 504 for a unary request that exceeded
// MAX_REQUEST_SECS. Streaming requests hit the same cap but terminate the
// stream in place instead (the 200 status is already committed).
func WriteLifetimeExceeded(ctx *fasthttp.RequestCtx) {
	Write(ctx, fasthttp.StatusGatewayTimeout, "Request exceeded max lifetime")
}

// WriteUpstreamError writes a 502 for a transport-level failure reaching the
// backend (dial failure, connection reset, malformed response).
func WriteUpstreamError(ctx *fasthttp.RequestCtx, detail string) {
	Write(ctx, fasthttp.StatusBadGateway, detail)
}

// WriteNotFound writes a 404 for a request to an unknown route.
func WriteNotFound(ctx *fasthttp.RequestCtx) {
	Write(ctx, fasthttp.StatusNotFound, "")
}
