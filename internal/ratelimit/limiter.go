// Package ratelimit implements the gateway's per-client sliding window rate
// limiter with burst allowance (C2). Two implementations share the Limiter
// interface: an in-process token-bucket limiter for single-node deployments,
// and a Redis sliding-window limiter for multi-node deployments that need a
// shared view of each client's request rate.
package ratelimit

import "context"

// Limiter decides whether a request identified by key may proceed. Both
// implementations fail open: if the limiter's own bookkeeping cannot be
// consulted (e.g. Redis is down), Allow returns true rather than blocking
// traffic on an infrastructure outage.
type Limiter interface {
	// Allow reports whether a request from key is within the configured
	// rate, consuming one unit of the budget if so.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases any background resources held by the limiter.
	Close()
}
