// Package quota defines the pluggable hook C9 calls once each admitted
// request has finished, whatever its status, allowing an operator to attach
// org-level token accounting
// without coupling the gateway's core admission path to any particular
// billing system.
package quota

import "context"

// Hook is consulted after each completed proxy call with the client key and
// an estimated token count for the exchange. Implementations may record
// usage, enforce a quota, or do nothing.
type Hook interface {
	// CheckAndRecord records estimatedTokens against key. A non-nil error
	// does not abort an in-flight response; it is logged by the caller.
	CheckAndRecord(ctx context.Context, key string, estimatedTokens int) error
}

// NoOp is the default Hook: it performs no accounting.
type NoOp struct{}

// CheckAndRecord implements Hook.
func (NoOp) CheckAndRecord(context.Context, string, int) error { return nil }
