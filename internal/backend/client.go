package backend

import (
	"net"
	"net/http"
	"time"
)

// dialTimeout bounds only TCP connection establishment. It is intentionally
// far shorter than any request's lifetime cap: a backend that can't be
// dialed in 5s is down, but a backend that accepts the connection may still
// legitimately take minutes to stream a long completion.
const dialTimeout = 5 * time.Second

// NewHTTPClient builds the single *http.Client shared by every proxied
// request. Its Timeout is intentionally left at zero: C6 and C7 each apply
// their own per-request deadline via context, and a blanket client timeout
// would cut off legitimate long-running completions and streams alike.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: dialTimeout,
		}).DialContext,
		MaxConnsPerHost:     3000,
		MaxIdleConnsPerHost: 800,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &http.Client{
		Transport: transport,
		// No Timeout: request lifetime is governed by context deadlines
		// applied per-request (C6 unary lifetime cap, C7 idle + lifetime caps).
	}
}
