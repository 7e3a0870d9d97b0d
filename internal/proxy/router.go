package proxy

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/fasthttp/router"
	"github.com/nulpointcorp/inference-gateway/internal/backend"
	"github.com/valyala/fasthttp"
)

// ErrBind wraps a failure to bind the listening socket, distinct from a
// runtime error returned once the server is already serving traffic.
type ErrBind struct{ err error }

func (e *ErrBind) Error() string { return fmt.Sprintf("bind: %v", e.err) }
func (e *ErrBind) Unwrap() error { return e.err }

// RouteHandler is a fasthttp handler function.
type RouteHandler = fasthttp.RequestHandler

// ManagementRoutes holds optional management API handler functions
// that are registered alongside the proxy routes.
type ManagementRoutes struct {
	Metrics RouteHandler
}

// Server owns the fasthttp listener and wires C8's static route table to the
// orchestrator (C9) and the health endpoint (C11).
type Server struct {
	orchestrator *Orchestrator
	registry     *backend.Registry
	gatewayKey   string
}

// NewServer builds a Server. The orchestrator already holds the route table
// built from registry; registry is kept separately only to report the chat
// pool size on /health without probing any backend.
func NewServer(o *Orchestrator, registry *backend.Registry, gatewayAPIKey string) *Server {
	return &Server{orchestrator: o, registry: registry, gatewayKey: gatewayAPIKey}
}

// Start starts the HTTP server on addr (e.g. ":8080").
func (s *Server) Start(addr string) error {
	return s.StartWithRoutes(addr, nil)
}

// StartWithRoutes starts the HTTP server with optional management routes.
func (s *Server) StartWithRoutes(addr string, mgmt *ManagementRoutes) error {
	r := router.New()

	auth := authMiddleware(s.gatewayKey)
	dispatch := auth(s.orchestrator.Dispatch)

	r.POST("/v1/chat/completions", dispatch)
	r.POST("/v1/text2sql", dispatch)
	r.POST("/v1/embeddings", dispatch)
	r.POST("/v1/rerank", dispatch)

	// /health is intentionally unauthenticated and never probes a backend —
	// C11 must answer within ~100ms regardless of backend health.
	r.GET("/health", s.handleHealth)

	if mgmt != nil && mgmt.Metrics != nil {
		r.GET("/metrics", mgmt.Metrics)
	}

	handler := applyMiddleware(r.Handler,
		recovery,
		requestID,
		timing,
		securityHeaders,
	)

	srv := &fasthttp.Server{
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &ErrBind{err: err}
	}

	return srv.Serve(ln)
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, map[string]any{
		"ok":            true,
		"chat_backends": s.registry.Chat.Len(),
	})
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}
