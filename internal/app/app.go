// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra     — external connections (Redis, only for RATE_LIMIT_BACKEND=redis)
//  2. initBackends   — backend pools (C4) and the shared HTTP client (C5)
//  3. initServices   — rate limiter (C2), admission queue + reaper (C3/C10),
//     request logger, metrics registry
//  4. initGateway    — orchestrator (C9) + HTTP server (C8/C11)
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nulpointcorp/inference-gateway/internal/admission"
	"github.com/nulpointcorp/inference-gateway/internal/backend"
	"github.com/nulpointcorp/inference-gateway/internal/config"
	"github.com/nulpointcorp/inference-gateway/internal/logger"
	"github.com/nulpointcorp/inference-gateway/internal/metrics"
	"github.com/nulpointcorp/inference-gateway/internal/proxy"
	"github.com/nulpointcorp/inference-gateway/internal/ratelimit"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connection — nil unless RATE_LIMIT_BACKEND=redis.
	rdb *redis.Client

	registry   *backend.Registry
	httpClient *http.Client
	limiter    ratelimit.Limiter
	queue      *admission.Queue
	reaper     *admission.Reaper
	reqLogger  *logger.Logger
	prom       *metrics.Registry

	mgmt   *proxy.ManagementRoutes
	server *proxy.Server
}

// New initialises all subsystems and returns a ready-to-run App. All
// resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"backends", a.initBackends},
		{"services", a.initServices},
		{"gateway", a.initGateway},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and the C10 reaper loop, blocking until ctx is
// cancelled or an error occurs. It closes the app gracefully when returning.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	a.log.Info("starting gateway",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.Int("chat_backends", a.registry.Chat.Len()),
		slog.String("rate_limit_backend", a.cfg.RateLimit.Backend),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.reaper.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return a.server.StartWithRoutes(addr, a.mgmt)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Close()
		return nil
	})

	return g.Wait()
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times in sequence; calls are not synchronised with one another, so
// concurrent calls are not safe.
func (a *App) Close() {
	if a.reaper != nil {
		a.reaper.Close()
		a.reaper = nil
	}
	if a.limiter != nil {
		a.limiter.Close()
		a.limiter = nil
	}
	if a.reqLogger != nil {
		if err := a.reqLogger.Close(); err != nil {
			a.log.Error("logger close error", slog.String("error", err.Error()))
		}
		a.reqLogger = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}
}
