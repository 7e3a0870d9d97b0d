package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nulpointcorp/inference-gateway/internal/admission"
	"github.com/nulpointcorp/inference-gateway/internal/backend"
	"github.com/nulpointcorp/inference-gateway/internal/logger"
	"github.com/nulpointcorp/inference-gateway/internal/metrics"
	"github.com/nulpointcorp/inference-gateway/internal/proxy"
	"github.com/nulpointcorp/inference-gateway/internal/quota"
	"github.com/nulpointcorp/inference-gateway/internal/ratelimit"
	"github.com/redis/go-redis/v9"
)

// initInfra establishes optional external connections. Redis is only
// required when RATE_LIMIT_BACKEND=redis.
func (a *App) initInfra(ctx context.Context) error {
	if a.cfg.RateLimit.Backend == "redis" {
		a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.RateLimit.RedisURL)))

		rdb, err := connectRedis(ctx, a.cfg.RateLimit.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.log.Info("redis connected")
	}

	return nil
}

// initBackends builds the static backend pools (C4) and the shared HTTP
// client (C5).
func (a *App) initBackends(_ context.Context) error {
	cbCfg := backend.CBConfig{
		ErrorThreshold:  a.cfg.CircuitBreaker.ErrorThreshold,
		TimeWindow:      a.cfg.CircuitBreaker.TimeWindow,
		HalfOpenTimeout: a.cfg.CircuitBreaker.HalfOpenTimeout,
	}
	a.registry = backend.NewRegistry(
		a.cfg.Backends.Chat,
		a.cfg.Backends.Text2SQL,
		a.cfg.Backends.Embed,
		a.cfg.Backends.Rerank,
		a.cfg.CircuitBreaker.Enabled,
		cbCfg,
	)
	a.httpClient = backend.NewHTTPClient()

	a.log.Info("backend pools configured",
		slog.Int("chat_backends", a.registry.Chat.Len()),
		slog.Bool("circuit_breaker_enabled", a.cfg.CircuitBreaker.Enabled),
	)

	return nil
}

// initServices builds the rate limiter (C2), admission queue + reaper
// (C3/C10), request logger, and metrics registry.
func (a *App) initServices(_ context.Context) error {
	switch a.cfg.RateLimit.Backend {
	case "redis":
		a.limiter = ratelimit.NewRedisLimiter(a.rdb, a.cfg.RateLimit.Window, a.limitForWindow())
		a.log.Info("rate limit backend: redis")
	default:
		a.limiter = ratelimit.NewInProcessLimiter(a.cfg.RateLimit.MaxRPS, a.effectiveBurst())
		a.log.Info("rate limit backend: inprocess")
	}

	a.queue = admission.NewQueue(a.cfg.Admission.MaxInflight, a.cfg.Admission.QueueTimeout)
	a.reaper = admission.NewReaper(a.queue, a.cfg.Reaper.IdleHorizon, a.cfg.Reaper.Period, a.log)

	var err error
	a.reqLogger, err = logger.New(a.baseCtx, a.log, a.cfg.PII.Enabled)
	if err != nil {
		return fmt.Errorf("request logger: %w", err)
	}

	a.prom = metrics.New(a.version)

	return nil
}

// initGateway wires the orchestrator (C9) and the HTTP server (C8/C11).
func (a *App) initGateway(_ context.Context) error {
	routes := proxy.RouteTable(a.registry)

	orch := proxy.New(
		routes,
		a.limiter,
		a.queue,
		a.httpClient,
		a.cfg.BackendAPIKey,
		a.cfg.Request.MaxLifetime,
		a.cfg.Request.StreamIdleTimeout,
		a.cfg.Admission.QueueTimeout,
		proxy.Options{
			Logger:    a.log,
			Metrics:   a.prom,
			ReqLogger: a.reqLogger,
			Quota:     quota.NoOp{},
		},
	)

	a.server = proxy.NewServer(orch, a.registry, a.cfg.GatewayAPIKey)
	a.mgmt = &proxy.ManagementRoutes{Metrics: a.prom.Handler()}

	return nil
}

// limitForWindow converts the configured sustained rate + window into the
// integer request budget the Redis sliding-window script enforces.
func (a *App) limitForWindow() int {
	limit := int(a.cfg.RateLimit.MaxRPS * a.cfg.RateLimit.Window.Seconds())
	if a.cfg.RateLimit.Burst > limit {
		limit = a.cfg.RateLimit.Burst
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// effectiveBurst is the larger of the configured burst and the
// window-scaled sustained rate, matching the sliding-window semantics even
// though the in-process limiter is token-bucket shaped.
func (a *App) effectiveBurst() int {
	return a.limitForWindow()
}

// connectRedis parses the URL and verifies connectivity with a PING.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return rdb, nil
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
// e.g. "redis://:secret@localhost:6379" → "redis://***@localhost:6379"
func redactURL(raw string) string {
	for i, c := range raw {
		if c == '@' {
			for j := i - 1; j >= 0; j-- {
				if j+2 < len(raw) && raw[j:j+3] == "://" {
					return raw[:j+3] + "***" + raw[i:]
				}
			}
			return "***" + raw[i:]
		}
	}
	return raw
}
