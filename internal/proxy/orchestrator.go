package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/nulpointcorp/inference-gateway/internal/admission"
	"github.com/nulpointcorp/inference-gateway/internal/identity"
	"github.com/nulpointcorp/inference-gateway/internal/logger"
	"github.com/nulpointcorp/inference-gateway/internal/metrics"
	"github.com/nulpointcorp/inference-gateway/internal/quota"
	"github.com/nulpointcorp/inference-gateway/internal/ratelimit"
	"github.com/nulpointcorp/inference-gateway/pkg/apierr"
	"github.com/valyala/fasthttp"
)

// Orchestrator is C9: it composes the identity extractor, rate limiter and
// admission queue in front of the unary/streaming dispatchers, guaranteeing
// the admission slot is released on every exit path — success, upstream
// error, lifetime expiry, client disconnect, or panic.
type Orchestrator struct {
	routes map[string]route

	limiter ratelimit.Limiter
	queue   *admission.Queue
	client  *http.Client

	maxLifetime       time.Duration
	streamIdleTimeout time.Duration
	queueTimeout      time.Duration
	backendAPIKey     string

	log       *slog.Logger
	metrics   *metrics.Registry
	reqLogger *logger.Logger
	quota     quota.Hook
}

// Options configures an Orchestrator's optional dependencies.
type Options struct {
	Logger    *slog.Logger
	Metrics   *metrics.Registry
	ReqLogger *logger.Logger
	Quota     quota.Hook
}

// New builds an Orchestrator. routes is typically the output of RouteTable.
func New(
	routes map[string]route,
	limiter ratelimit.Limiter,
	queue *admission.Queue,
	client *http.Client,
	backendAPIKey string,
	maxLifetime, streamIdleTimeout, queueTimeout time.Duration,
	opts Options,
) *Orchestrator {
	o := &Orchestrator{
		routes:            routes,
		limiter:           limiter,
		queue:             queue,
		client:            client,
		backendAPIKey:     backendAPIKey,
		maxLifetime:       maxLifetime,
		streamIdleTimeout: streamIdleTimeout,
		queueTimeout:      queueTimeout,
		log:               opts.Logger,
		metrics:           opts.Metrics,
		reqLogger:         opts.ReqLogger,
		quota:             opts.Quota,
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.quota == nil {
		o.quota = quota.NoOp{}
	}
	return o
}

// Dispatch is the single entry point registered for every proxied route. It
// is registered once per path by the router (C8); the path itself selects
// the route table entry.
func (o *Orchestrator) Dispatch(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	rt, ok := o.routes[path]
	if !ok {
		apierr.WriteNotFound(ctx)
		return
	}

	start := time.Now()
	key := identity.Extract(ctx)

	if o.metrics != nil {
		o.metrics.SetQueueDepth(key, float64(o.queue.Depth(key)))
	}

	allowed, err := o.limiter.Allow(ctx, key)
	if err == nil && !allowed {
		if o.metrics != nil {
			o.metrics.RecordRateLimitRejection(key, "rate")
		}
		apierr.WriteRateLimit(ctx)
		return
	}

	waitStart := time.Now()
	release, err := o.queue.Acquire(ctx, key)
	if o.metrics != nil {
		o.metrics.ObserveQueueWait(key, time.Since(waitStart))
	}
	if err != nil {
		if o.metrics != nil {
			o.metrics.RecordRateLimitRejection(key, "concurrency")
		}
		apierr.WriteAdmissionTimeout(ctx, int(math.Ceil(o.queueTimeout.Seconds())))
		return
	}

	if o.metrics != nil {
		o.metrics.IncActiveRequests(key)
	}

	backendURL, err := rt.pool.Next()
	if err != nil {
		release()
		if o.metrics != nil {
			o.metrics.DecActiveRequests(key)
		}
		apierr.WriteUpstreamError(ctx, "no backend available")
		return
	}

	streaming := rt.streamCapable && payloadWantsStream(ctx.PostBody())
	reqID, _ := ctx.UserValue("request_id").(string)

	// finish performs the bookkeeping common to unary and streaming exits:
	// pool health feedback, metrics, async request log, the quota hook, and
	// finally the guaranteed slot release. For unary requests it runs
	// synchronously before Dispatch returns; for streaming requests doStream
	// runs it itself when the upstream call fails or answers non-200, and
	// otherwise the stream writer goroutine runs it once the upstream drains,
	// since that goroutine — not this one — owns the slot until then.
	finish := func() {
		defer release()
		if o.metrics != nil {
			o.metrics.DecActiveRequests(key)
		}

		status := ctx.Response.StatusCode()
		if status >= 500 || status == fasthttp.StatusBadGateway {
			rt.pool.RecordFailure(backendURL)
		} else {
			rt.pool.RecordSuccess(backendURL)
		}

		if o.metrics != nil {
			o.metrics.RecordBackendRequest(backendURL, rt.pool.Name(), status)
			o.metrics.ObserveBackendDuration(backendURL, rt.pool.Name(), time.Since(start))
			o.metrics.SetCircuitBreakerState(backendURL, rt.pool.CircuitState(backendURL))
		}

		if o.reqLogger != nil {
			o.reqLogger.Log(logger.RequestLog{
				RequestID: reqID,
				ClientKey: key,
				Pool:      rt.pool.Name(),
				Backend:   backendURL,
				Status:    status,
				Streaming: streaming,
				Latency:   time.Since(start),
			})
		}

		estimated := len(ctx.PostBody()) / 4
		if estimated == 0 {
			estimated = 1
		}
		if err := o.quota.CheckAndRecord(context.Background(), key, estimated); err != nil {
			o.log.WarnContext(ctx, "quota_hook_error", slog.String("error", err.Error()))
		}
	}

	lifetimeCtx, cancel := context.WithTimeout(ctx, o.maxLifetime)

	if streaming {
		// doStream takes ownership of cancel and finish: both run inside
		// doStream on an upstream failure or non-200 status, otherwise from
		// the stream-writer goroutine once the upstream drains or a cap fires.
		o.doStream(lifetimeCtx, cancel, ctx, rt, backendURL, finish)
		return
	}

	defer cancel()
	defer finish()
	o.doUnary(lifetimeCtx, ctx, rt, backendURL)
}

// payloadWantsStream does a minimal, allocation-light scan for a top-level
// "stream": true field, without fully decoding the payload — the gateway is
// payload-transparent except for this one boolean.
func payloadWantsStream(body []byte) bool {
	var probe struct {
		Stream bool `json:"stream"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Stream
}
