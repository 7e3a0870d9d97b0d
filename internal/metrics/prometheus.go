// Package metrics provides the gateway's Prometheus metrics registry.
//
// All metrics are scoped to a private registry (not the global default) so
// they don't interfere with host-level metrics when embedded in other
// applications. The /metrics HTTP handler is exposed via Handler().
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Registry holds every metric the admission and proxy pipeline exports.
type Registry struct {
	reg *prometheus.Registry

	// gateway_queue_depth{client} — slots currently held per client.
	queueDepth *prometheus.GaugeVec

	// gateway_queue_wait_seconds{client} — time spent waiting for a C3 slot.
	queueWait *prometheus.HistogramVec

	// gateway_rate_limit_rejections_total{client,reason} — reason is "rate" or "concurrency".
	rateLimitRejections *prometheus.CounterVec

	// gateway_active_requests{client} — requests currently dispatched upstream.
	activeRequests *prometheus.GaugeVec

	// gateway_backend_requests_total{backend,pool,status}
	backendRequests *prometheus.CounterVec

	// gateway_backend_duration_seconds{backend,pool}
	backendDuration *prometheus.HistogramVec

	// gateway_circuit_breaker_state{backend} — 0=closed,1=open,2=half-open
	circuitBreakerState *prometheus.GaugeVec

	// gateway_build_info{version}
	buildInfo *prometheus.GaugeVec

	metricsHandler fasthttp.RequestHandler
}

// New builds a Registry backed by a private prometheus.Registry, seeded
// with the standard Go runtime and process collectors.
func New(version string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		reg: reg,

		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_queue_depth",
				Help: "Admission slots currently held, per client",
			},
			[]string{"client"},
		),

		queueWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_queue_wait_seconds",
				Help:    "Time spent waiting for an admission slot",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"client"},
		),

		rateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_rate_limit_rejections_total",
				Help: "Requests rejected by C2 (rate) or C3 (concurrency)",
			},
			[]string{"client", "reason"},
		),

		activeRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_active_requests",
				Help: "Requests currently dispatched to a backend, per client",
			},
			[]string{"client"},
		),

		backendRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_backend_requests_total",
				Help: "Total requests proxied to each backend",
			},
			[]string{"backend", "pool", "status"},
		),

		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_backend_duration_seconds",
				Help:    "End-to-end duration of a proxied call to a backend",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900},
			},
			[]string{"backend", "pool"},
		),

		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_circuit_breaker_state",
				Help: "Circuit breaker state per backend (0=closed,1=open,2=half-open)",
			},
			[]string{"backend"},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_build_info",
				Help: "Static build metadata, value is always 1",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		r.queueDepth,
		r.queueWait,
		r.rateLimitRejections,
		r.activeRequests,
		r.backendRequests,
		r.backendDuration,
		r.circuitBreakerState,
		r.buildInfo,
	)
	r.buildInfo.WithLabelValues(version).Set(1)

	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	)

	return r
}

// Handler returns the fasthttp handler serving /metrics.
func (r *Registry) Handler() fasthttp.RequestHandler { return r.metricsHandler }

// SetQueueDepth records the number of admission slots currently held by client.
func (r *Registry) SetQueueDepth(client string, depth float64) {
	r.queueDepth.WithLabelValues(client).Set(depth)
}

// ObserveQueueWait records time spent waiting for a C3 slot.
func (r *Registry) ObserveQueueWait(client string, d time.Duration) {
	r.queueWait.WithLabelValues(client).Observe(d.Seconds())
}

// RecordRateLimitRejection increments the rejection counter for client.
// reason is "rate" (C2) or "concurrency" (C3).
func (r *Registry) RecordRateLimitRejection(client, reason string) {
	r.rateLimitRejections.WithLabelValues(client, reason).Inc()
}

// IncActiveRequests marks one more in-flight backend call for client.
func (r *Registry) IncActiveRequests(client string) {
	r.activeRequests.WithLabelValues(client).Inc()
}

// DecActiveRequests marks one fewer in-flight backend call for client.
func (r *Registry) DecActiveRequests(client string) {
	r.activeRequests.WithLabelValues(client).Dec()
}

// RecordBackendRequest increments the completed-request counter for backend/pool/status.
func (r *Registry) RecordBackendRequest(backend, pool string, status int) {
	r.backendRequests.WithLabelValues(backend, pool, strconv.Itoa(status)).Inc()
}

// ObserveBackendDuration records the end-to-end duration of a proxied call.
func (r *Registry) ObserveBackendDuration(backend, pool string, d time.Duration) {
	r.backendDuration.WithLabelValues(backend, pool).Observe(d.Seconds())
}

// SetCircuitBreakerState exports a backend's breaker state as a gauge:
// 0=closed, 1=open, 2=half-open.
func (r *Registry) SetCircuitBreakerState(backend string, state float64) {
	r.circuitBreakerState.WithLabelValues(backend).Set(state)
}
