// Package metrics owns every Prometheus collector the gateway exports. A
// Registry is built once at startup and handed to the components that
// record into it; a nil *Registry records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Registry struct {
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDuration        *prometheus.HistogramVec
	TenantHTTPRequestsTotal    *prometheus.CounterVec
	TenantRateLimitHitsTotal   *prometheus.CounterVec
	RateLimitBuckets           prometheus.Gauge
	TenantLifecycleEventsTotal *prometheus.CounterVec
	ConnectionWaitSeconds      *prometheus.HistogramVec
	ActiveConnections          *prometheus.GaugeVec
	ConnectionTimeoutsTotal    *prometheus.CounterVec
	CircuitBreakerState        *prometheus.GaugeVec
	CircuitBreakerTripsTotal   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		TenantHTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_http_requests_total",
				Help: "Total number of HTTP requests per tenant",
			},
			[]string{"tenant_id", "method", "path", "status"},
		),
		TenantRateLimitHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_rate_limit_hits_total",
				Help: "Total number of rate limited requests per tenant",
			},
			[]string{"tenant_id", "tier"},
		),
		RateLimitBuckets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rate_limit_buckets",
				Help: "Number of live rate limit buckets",
			},
		),
		TenantLifecycleEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_lifecycle_events_total",
				Help: "Total number of tenant lifecycle events",
			},
			[]string{"event"},
		),
		ConnectionWaitSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenant_connection_wait_seconds",
				Help:    "Time spent waiting for a tenant connection permit",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"tenant_id"},
		),
		ActiveConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tenant_active_connections",
				Help: "Connections currently held per tenant",
			},
			[]string{"tenant_id"},
		),
		ConnectionTimeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_connection_timeouts_total",
				Help: "Total number of connection permit timeouts per tenant",
			},
			[]string{"tenant_id"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tenant_circuit_breaker_state",
				Help: "Circuit breaker state per tenant (0 closed, 1 open, 2 half-open)",
			},
			[]string{"tenant_id"},
		),
		CircuitBreakerTripsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_circuit_breaker_trips_total",
				Help: "Total number of closed to open transitions per tenant",
			},
			[]string{"tenant_id"},
		),
	}

	reg.MustRegister(
		r.HTTPRequestsTotal,
		r.HTTPRequestDuration,
		r.TenantHTTPRequestsTotal,
		r.TenantRateLimitHitsTotal,
		r.RateLimitBuckets,
		r.TenantLifecycleEventsTotal,
		r.ConnectionWaitSeconds,
		r.ActiveConnections,
		r.ConnectionTimeoutsTotal,
		r.CircuitBreakerState,
		r.CircuitBreakerTripsTotal,
	)

	return r
}

func (r *Registry) ObserveHTTPRequest(tenantID, method, path string, status int, took time.Duration) {
	if r == nil {
		return
	}
	code := strconv.Itoa(status)
	r.HTTPRequestsTotal.WithLabelValues(method, path, code).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path).Observe(took.Seconds())
	if tenantID != "" {
		r.TenantHTTPRequestsTotal.WithLabelValues(tenantID, method, path, code).Inc()
	}
}

func (r *Registry) RateLimitHit(tenantID, tier string) {
	if r == nil {
		return
	}
	if tenantID == "" {
		tenantID = "unknown"
	}
	if tier == "" {
		tier = "unknown"
	}
	r.TenantRateLimitHitsTotal.WithLabelValues(tenantID, tier).Inc()
}

func (r *Registry) SetRateLimitBuckets(n int) {
	if r == nil {
		return
	}
	r.RateLimitBuckets.Set(float64(n))
}

// Lifecycle events: created, suspended, reactivated, deleted.
func (r *Registry) TenantLifecycleEvent(event string) {
	if r == nil {
		return
	}
	r.TenantLifecycleEventsTotal.WithLabelValues(event).Inc()
}

func (r *Registry) ConnectionWait(tenantID string, took time.Duration) {
	if r == nil {
		return
	}
	r.ConnectionWaitSeconds.WithLabelValues(tenantID).Observe(took.Seconds())
}

func (r *Registry) ConnectionAcquired(tenantID string) {
	if r == nil {
		return
	}
	r.ActiveConnections.WithLabelValues(tenantID).Inc()
}

func (r *Registry) ConnectionReleased(tenantID string) {
	if r == nil {
		return
	}
	r.ActiveConnections.WithLabelValues(tenantID).Dec()
}

func (r *Registry) ConnectionTimeout(tenantID string) {
	if r == nil {
		return
	}
	r.ConnectionTimeoutsTotal.WithLabelValues(tenantID).Inc()
}

func (r *Registry) SetCircuitBreakerState(tenantID string, state int) {
	if r == nil {
		return
	}
	r.CircuitBreakerState.WithLabelValues(tenantID).Set(float64(state))
}

func (r *Registry) CircuitBreakerTrip(tenantID string) {
	if r == nil {
		return
	}
	r.CircuitBreakerTripsTotal.WithLabelValues(tenantID).Inc()
}
