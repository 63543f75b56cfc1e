// Package metrics holds the prometheus collectors for storage and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	storageOps     *prometheus.CounterVec
	storageLatency *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	claims         prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		storageOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wishlist",
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Storage operations by backend, operation and outcome.",
		}, []string{"backend", "op", "outcome"}),
		storageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wishlist",
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Storage operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "op"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wishlist",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		claims: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wishlist",
			Name:      "items_claimed_total",
			Help:      "Items newly marked as gifted.",
		}),
	}
	reg.MustRegister(m.storageOps, m.storageLatency, m.httpRequests, m.claims)
	return m
}

// ObserveStorage records one storage call.
func (m *Metrics) ObserveStorage(backend, op, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.storageOps.WithLabelValues(backend, op, outcome).Inc()
	m.storageLatency.WithLabelValues(backend, op).Observe(time.Since(started).Seconds())
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Claimed counts a newly claimed item.
func (m *Metrics) Claimed() {
	if m == nil {
		return
	}
	m.claims.Inc()
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
