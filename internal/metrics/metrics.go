// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Asset downloads are large; the top buckets cover multi-minute transfers.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120}

// Cache lookup and store outcomes used as label values.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"

	CacheStored  = "stored"
	CacheSkipped = "skipped"
	CacheFailed  = "failed"
)

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  prometheus.Histogram
	UpstreamResponses *prometheus.CounterVec

	CacheLookups *prometheus.CounterVec
	CacheStores  *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "route"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "asset_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "route"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "asset_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "asset_proxy_upstream_request_duration_seconds",
			Help:    "Time to upstream response headers in seconds.",
			Buckets: defaultBuckets,
		}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_proxy_upstream_responses_total",
			Help: "Total upstream responses by status code.",
		}, []string{"status_code"}),

		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_proxy_cache_lookups_total",
			Help: "Shared cache lookups by result (hit, miss).",
		}, []string{"result"}),

		CacheStores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_proxy_cache_stores_total",
			Help: "Shared cache writes by result (stored, skipped, failed).",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.CacheLookups,
		m.CacheStores,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// NormalizeRoute returns a bounded route label. Echo reports the matched route
// pattern (e.g. "/healthz" or "/*"); anything unmatched becomes "other".
func NormalizeRoute(route string) string {
	switch route {
	case "":
		return "other"
	case "/*":
		return "asset"
	default:
		return route
	}
}
