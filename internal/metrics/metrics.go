package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the application metrics
type Metrics struct {
	// Query cache metrics
	CacheRequestTotal  *prometheus.CounterVec
	CacheFetchDuration *prometheus.HistogramVec
	CacheInvalidations *prometheus.CounterVec

	// Status write metrics
	StatusWriteTotal    *prometheus.CounterVec
	StatusWriteDuration prometheus.Histogram

	// HTTP request metrics
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		CacheRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shinkrolist_cache_requests_total",
			Help: "Total number of query cache lookups by result",
		}, []string{"cache", "result"}),

		CacheFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shinkrolist_cache_fetch_duration_seconds",
			Help:    "Duration of query cache fetches in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"cache", "status"}),

		CacheInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shinkrolist_cache_invalidations_total",
			Help: "Total number of query cache entries dropped by invalidation",
		}, []string{"cache"}),

		StatusWriteTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shinkrolist_status_writes_total",
			Help: "Total number of status writes by outcome",
		}, []string{"op", "outcome"}),

		StatusWriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shinkrolist_status_write_duration_seconds",
			Help:    "Duration of status store writes in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shinkrolist_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shinkrolist_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.CacheRequestTotal = registerOrGet(reg, m.CacheRequestTotal).(*prometheus.CounterVec)
	m.CacheFetchDuration = registerOrGet(reg, m.CacheFetchDuration).(*prometheus.HistogramVec)
	m.CacheInvalidations = registerOrGet(reg, m.CacheInvalidations).(*prometheus.CounterVec)
	m.StatusWriteTotal = registerOrGet(reg, m.StatusWriteTotal).(*prometheus.CounterVec)
	m.StatusWriteDuration = registerOrGet(reg, m.StatusWriteDuration).(prometheus.Histogram)
	m.HTTPRequestTotal = registerOrGet(reg, m.HTTPRequestTotal).(*prometheus.CounterVec)
	m.HTTPRequestDuration = registerOrGet(reg, m.HTTPRequestDuration).(*prometheus.HistogramVec)

	return m
}

// registerOrGet tries to register a metric, returns the existing one if already registered
func registerOrGet(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}

// All recording helpers accept a nil receiver so callers can run without metrics.

func (m *Metrics) CacheRequest(cache, result string) {
	if m == nil {
		return
	}
	m.CacheRequestTotal.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) CacheFetch(cache string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.CacheFetchDuration.WithLabelValues(cache, statusLabel(err)).Observe(d.Seconds())
}

func (m *Metrics) CacheInvalidated(cache string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.CacheInvalidations.WithLabelValues(cache).Add(float64(n))
}

func (m *Metrics) StatusWrite(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StatusWriteTotal.WithLabelValues(op, outcome).Inc()
	if d > 0 {
		m.StatusWriteDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) HTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
