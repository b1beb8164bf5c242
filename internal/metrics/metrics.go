// Package metrics exposes the console's Prometheus instruments.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/simp-lee/practiceadmin/internal/browse"
)

const namespace = "practiceadmin"

// Metrics owns a private registry and the instruments recorded into it.
// The zero value is not usable; a nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	browseFetches    *prometheus.CounterVec
	browseDuration   *prometheus.HistogramVec
	browseSessions   prometheus.Gauge
	browseInflight   prometheus.GaugeFunc
}

// New creates the instruments and registers them together with the Go and
// process collectors. inflight reports the number of outstanding browse
// fetches and may be nil.
func New(inflight func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Calls to the practice API, by operation and status class.",
		}, []string{"op", "class"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Practice API latency, by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		browseFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "browse",
			Name:      "fetches_total",
			Help:      "Browse session fetches, by source and outcome.",
		}, []string{"source", "outcome"}),
		browseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "browse",
			Name:      "fetch_duration_seconds",
			Help:      "Browse session fetch latency, by source.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		browseSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "browse",
			Name:      "sessions",
			Help:      "Open browse sessions.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.upstreamRequests,
		m.upstreamDuration,
		m.browseFetches,
		m.browseDuration,
		m.browseSessions,
	)
	if inflight != nil {
		m.browseInflight = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "browse",
			Name:      "inflight_fetches",
			Help:      "Browse fetches currently outstanding.",
		}, inflight)
		reg.MustRegister(m.browseInflight)
	}
	return m
}

// Registry returns the registry the instruments are registered in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency. Unmatched routes are
// reported as "unmatched" to keep label cardinality bounded.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveUpstream records a practice API call.
func (m *Metrics) ObserveUpstream(op string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(op, StatusClass(status)).Inc()
	m.upstreamDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// FetchFinished records a finished browse fetch.
func (m *Metrics) FetchFinished(source browse.Source, outcome browse.Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.browseFetches.WithLabelValues(string(source), string(outcome)).Inc()
	m.browseDuration.WithLabelValues(string(source)).Observe(elapsed.Seconds())
}

// SessionOpened increments the open session gauge.
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.browseSessions.Inc()
	}
}

// SessionClosed decrements the open session gauge.
func (m *Metrics) SessionClosed() {
	if m != nil {
		m.browseSessions.Dec()
	}
}

// StatusClass buckets an HTTP status into "2xx", "4xx" and so on. Zero means
// no response was received and is reported as "error".
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
