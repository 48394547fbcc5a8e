// Package metrics exposes prometheus instruments for the HTTP layer and the
// divination pipeline.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics instruments inbound requests.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the HTTP instruments on the default registry.
func NewHTTPMetrics() *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oraculum_http_requests_total",
			Help: "Count of HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oraculum_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	prometheus.MustRegister(m.requests, m.duration)
	return m
}

// GinMiddleware records request counts and latency.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

// PipelineMetrics counts divination pipeline outcomes.
type PipelineMetrics struct {
	generations *prometheus.CounterVec
	cacheHits   *prometheus.CounterVec
	denials     *prometheus.CounterVec
	failures    *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline instruments on the default registry.
func NewPipelineMetrics() *PipelineMetrics {
	m := &PipelineMetrics{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oraculum_generations_total",
			Help: "Count of generator invocations by feature.",
		}, []string{"feature"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oraculum_cache_hits_total",
			Help: "Count of artifact reuses by feature and source.",
		}, []string{"feature", "source"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oraculum_entitlement_denials_total",
			Help: "Count of entitlement denials by feature and tier.",
		}, []string{"feature", "tier"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oraculum_pipeline_failures_total",
			Help: "Count of pipeline failures by feature and error kind.",
		}, []string{"feature", "kind"}),
	}
	prometheus.MustRegister(m.generations, m.cacheHits, m.denials, m.failures)
	return m
}

// RecordGeneration increments generator invocation counts.
func (m *PipelineMetrics) RecordGeneration(feature string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(feature).Inc()
}

// RecordCacheHit increments artifact reuse counts. Source is one of
// client, memory, store.
func (m *PipelineMetrics) RecordCacheHit(feature, source string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(feature, source).Inc()
}

// RecordDenial increments entitlement denial counts.
func (m *PipelineMetrics) RecordDenial(feature, tier string) {
	if m == nil {
		return
	}
	m.denials.WithLabelValues(feature, tier).Inc()
}

// RecordFailure increments pipeline failure counts.
func (m *PipelineMetrics) RecordFailure(feature, kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(feature, kind).Inc()
}
