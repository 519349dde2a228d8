// Package metrics exposes prometheus instruments for the billing service.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the application-level instruments.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	usageEvents   *prometheus.CounterVec
	quotaExceeded *prometheus.CounterVec
	payments      *prometheus.CounterVec
}

// New registers all instruments on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		usageEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usage_events_total",
			Help: "Tracked usage events by metric.",
		}, []string{"metric"}),
		quotaExceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usage_quota_exceeded_total",
			Help: "Usage events recorded over the allocated quota.",
		}, []string{"metric"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_transactions_total",
			Help: "Payment transactions by terminal status.",
		}, []string{"status"}),
	}

	registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.usageEvents,
		m.quotaExceeded,
		m.payments,
	)
	return m
}

// Registry returns the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveUsageEvent counts a tracked usage event, flagging overages.
func (m *Metrics) ObserveUsageEvent(metric string, exceeded bool) {
	if m == nil {
		return
	}
	m.usageEvents.WithLabelValues(metric).Inc()
	if exceeded {
		m.quotaExceeded.WithLabelValues(metric).Inc()
	}
}

// ObservePayment counts a transaction reaching a terminal status.
func (m *Metrics) ObservePayment(status string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(status).Inc()
}

// GinMiddleware records request counts and latencies per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
