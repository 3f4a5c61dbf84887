package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/devvluca/EclesIA/internal/push"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports server and broadcast metrics in Prometheus format.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
	registrations *prometheus.CounterVec
	pushes        *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eclesia",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eclesia",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eclesia",
			Subsystem: "events",
			Name:      "registrations_total",
			Help:      "Event registrations by outcome",
		},
		[]string{"status"},
	)

	m.pushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eclesia",
			Subsystem: "push",
			Name:      "notifications_total",
			Help:      "Push notifications by outcome",
		},
		[]string{"status"},
	)

	m.registry.MustRegister(
		m.httpRequests,
		m.httpLatency,
		m.registrations,
		m.pushes,
		collectors.NewGoCollector(),
	)
	return m
}

// Middleware records every request.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// RecordRegistration counts a registration attempt.
func (m *Metrics) RecordRegistration(status string) {
	m.registrations.WithLabelValues(status).Inc()
}

// RecordBroadcast counts the deliveries of one broadcast.
func (m *Metrics) RecordBroadcast(res push.Result) {
	m.pushes.WithLabelValues("sent").Add(float64(res.Sent))
	m.pushes.WithLabelValues("failed").Add(float64(res.Failed))
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
