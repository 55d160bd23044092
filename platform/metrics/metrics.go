// Package metrics exposes Prometheus collectors for the outreach backend.
// A nil *Metrics is valid and records nothing, so callers never branch on
// METRICS_ENABLED.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// Pipeline
	TransitionsTotal *prometheus.CounterVec
	RecoveryTotal    *prometheus.CounterVec
	EnrollmentsTotal prometheus.Counter

	// Engagement
	ProfilesTotal     *prometheus.CounterVec
	EmailEventsTotal  *prometheus.CounterVec
	NotificationsSent *prometheus.CounterVec

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a Metrics instance on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_deal_transitions_total",
				Help: "Deal stage transition attempts by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		RecoveryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_stage_recovery_total",
				Help: "Per-deal results of stage recovery runs",
			},
			[]string{"result"},
		),
		EnrollmentsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_deal_enrollments_total",
				Help: "Contacts enrolled into a pipeline",
			},
		),
		ProfilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_engagement_profiles_total",
				Help: "Engagement profiles computed by resulting tier",
			},
			[]string{"tier"},
		),
		EmailEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_email_events_total",
				Help: "Email tracking events received by kind and whether they changed state",
			},
			[]string{"kind", "result"},
		),
		NotificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_notifications_total",
				Help: "Stage-entry notification deliveries by status",
			},
			[]string{"status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "outreach_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.TransitionsTotal,
		m.RecoveryTotal,
		m.EnrollmentsTotal,
		m.ProfilesTotal,
		m.EmailEventsTotal,
		m.NotificationsSent,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Transition counts one transition attempt.
func (m *Metrics) Transition(kind, outcome string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(kind, outcome).Inc()
}

// Recovery counts one per-deal recovery result.
func (m *Metrics) Recovery(result string) {
	if m == nil {
		return
	}
	m.RecoveryTotal.WithLabelValues(result).Inc()
}

// Enrollment counts one contact entering a pipeline.
func (m *Metrics) Enrollment() {
	if m == nil {
		return
	}
	m.EnrollmentsTotal.Inc()
}

// Profile counts one computed engagement profile.
func (m *Metrics) Profile(tier string) {
	if m == nil {
		return
	}
	m.ProfilesTotal.WithLabelValues(tier).Inc()
}

// EmailEvent counts one tracking event.
func (m *Metrics) EmailEvent(kind, result string) {
	if m == nil {
		return
	}
	m.EmailEventsTotal.WithLabelValues(kind, result).Inc()
}

// Notification counts one notification delivery attempt.
func (m *Metrics) Notification(status string) {
	if m == nil {
		return
	}
	m.NotificationsSent.WithLabelValues(status).Inc()
}

// GinMiddleware records request count and latency per matched route.
// The route template keeps label cardinality bounded.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
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
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
