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

// Metrics holds the billing counters. It implements billing.Recorder.
type Metrics struct {
	registry         *prometheus.Registry
	invoicesCreated  *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	recurringResults *prometheus.CounterVec
	paymentEvents    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		invoicesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "invoices_created_total",
			Help:      "Invoices created, by source (manual, recurring).",
		}, []string{"source"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "invoice_transitions_total",
			Help:      "Invoice lifecycle actions, by action and result.",
		}, []string{"action", "result"}),
		recurringResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "recurring_subjects_total",
			Help:      "Recurring billing subjects visited, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		paymentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "payment_events_total",
			Help:      "Payment provider events, by type and result.",
		}, []string{"type", "result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "billing",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		m.invoicesCreated,
		m.transitions,
		m.recurringResults,
		m.paymentEvents,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) InvoiceCreated(source string) {
	m.invoicesCreated.WithLabelValues(source).Inc()
}

func (m *Metrics) Transition(action, result string) {
	m.transitions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) RecurringOutcome(kind, outcome string) {
	m.recurringResults.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) PaymentEvent(eventType, result string) {
	m.paymentEvents.WithLabelValues(eventType, result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware observes request latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
