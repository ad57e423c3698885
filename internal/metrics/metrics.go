package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns its own registry so several collectors can coexist in tests.
// All recording methods are safe to call on a nil *Collector.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	AppointmentsTotal *prometheus.CounterVec
	ConflictsTotal    *prometheus.CounterVec
	TransitionsTotal  *prometheus.CounterVec
	LockContention    prometheus.Counter
	SlotQueries       prometheus.Counter
	NotificationsSent *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		AppointmentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "appointments_total",
			Help:      "Appointment lifecycle operations by action.",
		}, []string{"action"}),

		ConflictsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "conflicts_total",
			Help:      "Rejected writes because of overlapping appointments, by operation and detecting layer.",
		}, []string{"operation", "layer"}),

		TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions.",
		}, []string{"from", "to"}),

		LockContention: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "staff_lock_contention_total",
			Help:      "Writes rejected because another request held the staff lock.",
		}),

		SlotQueries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "slot_queries_total",
			Help:      "Available slot enumerations served.",
		}),

		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sms_total",
			Help:      "SMS notifications by outcome.",
		}, []string{"outcome"}),
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Appointment(action string) {
	if c == nil {
		return
	}
	c.AppointmentsTotal.WithLabelValues(action).Inc()
}

func (c *Collector) Conflict(operation, layer string) {
	if c == nil {
		return
	}
	c.ConflictsTotal.WithLabelValues(operation, layer).Inc()
}

func (c *Collector) Transition(from, to string) {
	if c == nil {
		return
	}
	c.TransitionsTotal.WithLabelValues(from, to).Inc()
}

func (c *Collector) Contention() {
	if c == nil {
		return
	}
	c.LockContention.Inc()
}

func (c *Collector) SlotQuery() {
	if c == nil {
		return
	}
	c.SlotQueries.Inc()
}

func (c *Collector) Notification(outcome string) {
	if c == nil {
		return
	}
	c.NotificationsSent.WithLabelValues(outcome).Inc()
}
