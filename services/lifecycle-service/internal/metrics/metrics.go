package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lifecycle"

type Collector struct {
	registry *prometheus.Registry

	TicksTotal         *prometheus.CounterVec
	TickDuration       prometheus.Histogram
	TransitionsTotal   *prometheus.CounterVec
	RemindersTotal     *prometheus.CounterVec
	AppointmentErrors  *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
}

// NewCollector registers every lifecycle metric plus the Go runtime and
// process collectors on a private registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		TicksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Scheduler ticks by outcome (completed, skipped, panicked).",
		}, []string{"outcome"}),

		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one scheduler tick.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Persisted status transitions by source (automatic, manual).",
		}, []string{"from", "to", "source"}),

		RemindersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "reminders_total",
			Help:      "Reminders marked sent by kind.",
		}, []string{"kind"}),

		AppointmentErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "errors_total",
			Help:      "Per-appointment failures inside a tick by stage.",
		}, []string{"stage"}),

		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "total",
			Help:      "Notification dispatch results.",
		}, []string{"result"}),
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveTick(outcome string, took time.Duration) {
	c.TicksTotal.WithLabelValues(outcome).Inc()
	if outcome != "skipped" {
		c.TickDuration.Observe(took.Seconds())
	}
}

func (c *Collector) Transition(from, to, source string) {
	c.TransitionsTotal.WithLabelValues(from, to, source).Inc()
}

func (c *Collector) Reminder(kind string) {
	c.RemindersTotal.WithLabelValues(kind).Inc()
}

func (c *Collector) AppointmentError(stage string) {
	c.AppointmentErrors.WithLabelValues(stage).Inc()
}

func (c *Collector) Notification(result string) {
	c.NotificationsTotal.WithLabelValues(result).Inc()
}
