// Package metrics exposes Prometheus counters for conversation activity.
// Only aggregate, PII-free counts are recorded.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the conversation counters.
type Metrics struct {
	EventsTotal        *prometheus.CounterVec
	ChartsGenerated    prometheus.Counter
	GenerationFailures prometheus.Counter
	SessionsCancelled  prometheus.Counter
	SessionsExpired    prometheus.Counter
	ActiveSessions     prometheus.GaugeFunc
}

// New registers and returns the conversation metrics. activeSessions reports
// the current number of live sessions.
func New(activeSessions func() float64) *Metrics {
	return &Metrics{
		EventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "natalbot_events_total",
			Help: "Total inbound chat events by kind (command or message)",
		}, []string{"kind"}),
		ChartsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "natalbot_charts_generated_total",
			Help: "Total charts generated and delivered",
		}),
		GenerationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "natalbot_generation_failures_total",
			Help: "Total chart generation attempts that failed",
		}),
		SessionsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "natalbot_sessions_cancelled_total",
			Help: "Total sessions cancelled by the user",
		}),
		SessionsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "natalbot_sessions_expired_total",
			Help: "Total sessions destroyed by the idle-timeout sweep",
		}),
		ActiveSessions: promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "natalbot_active_sessions",
			Help: "Current number of live conversation sessions",
		}, activeSessions),
	}
}

// ObserveEvent counts one inbound event. Safe on a nil receiver so tests can
// run without a registry.
func (m *Metrics) ObserveEvent(kind string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(kind).Inc()
}

// IncrementChartsGenerated counts a delivered chart.
func (m *Metrics) IncrementChartsGenerated() {
	if m == nil {
		return
	}
	m.ChartsGenerated.Inc()
}

// IncrementGenerationFailures counts a failed generation attempt.
func (m *Metrics) IncrementGenerationFailures() {
	if m == nil {
		return
	}
	m.GenerationFailures.Inc()
}

// IncrementSessionsCancelled counts a user cancellation.
func (m *Metrics) IncrementSessionsCancelled() {
	if m == nil {
		return
	}
	m.SessionsCancelled.Inc()
}

// IncrementSessionsExpired counts a sweep destruction.
func (m *Metrics) IncrementSessionsExpired() {
	if m == nil {
		return
	}
	m.SessionsExpired.Inc()
}
