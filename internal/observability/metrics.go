package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics holds the Prometheus collectors of the relay pipeline.
//
// Labels are bounded:
//   - route:   start | help | content | invalid
//   - outcome: ok | degraded | undelivered | rejected
//   - kind:    the provider error kind
//
// A nil *RelayMetrics is valid and records nothing.
type RelayMetrics struct {
	updates          *prometheus.CounterVec
	completionErrors *prometheus.CounterVec
	completionDur    prometheus.Histogram
	deliveryFailures prometheus.Counter
}

// NewRelayMetrics creates the relay collectors and registers them with reg.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_updates_total",
				Help: "Webhook updates handled, by route and outcome.",
			},
			[]string{"route", "outcome"},
		),
		completionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_completion_errors_total",
				Help: "Failed completion calls, by error kind.",
			},
			[]string{"kind"},
		),
		completionDur: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_completion_duration_seconds",
				Help:    "Duration of completion provider calls in seconds.",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90},
			},
		),
		deliveryFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_delivery_failures_total",
				Help: "Outbound chat messages the transport failed to deliver.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.updates, m.completionErrors, m.completionDur, m.deliveryFailures)
	}
	return m
}

// ObserveUpdate counts one handled update.
func (m *RelayMetrics) ObserveUpdate(route, outcome string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(route, outcome).Inc()
}

// ObserveCompletion records a completion call; kind is empty on success.
func (m *RelayMetrics) ObserveCompletion(d time.Duration, kind string) {
	if m == nil {
		return
	}
	m.completionDur.Observe(d.Seconds())
	if kind != "" {
		m.completionErrors.WithLabelValues(kind).Inc()
	}
}

// ObserveDeliveryFailure counts a failed outbound send.
func (m *RelayMetrics) ObserveDeliveryFailure() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}
