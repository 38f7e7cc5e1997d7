package services

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	referralEvents  *prometheus.CounterVec
	trackFailures   *prometheus.CounterVec
	commissions     *prometheus.CounterVec
	conversionValue prometheus.Histogram
	droppedEvents   prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		referralEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_events_total",
				Help: "Referral lifecycle events by kind",
			},
			[]string{"event"}, // clicked, converted, cancelled, expired, rejected
		),

		trackFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_track_failures_total",
				Help: "Rejected click tracking requests",
			},
			[]string{"reason"},
		),

		commissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commissions_total",
				Help: "Commission records created or moved to a new status",
			},
			[]string{"type", "status"},
		),

		conversionValue: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "referral_conversion_value",
				Help:    "Conversion values recorded on referrals",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
			},
		),

		droppedEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "events_dropped_total",
				Help: "Lifecycle events that could not be delivered",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.referralEvents,
		m.trackFailures,
		m.commissions,
		m.conversionValue,
		m.droppedEvents,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ReferralEvent(event string) {
	if m == nil {
		return
	}
	m.referralEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) TrackFailure(reason string) {
	if m == nil {
		return
	}
	m.trackFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) Commission(kind, status string) {
	if m == nil {
		return
	}
	m.commissions.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ConversionValue(v float64) {
	if m == nil {
		return
	}
	m.conversionValue.Observe(v)
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
}
