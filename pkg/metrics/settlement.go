package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records capture/refund/webhook outcomes.
type SettlementMetrics struct {
	captureDuration *prometheus.HistogramVec
	captures        *prometheus.CounterVec
	refunds         *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	captureDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_capture_duration_seconds",
		Help:    "Duration of capture settlement, gateway call included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})
	captures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_captures_total",
		Help: "Capture attempts by source and outcome.",
	}, []string{"source", "outcome"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_refunds_total",
		Help: "Refund attempts by outcome.",
	}, []string{"outcome"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_webhook_events_total",
		Help: "Provider webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(captureDuration, captures, refunds, webhookEvents)
	return &SettlementMetrics{
		captureDuration: captureDuration,
		captures:        captures,
		refunds:         refunds,
		webhookEvents:   webhookEvents,
	}
}

// ObserveCapture records one capture attempt.
func (m *SettlementMetrics) ObserveCapture(source, outcome string, duration time.Duration) {
	if m == nil || m.captures == nil {
		return
	}
	m.captures.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
	m.captureDuration.WithLabelValues(normalizeLabel(source)).Observe(duration.Seconds())
}

// IncRefund records one refund attempt.
func (m *SettlementMetrics) IncRefund(outcome string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncWebhookEvent records one webhook delivery.
func (m *SettlementMetrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
