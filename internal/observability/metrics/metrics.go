package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics exposes counters/histograms for webhook ingestion.
type WebhookMetrics struct {
	unitTotal *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	m := &WebhookMetrics{
		unitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chathive",
			Subsystem: "webhook",
			Name:      "unit_total",
			Help:      "Webhook units processed, by unit type and outcome",
		}, []string{"unit_type", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chathive",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of webhook delivery processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.unitTotal, m.latency)
	return m
}

// ObserveUnit records the outcome of one message or status unit.
func (m *WebhookMetrics) ObserveUnit(unitType, outcome string) {
	if m == nil {
		return
	}
	m.unitTotal.WithLabelValues(unitType, outcome).Inc()
}

// ObserveLatency records how long a webhook delivery took end to end.
func (m *WebhookMetrics) ObserveLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(eventType).Observe(seconds)
}
