package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestWebhookMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)
	m.ObserveUnit("message", "processed")
	m.ObserveUnit("status", "reconciled")
	m.ObserveLatency("delivery", 0.5)
}

func TestWebhookMetricsNilSafe(t *testing.T) {
	var m *WebhookMetrics
	m.ObserveUnit("message", "processed")
	m.ObserveLatency("delivery", 0.1)
}
