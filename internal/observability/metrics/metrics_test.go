package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveUsageEvent(t *testing.T) {
	m := New()

	m.ObserveUsageEvent("api_call", false)
	m.ObserveUsageEvent("api_call", true)
	m.ObserveUsageEvent("token", false)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	assert.Equal(t, 2.0, counterValue(t, families, "usage_events_total", "metric", "api_call"))
	assert.Equal(t, 1.0, counterValue(t, families, "usage_events_total", "metric", "token"))
	assert.Equal(t, 1.0, counterValue(t, families, "usage_quota_exceeded_total", "metric", "api_call"))
}

func TestObservePayment(t *testing.T) {
	m := New()

	m.ObservePayment("succeeded")
	m.ObservePayment("succeeded")
	m.ObservePayment("failed")

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	assert.Equal(t, 2.0, counterValue(t, families, "payment_transactions_total", "status", "succeeded"))
	assert.Equal(t, 1.0, counterValue(t, families, "payment_transactions_total", "status", "failed"))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveUsageEvent("api_call", true)
	m.ObservePayment("succeeded")
}

func counterValue(t *testing.T, families []*dto.MetricFamily, name, labelName, labelValue string) float64 {
	t.Helper()
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == labelName && label.GetValue() == labelValue {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
