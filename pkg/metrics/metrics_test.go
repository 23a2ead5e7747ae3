package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCounter(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func readGauge(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func TestIncRouteDispatch(t *testing.T) {
	before := readCounter(t, RouteDispatchTotal.WithLabelValues("orders", "success"))
	IncRouteDispatch("orders", "success")
	IncRouteDispatch("orders", "success")
	assert.Equal(t, before+2, readCounter(t, RouteDispatchTotal.WithLabelValues("orders", "success")))
}

func TestGauges(t *testing.T) {
	SetRouterQueueSize(42)
	assert.Equal(t, float64(42), readGauge(t, RouterQueueSize))

	SetRouterWorkersAlive(3)
	assert.Equal(t, float64(3), readGauge(t, RouterWorkersAlive))

	SetAdmissionBlockedKeys("webhook", 2)
	assert.Equal(t, float64(2), readGauge(t, AdmissionBlockedKeys.WithLabelValues("webhook")))
}

func TestObserveRouteHandlerDuration(t *testing.T) {
	ObserveRouteHandlerDuration("billing", 15*time.Millisecond)

	m := &dto.Metric{}
	obs, ok := RouteHandlerDuration.WithLabelValues("billing").(prometheus.Histogram)
	require.True(t, ok)
	require.NoError(t, obs.Write(m))
	assert.GreaterOrEqual(t, m.GetHistogram().GetSampleCount(), uint64(1))
}

func TestRegisterAllIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		RegisterAll()
		RegisterAll()
	})
}
