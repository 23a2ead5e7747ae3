package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventgate/internal/config"
	"eventgate/internal/constants"
	"eventgate/internal/logger"
)

func TestRegistry_BuildsConfiguredEndpoints(t *testing.T) {
	cfg := config.AdmissionConfig{
		Endpoints: map[string]config.EndpointLimitConfig{
			constants.EndpointWebhook: {RequestsPerMinute: 30, RequestsPerHour: 500, BurstLimit: 5, BlockDurationSeconds: 60},
			constants.EndpointKafka:   {RequestsPerMinute: 600},
		},
	}
	r := NewRegistry(cfg, logger.NopLogger())

	assert.Equal(t, []string{"kafka", "webhook"}, r.Endpoints())

	l, ok := r.Lookup(constants.EndpointWebhook)
	require.True(t, ok)
	assert.Equal(t, Limits{RequestsPerMinute: 30, RequestsPerHour: 500, BurstLimit: 5, BlockDuration: time.Minute}, l.Limits())
}

func TestRegistry_LazyDefaults(t *testing.T) {
	r := NewRegistry(config.AdmissionConfig{}, nil)

	_, ok := r.Lookup("grpc")
	assert.False(t, ok)

	l := r.Limiter("grpc")
	assert.Equal(t, DefaultLimits(), l.Limits())
	assert.Same(t, l, r.Limiter("grpc"))
}

func TestRegistry_CleanupAll(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(config.AdmissionConfig{}, nil, WithClock(clock.Now))

	r.Limiter("a").IsAllowed("k1")
	r.Limiter("b").IsAllowed("k2")
	clock.Advance(2 * time.Hour)

	assert.Equal(t, 2, r.CleanupAll())
}

func TestRegistry_StartJanitorStopsOnCancel(t *testing.T) {
	r := NewRegistry(config.AdmissionConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.StartJanitor(ctx, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
