package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventgate/internal/config"
)

func TestFromConfig_Defaults(t *testing.T) {
	cfg := FromConfig("sink", config.CircuitBreakerConfig{})
	assert.Equal(t, "sink", cfg.Name)
	assert.Equal(t, uint32(3), cfg.MaxRequests)
	assert.Equal(t, 60*time.Second, cfg.Timeout)

	assert.False(t, cfg.ReadyToTrip(gobreaker.Counts{Requests: 2, TotalFailures: 2}))
	assert.True(t, cfg.ReadyToTrip(gobreaker.Counts{Requests: 4, TotalFailures: 2}))
}

func TestFromConfig_Overrides(t *testing.T) {
	cfg := FromConfig("sink", config.CircuitBreakerConfig{
		MaxRequests:  1,
		Timeout:      time.Second,
		FailureRatio: 0.9,
		MinRequests:  10,
	})
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.Equal(t, time.Second, cfg.Timeout)
	assert.False(t, cfg.ReadyToTrip(gobreaker.Counts{Requests: 10, TotalFailures: 8}))
	assert.True(t, cfg.ReadyToTrip(gobreaker.Counts{Requests: 10, TotalFailures: 9}))
}

func TestWrapper_OpensAfterFailures(t *testing.T) {
	var transitions []gobreaker.State
	cfg := FromConfig("flaky", config.CircuitBreakerConfig{MinRequests: 2, FailureRatio: 0.5, Timeout: time.Hour})
	cfg.OnStateChange = func(_ string, _, to gobreaker.State) { transitions = append(transitions, to) }
	w := NewWrapper(cfg)

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_, err := w.Execute(context.Background(), func() (interface{}, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}

	assert.True(t, w.IsOpen())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	_, err := w.Execute(context.Background(), func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestWrapper_CanceledContext(t *testing.T) {
	w := NewWrapper(DefaultConfig("ctx"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := w.Execute(ctx, func() (interface{}, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, gobreaker.StateClosed, w.State())
}
