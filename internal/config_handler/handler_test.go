package config_handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventgate/internal/constants"
	"eventgate/internal/logger"
	"eventgate/pkg/models"
)

type fakeReloader struct {
	calls int
	err   error
}

func (f *fakeReloader) ReloadRoutes(context.Context) error {
	f.calls++
	return f.err
}

type capturingProducer struct {
	topic string
	envs  []models.EventEnvelope
}

func (p *capturingProducer) Publish(_ context.Context, topic string, env models.EventEnvelope) error {
	p.topic = topic
	p.envs = append(p.envs, env)
	return nil
}

func (p *capturingProducer) Close() error { return nil }

func newHandler(r *fakeReloader) *Handler {
	return NewHandler(constants.ConfigEventRouteUpdated, constants.ConfigServiceRouter, r, logger.NopLogger())
}

func TestPublisherRoundTripTriggersReload(t *testing.T) {
	producer := &capturingProducer{}
	pub := NewPublisher(producer, "config-updates")

	require.NoError(t, pub.PublishRouteEvent(context.Background(), models.ActionUpdate, "audit", "api"))
	require.Len(t, producer.envs, 1)
	assert.Equal(t, "config-updates", producer.topic)
	assert.Equal(t, constants.ConfigEventRouteUpdated, producer.envs[0].EventType)
	assert.Equal(t, "audit", producer.envs[0].Payload["route_name"])

	reloader := &fakeReloader{}
	require.NoError(t, newHandler(reloader).HandleConfigUpdateEvent(context.Background(), producer.envs[0]))
	assert.Equal(t, 1, reloader.calls)
}

func TestHandler_IgnoresOtherEvents(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
	}{
		{"other event type", map[string]interface{}{"event_type": "filter_updated", "service_type": "router"}},
		{"other service", map[string]interface{}{"event_type": "route_updated", "service_type": "enricher"}},
		{"missing service", map[string]interface{}{"event_type": "route_updated"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reloader := &fakeReloader{}
			err := newHandler(reloader).HandleConfigUpdateEvent(context.Background(), models.EventEnvelope{ID: "1", Payload: tt.payload})
			require.NoError(t, err)
			assert.Zero(t, reloader.calls)
		})
	}
}

func TestHandler_ReloadErrorPropagates(t *testing.T) {
	reloader := &fakeReloader{err: errors.New("db down")}
	env := models.EventEnvelope{
		ID:      "1",
		Payload: map[string]interface{}{"event_type": "route_updated", "service_type": "router", "action": "delete"},
	}
	err := newHandler(reloader).HandleConfigUpdateEvent(context.Background(), env)
	assert.EqualError(t, err, "db down")
}

func TestPublisher_NoopWithoutProducer(t *testing.T) {
	assert.NoError(t, NewPublisher(nil, "topic").PublishRouteEvent(context.Background(), models.ActionDelete, "x", ""))
	var p *Publisher
	assert.NoError(t, p.PublishRouteEvent(context.Background(), models.ActionDelete, "x", ""))
}
