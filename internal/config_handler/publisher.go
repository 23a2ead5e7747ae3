package config_handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventgate/internal/broker"
	"eventgate/internal/constants"
	"eventgate/pkg/models"
)

// Publisher announces route definition changes so other instances reload.
// A nil producer or empty topic makes every call a no-op.
type Publisher struct {
	producer broker.Producer
	topic    string
}

func NewPublisher(producer broker.Producer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

func (p *Publisher) PublishRouteEvent(ctx context.Context, action, routeName, changedBy string) error {
	if p == nil || p.producer == nil || p.topic == "" {
		return nil
	}

	event := models.ConfigUpdateEvent{
		EventType:   constants.ConfigEventRouteUpdated,
		ServiceType: constants.ConfigServiceRouter,
		RouteName:   routeName,
		Action:      action,
		Timestamp:   time.Now().UTC(),
		ChangedBy:   changedBy,
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal config event: %w", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("failed to decode config event: %w", err)
	}

	env := models.EventEnvelope{
		ID:        uuid.New().String(),
		Source:    constants.ServiceName,
		EventType: constants.ConfigEventRouteUpdated,
		Timestamp: event.Timestamp,
		Payload:   payload,
		Metadata:  models.Metadata{RouteName: routeName},
	}

	if err := p.producer.Publish(ctx, p.topic, env); err != nil {
		return fmt.Errorf("failed to publish config event: %w", err)
	}
	return nil
}
