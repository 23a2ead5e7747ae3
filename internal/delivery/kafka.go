package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"

	"eventgate/internal/broker"
	"eventgate/internal/routing"
	"eventgate/pkg/models"
	"eventgate/pkg/tracing"
)

// KafkaHandler forwards the event to a topic as an EventEnvelope.
type KafkaHandler struct {
	producer broker.Producer
	topic    string
}

func NewKafkaHandler(producer broker.Producer, topic string) *KafkaHandler {
	return &KafkaHandler{producer: producer, topic: topic}
}

func (h *KafkaHandler) Invoke(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	info, ok := routing.EventInfoFromContext(ctx)
	if !ok || info.ID == "" {
		info.ID = uuid.New().String()
	}
	ts := info.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	env := models.EventEnvelope{
		ID:        info.ID,
		Source:    info.Source,
		EventType: info.EventType,
		Timestamp: ts,
		Payload:   payload,
		Metadata: models.Metadata{
			TraceID:   tracing.TraceIDFromContext(ctx),
			RouteName: info.RouteName,
		},
	}

	if err := h.producer.Publish(ctx, h.topic, env); err != nil {
		return nil, err
	}
	return map[string]interface{}{"topic": h.topic, "id": env.ID}, nil
}
