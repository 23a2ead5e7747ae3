package broker

import (
	"context"

	"eventgate/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, env models.EventEnvelope) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
}

// HandlerFunc processes one decoded envelope. A returned error is retried
// with backoff and then dead-lettered.
type HandlerFunc func(ctx context.Context, env models.EventEnvelope) error
