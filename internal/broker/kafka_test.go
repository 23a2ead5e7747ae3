package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventgate/internal/config"
	"eventgate/internal/logger"
	"eventgate/pkg/models"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []kafka.Message
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func envelopeMessage(t *testing.T, env models.EventEnvelope) kafka.Message {
	t.Helper()
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{Topic: "events", Key: []byte(env.ID), Value: body}
}

func newTestConsumer(reader *fakeReader, dlq *fakeWriter) *KafkaConsumer {
	cfg := config.KafkaConfig{
		DLQTopic: "events.dlq",
		Retry:    config.RetryConfig{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 2},
	}
	c := &KafkaConsumer{
		cfg:         cfg,
		serviceName: "test",
		logger:      logger.NopLogger(),
		newReader:   func(string) messageReader { return reader },
	}
	if dlq != nil {
		c.dlq = &KafkaProducer{writer: dlq, serviceName: "test", logger: logger.NopLogger()}
	}
	return c
}

func consumeUntil(t *testing.T, c *KafkaConsumer, handler HandlerFunc, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- c.Consume(ctx, "events", handler) }()

	require.Eventually(t, done, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)
}

func TestKafkaConsumer_DeliversAndCommits(t *testing.T) {
	env := models.EventEnvelope{ID: "evt-1", Source: "github", EventType: "push", Payload: map[string]interface{}{"ref": "main"}}
	reader := newFakeReader(envelopeMessage(t, env))
	c := newTestConsumer(reader, &fakeWriter{})

	var got models.EventEnvelope
	var mu sync.Mutex
	consumeUntil(t, c, func(_ context.Context, e models.EventEnvelope) error {
		mu.Lock()
		got = e
		mu.Unlock()
		return nil
	}, func() bool { return reader.commits() == 1 })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "evt-1", got.ID)
	assert.Equal(t, "main", got.Payload["ref"])
}

func TestKafkaConsumer_RetriesThenDeadLetters(t *testing.T) {
	env := models.EventEnvelope{ID: "evt-2", Source: "github", EventType: "push", Payload: map[string]interface{}{}}
	reader := newFakeReader(envelopeMessage(t, env))
	dlq := &fakeWriter{}
	c := newTestConsumer(reader, dlq)

	var mu sync.Mutex
	attempts := 0
	consumeUntil(t, c, func(context.Context, models.EventEnvelope) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("downstream unavailable")
	}, func() bool { return reader.commits() == 1 })

	mu.Lock()
	assert.Equal(t, 2, attempts)
	mu.Unlock()

	written := dlq.written()
	require.Len(t, written, 1)
	assert.Equal(t, "events.dlq", written[0].Topic)
	assert.Equal(t, []byte("evt-2"), written[0].Key)

	headers := map[string]string{}
	for _, h := range written[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "downstream unavailable", headers[headerDLQReason])
	assert.Equal(t, "events", headers[headerDLQSourceTopic])
}

func TestKafkaConsumer_PanicIsRecovered(t *testing.T) {
	env := models.EventEnvelope{ID: "evt-3", Source: "s", EventType: "t", Payload: map[string]interface{}{}}
	reader := newFakeReader(envelopeMessage(t, env))
	dlq := &fakeWriter{}
	c := newTestConsumer(reader, dlq)

	consumeUntil(t, c, func(context.Context, models.EventEnvelope) error {
		panic("boom")
	}, func() bool { return reader.commits() == 1 })

	assert.Len(t, dlq.written(), 1)
}

func TestKafkaConsumer_UndecodableMessage(t *testing.T) {
	reader := newFakeReader(kafka.Message{Topic: "events", Value: []byte("{not json")})
	dlq := &fakeWriter{}
	c := newTestConsumer(reader, dlq)

	called := false
	consumeUntil(t, c, func(context.Context, models.EventEnvelope) error {
		called = true
		return nil
	}, func() bool { return reader.commits() == 1 })

	assert.False(t, called)
	assert.Len(t, dlq.written(), 1)
}

func TestKafkaConsumer_CloseClosesReaders(t *testing.T) {
	reader := newFakeReader()
	c := newTestConsumer(reader, nil)

	consumeUntil(t, c, func(context.Context, models.EventEnvelope) error { return nil }, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.readers) == 1
	})

	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}

func TestKafkaProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaProducer{writer: w, serviceName: "test", logger: logger.NopLogger()}

	env := models.EventEnvelope{ID: "evt-9", Source: "s", EventType: "t", Payload: map[string]interface{}{"a": 1.0}}
	require.NoError(t, p.Publish(context.Background(), "out", env))

	written := w.written()
	require.Len(t, written, 1)
	assert.Equal(t, "out", written[0].Topic)
	assert.Equal(t, []byte("evt-9"), written[0].Key)

	var decoded models.EventEnvelope
	require.NoError(t, json.Unmarshal(written[0].Value, &decoded))
	assert.Equal(t, env.Payload, decoded.Payload)
}

func TestKafkaProducer_PublishError(t *testing.T) {
	p := &KafkaProducer{writer: &fakeWriter{err: errors.New("broker down")}, serviceName: "test", logger: logger.NopLogger()}
	err := p.Publish(context.Background(), "out", models.EventEnvelope{ID: "x"})
	assert.ErrorContains(t, err, "broker down")
}

func TestFactory_RejectsUnsupportedConfig(t *testing.T) {
	log := logger.NopLogger()

	_, err := NewProducer(config.BrokerConfig{Type: "rabbitmq"}, log)
	assert.Error(t, err)

	_, err = NewConsumer(config.BrokerConfig{Type: TypeKafka}, "svc", log)
	assert.ErrorContains(t, err, "at least one broker")

	c, err := NewConsumer(config.BrokerConfig{Type: TypeKafka, Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}}}, "svc", log)
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}
