package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"eventgate/internal/config"
)

func withPropagator(t *testing.T) {
	t.Helper()
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })
}

func startSpan(t *testing.T) (context.Context, trace.Span) {
	t.Helper()
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp.Tracer("test").Start(context.Background(), "op")
}

func TestKafkaHeaders_RoundTrip(t *testing.T) {
	withPropagator(t)
	ctx, span := startSpan(t)
	defer span.End()

	headers := InjectKafkaHeaders(ctx, []kafka.Header{{Key: "existing", Value: []byte("1")}})
	require.Len(t, headers, 2)

	extracted := trace.SpanContextFromContext(ExtractKafkaHeaders(context.Background(), headers))
	assert.Equal(t, span.SpanContext().TraceID(), extracted.TraceID())
}

func TestStartConsumeSpan_ContinuesTrace(t *testing.T) {
	withPropagator(t)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider())
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := startSpan(t)
	defer span.End()

	msg := kafka.Message{Topic: "events", Headers: InjectKafkaHeaders(ctx, nil)}
	consumeCtx, consumeSpan := StartConsumeSpan(context.Background(), msg)
	defer consumeSpan.End()

	assert.Equal(t, span.SpanContext().TraceID().String(), TraceIDFromContext(consumeCtx))
}

func TestInjectHTTPHeaders(t *testing.T) {
	withPropagator(t)
	ctx, span := startSpan(t)
	defer span.End()

	header := http.Header{}
	InjectHTTPHeaders(ctx, header)
	assert.Contains(t, header.Get("traceparent"), span.SpanContext().TraceID().String())
}

func TestTraceIDFromContext_NoSpan(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(config.TracingConfig{}, "test")
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		cfg  config.SamplerConfig
		want string
	}{
		{config.SamplerConfig{}, "AlwaysOnSampler"},
		{config.SamplerConfig{Type: "always_on"}, "AlwaysOnSampler"},
		{config.SamplerConfig{Type: "always_off"}, "AlwaysOffSampler"},
		{config.SamplerConfig{Type: "traceidratio", Param: 0.5}, "TraceIDRatioBased{0.5}"},
		{config.SamplerConfig{Type: "parentbased_always_on"}, "ParentBased{root:AlwaysOnSampler"},
		{config.SamplerConfig{Type: "parentbased_traceidratio", Param: 0.25}, "ParentBased{root:TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Type, func(t *testing.T) {
			assert.Contains(t, samplerFor(tt.cfg).Description(), tt.want)
		})
	}
}
