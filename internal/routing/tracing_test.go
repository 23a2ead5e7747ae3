package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupSpanExporter(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

func TestQueuedProcessingJoinsCallerTrace(t *testing.T) {
	exporter := setupSpanExporter(t)
	done := newCompletions()
	r := newTestRouter(t, false, WithCompletionHook(done.hook))

	h := &countingHandler{failures: 1}
	require.NoError(t, r.AddRoute(route("traced", PriorityNormal, h, 2)))
	r.Start()

	ev := r.RouteEvent(context.Background(), map[string]interface{}{"id": 1}, "src", "evt", "evt-1", true)
	require.Equal(t, StatusPending, ev.Status)
	assert.Equal(t, StatusCompleted, done.next(t).Status)
	require.NoError(t, r.Shutdown(2*time.Second))

	var routeSpan tracetest.SpanStub
	var processSpans []tracetest.SpanStub
	for _, s := range exporter.GetSpans() {
		switch s.Name {
		case "router.route_event":
			routeSpan = s
		case "router.process_event":
			processSpans = append(processSpans, s)
		}
	}

	require.True(t, routeSpan.SpanContext.IsValid())
	require.Len(t, processSpans, 2)

	traceID := routeSpan.SpanContext.TraceID()
	parents := make(map[string]string, len(processSpans))
	for _, s := range processSpans {
		assert.Equal(t, traceID, s.SpanContext.TraceID())
		parents[s.SpanContext.SpanID().String()] = s.Parent.SpanID().String()
	}

	// first attempt hangs off the enqueuing span, the retry off the first attempt
	var first string
	for id, parent := range parents {
		if parent == routeSpan.SpanContext.SpanID().String() {
			first = id
		}
	}
	require.NotEmpty(t, first)
	var retried bool
	for _, parent := range parents {
		retried = retried || parent == first
	}
	assert.True(t, retried)
}
