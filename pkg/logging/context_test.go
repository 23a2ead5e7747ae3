package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithEventID(ctx, "evt-1")
	ctx = WithSource(ctx, "github")
	ctx = WithServiceName(ctx, "router-service")

	assert.Equal(t, []interface{}{
		"trace_id", "trace-1",
		"event_id", "evt-1",
		"source", "github",
		"service_name", "router-service",
	}, GetLogFields(ctx))
}
