package delivery

import (
	"context"

	"eventgate/internal/logger"
	"eventgate/internal/routing"
)

type LogHandler struct {
	logger logger.Logger
}

func NewLogHandler(log logger.Logger) *LogHandler {
	return &LogHandler{logger: log}
}

func (h *LogHandler) Invoke(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	info, _ := routing.EventInfoFromContext(ctx)
	h.logger.InfowCtx(ctx, "Event routed",
		"route", info.RouteName,
		"event_type", info.EventType,
		"retry_count", info.RetryCount,
		"payload", payload,
	)
	return map[string]interface{}{"logged": true}, nil
}
