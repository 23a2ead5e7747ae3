package routing

import (
	"context"
	"time"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusRetry      Status = "RETRY"
	StatusFiltered   Status = "FILTERED"
)

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusFiltered
}

// ProcessedEvent tracks one inbound event. RouteEvent and the completion
// hook hand out copies; the live record belongs to whichever goroutine is
// processing it.
type ProcessedEvent struct {
	ID             string                 `json:"id"`
	EventType      string                 `json:"event_type"`
	Source         string                 `json:"source"`
	Timestamp      time.Time              `json:"timestamp"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	Status         Status                 `json:"status"`
	RouteName      string                 `json:"route_name,omitempty"`
	HandlerResult  interface{}            `json:"handler_result,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	RetryCount     int                    `json:"retry_count"`
	ProcessingTime time.Duration          `json:"processing_time"`
}

// EventInfo describes the event a handler is currently processing.
type EventInfo struct {
	ID         string
	EventType  string
	Source     string
	RouteName  string
	RetryCount int
	Timestamp  time.Time
}

type eventInfoKey struct{}

func ContextWithEventInfo(ctx context.Context, info EventInfo) context.Context {
	return context.WithValue(ctx, eventInfoKey{}, info)
}

// EventInfoFromContext returns the event attached by the router before a handler runs.
func EventInfoFromContext(ctx context.Context) (EventInfo, bool) {
	info, ok := ctx.Value(eventInfoKey{}).(EventInfo)
	return info, ok
}
