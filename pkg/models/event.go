package models

import "time"

// EventEnvelope is the wire form of an event on Kafka, in both directions.
type EventEnvelope struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	EventType string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
	Metadata  Metadata               `json:"metadata"`
}

type Metadata struct {
	TraceID   string `json:"trace_id,omitempty"`
	RouteName string `json:"route_name,omitempty"`
}

// ConfigUpdateEvent announces a change to the route definitions.
type ConfigUpdateEvent struct {
	EventType   string    `json:"event_type"`
	ServiceType string    `json:"service_type"`
	RouteName   string    `json:"route_name,omitempty"`
	Action      string    `json:"action"`
	Timestamp   time.Time `json:"timestamp"`
	ChangedBy   string    `json:"changed_by,omitempty"`
}

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionReload = "reload"
)
