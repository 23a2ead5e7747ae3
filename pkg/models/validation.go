package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateEventEnvelope(env *EventEnvelope) error {
	if env == nil {
		return &ValidationError{Field: "envelope", Message: "event envelope cannot be nil"}
	}

	if env.Source == "" {
		return &ValidationError{Field: "source", Message: "event source is required"}
	}

	if env.EventType == "" {
		return &ValidationError{Field: "event_type", Message: "event type is required"}
	}

	if env.Payload == nil {
		return &ValidationError{Field: "payload", Message: "event payload cannot be nil"}
	}

	return nil
}

func ValidateRouteDefinition(def *RouteDefinition) error {
	if def == nil {
		return &ValidationError{Field: "route", Message: "route definition cannot be nil"}
	}

	if def.Name == "" {
		return &ValidationError{Field: "name", Message: "route name is required"}
	}

	if len(def.EventTypes) == 0 {
		return &ValidationError{Field: "event_types", Message: "at least one event type (or \"*\") is required"}
	}

	if len(def.SourceFilters) == 0 {
		return &ValidationError{Field: "source_filters", Message: "at least one source filter (or \"*\") is required"}
	}

	if def.Priority < 1 || def.Priority > 4 {
		return &ValidationError{Field: "priority", Message: fmt.Sprintf("priority must be between 1 and 4, got %d", def.Priority)}
	}

	if def.RetryBudget < 0 {
		return &ValidationError{Field: "retry_budget", Message: "retry budget must be non-negative"}
	}

	if def.TimeoutSeconds < 0 {
		return &ValidationError{Field: "timeout_seconds", Message: "timeout must be non-negative"}
	}

	for i, m := range def.Matchers {
		if m.Field == "" {
			return &ValidationError{Field: fmt.Sprintf("matchers[%d].field", i), Message: "matcher field path is required"}
		}
		if m.Operator == "" {
			return &ValidationError{Field: fmt.Sprintf("matchers[%d].operator", i), Message: "matcher operator is required"}
		}
		if m.Value == nil && m.Operator != "exists" && m.Operator != "not_exists" {
			return &ValidationError{Field: fmt.Sprintf("matchers[%d].value", i), Message: fmt.Sprintf("operator %s requires a value", m.Operator)}
		}
	}

	if def.Handler.Type == "" {
		return &ValidationError{Field: "handler.type", Message: "handler type is required"}
	}

	return nil
}
