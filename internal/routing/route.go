package routing

import (
	"context"
	"fmt"

	"eventgate/pkg/cel"
)

type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// Wildcard matches any event type or source.
const Wildcard = "*"

// EventHandler processes the payload of a routed event. The same payload is
// replayed on every retry, so implementations must tolerate repeats.
type EventHandler interface {
	Invoke(ctx context.Context, payload map[string]interface{}) (interface{}, error)
}

type HandlerFunc func(ctx context.Context, payload map[string]interface{}) (interface{}, error)

func (f HandlerFunc) Invoke(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	return f(ctx, payload)
}

type Route struct {
	Name          string
	EventTypes    []string
	SourceFilters []string
	Matchers      []Matcher
	// Condition is an optional CEL expression evaluated after the matchers.
	Condition      *cel.Condition
	Handler        EventHandler
	Priority       Priority
	RetryBudget    int
	TimeoutSeconds int
	Enabled        bool
}

func (r *Route) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrRouteInvalid)
	}
	if r.Handler == nil {
		return fmt.Errorf("%w: route %s has no handler", ErrRouteInvalid, r.Name)
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("%w: route %s has priority %d outside 1..4", ErrRouteInvalid, r.Name, r.Priority)
	}
	if r.RetryBudget < 0 {
		return fmt.Errorf("%w: route %s has negative retry budget", ErrRouteInvalid, r.Name)
	}
	return nil
}

// ShouldHandle reports whether the route accepts the event.
func (r *Route) ShouldHandle(eventType, source string, payload map[string]interface{}) bool {
	ok, _ := r.evaluate(context.Background(), eventType, source, payload)
	return ok
}

// evaluate returns the first matcher or condition failure so the caller can log it.
func (r *Route) evaluate(ctx context.Context, eventType, source string, payload map[string]interface{}) (bool, error) {
	if !r.Enabled {
		return false, nil
	}
	if !memberOrWildcard(r.EventTypes, eventType) || !memberOrWildcard(r.SourceFilters, source) {
		return false, nil
	}

	for _, m := range r.Matchers {
		ok, err := m.Evaluate(payload)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	if r.Condition != nil {
		ok, err := r.Condition.Evaluate(ctx, eventType, source, payload)
		if err != nil {
			return false, err
		}
		return ok, nil
	}
	return true, nil
}

func memberOrWildcard(set []string, v string) bool {
	for _, s := range set {
		if s == Wildcard || s == v {
			return true
		}
	}
	return false
}
