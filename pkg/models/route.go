package models

// RouteDefinition is the declarative form of a route, shared by the YAML
// config, the route_definitions table and the management API.
type RouteDefinition struct {
	Name           string              `json:"name" mapstructure:"name"`
	EventTypes     []string            `json:"event_types" mapstructure:"event_types"`
	SourceFilters  []string            `json:"source_filters" mapstructure:"source_filters"`
	Matchers       []MatcherDefinition `json:"matchers,omitempty" mapstructure:"matchers"`
	Condition      string              `json:"condition,omitempty" mapstructure:"condition"`
	Priority       int                 `json:"priority" mapstructure:"priority"`
	RetryBudget    int                 `json:"retry_budget" mapstructure:"retry_budget"`
	TimeoutSeconds int                 `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Handler        HandlerDefinition   `json:"handler" mapstructure:"handler"`
	Enabled        bool                `json:"enabled" mapstructure:"enabled"`
}

type MatcherDefinition struct {
	Field    string      `json:"field" mapstructure:"field"`
	Operator string      `json:"operator" mapstructure:"operator"`
	Value    interface{} `json:"value,omitempty" mapstructure:"value"`
}

type HandlerDefinition struct {
	Type       string            `json:"type" mapstructure:"type"`
	Topic      string            `json:"topic,omitempty" mapstructure:"topic"`
	URL        string            `json:"url,omitempty" mapstructure:"url"`
	Method     string            `json:"method,omitempty" mapstructure:"method"`
	Headers    map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	TimeoutMs  int               `json:"timeout_ms,omitempty" mapstructure:"timeout_ms"`
	Database   string            `json:"database,omitempty" mapstructure:"database"`
	Collection string            `json:"collection,omitempty" mapstructure:"collection"`
}
