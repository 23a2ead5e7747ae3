package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validDefinition() RouteDefinition {
	return RouteDefinition{
		Name:          "github-push",
		EventTypes:    []string{"push"},
		SourceFilters: []string{"*"},
		Priority:      2,
		RetryBudget:   3,
		Handler:       HandlerDefinition{Type: "log"},
		Enabled:       true,
	}
}

func TestValidateRouteDefinition(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*RouteDefinition)
		wantField string
	}{
		{name: "valid", mutate: func(*RouteDefinition) {}},
		{name: "missing name", mutate: func(d *RouteDefinition) { d.Name = "" }, wantField: "name"},
		{name: "no event types", mutate: func(d *RouteDefinition) { d.EventTypes = nil }, wantField: "event_types"},
		{name: "no sources", mutate: func(d *RouteDefinition) { d.SourceFilters = nil }, wantField: "source_filters"},
		{name: "priority too high", mutate: func(d *RouteDefinition) { d.Priority = 5 }, wantField: "priority"},
		{name: "negative budget", mutate: func(d *RouteDefinition) { d.RetryBudget = -1 }, wantField: "retry_budget"},
		{
			name: "matcher without operator",
			mutate: func(d *RouteDefinition) {
				d.Matchers = []MatcherDefinition{{Field: "a.b"}}
			},
			wantField: "matchers[0].operator",
		},
		{
			name: "matcher without value",
			mutate: func(d *RouteDefinition) {
				d.Matchers = []MatcherDefinition{{Field: "status", Operator: "contains"}}
			},
			wantField: "matchers[0].value",
		},
		{
			name: "exists needs no value",
			mutate: func(d *RouteDefinition) {
				d.Matchers = []MatcherDefinition{{Field: "status", Operator: "exists"}, {Field: "draft", Operator: "not_exists"}}
			},
		},
		{name: "no handler", mutate: func(d *RouteDefinition) { d.Handler.Type = "" }, wantField: "handler.type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(&def)
			err := ValidateRouteDefinition(&def)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			if assert.ErrorAs(t, err, &vErr) {
				assert.Equal(t, tt.wantField, vErr.Field)
			}
		})
	}
}

func TestValidateEventEnvelope(t *testing.T) {
	assert.Error(t, ValidateEventEnvelope(nil))
	assert.Error(t, ValidateEventEnvelope(&EventEnvelope{Source: "s", Payload: map[string]interface{}{}}))
	assert.NoError(t, ValidateEventEnvelope(&EventEnvelope{Source: "s", EventType: "push", Payload: map[string]interface{}{}}))
}
