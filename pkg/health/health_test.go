package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Name() string                { return s.name }
func (s stubChecker) Check(context.Context) error { return s.err }

type stubRouter bool

func (s stubRouter) IsHealthy() bool { return bool(s) }

func TestCheckerRegistry(t *testing.T) {
	tests := []struct {
		name     string
		critical error
		optional error
		want     Status
	}{
		{"all healthy", nil, nil, StatusHealthy},
		{"optional down", nil, errors.New("redis down"), StatusDegraded},
		{"critical down", errors.New("db down"), nil, StatusUnhealthy},
		{"both down", errors.New("db down"), errors.New("redis down"), StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			r.Register(stubChecker{name: "postgresql", err: tt.critical})
			r.RegisterOptional(stubChecker{name: "redis", err: tt.optional})

			h := r.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Len(t, h.Checks, 2)
			if tt.optional != nil {
				assert.Equal(t, StatusDegraded, h.Checks["redis"].Status)
				assert.Equal(t, "redis down", h.Checks["redis"].Message)
			}
		})
	}
}

func TestRouterChecker(t *testing.T) {
	assert.NoError(t, NewRouterChecker(stubRouter(true)).Check(context.Background()))
	assert.Error(t, NewRouterChecker(stubRouter(false)).Check(context.Background()))
	assert.Equal(t, "router", NewRouterChecker(stubRouter(true)).Name())
}
