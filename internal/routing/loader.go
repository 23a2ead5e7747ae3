package routing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"eventgate/internal/logger"
	"eventgate/pkg/cel"
	"eventgate/pkg/models"
)

// HandlerFactory turns a handler definition into a runnable handler.
type HandlerFactory interface {
	Build(def models.HandlerDefinition) (EventHandler, error)
}

// BuildRoute converts a definition into a Route, compiling its matchers and condition.
func BuildRoute(def models.RouteDefinition, factory HandlerFactory, evaluator *cel.Evaluator) (*Route, error) {
	if err := models.ValidateRouteDefinition(&def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRouteInvalid, err)
	}

	matchers := make([]Matcher, 0, len(def.Matchers))
	for i, md := range def.Matchers {
		op := Operator(md.Operator)
		if !op.Valid() {
			return nil, fmt.Errorf("%w: route %s matcher %d has unknown operator %q", ErrRouteInvalid, def.Name, i, md.Operator)
		}
		m := NewMatcher(md.Field, op, md.Value)
		if m.reErr != nil {
			return nil, fmt.Errorf("%w: route %s matcher %d: %v", ErrRouteInvalid, def.Name, i, m.reErr)
		}
		matchers = append(matchers, m)
	}

	var condition *cel.Condition
	if def.Condition != "" {
		if evaluator == nil {
			return nil, fmt.Errorf("%w: route %s has a condition but no evaluator is configured", ErrRouteInvalid, def.Name)
		}
		c, err := evaluator.CompileCondition(def.Condition)
		if err != nil {
			return nil, fmt.Errorf("%w: route %s: %v", ErrRouteInvalid, def.Name, err)
		}
		condition = c
	}

	handler, err := factory.Build(def.Handler)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", def.Name, err)
	}

	return &Route{
		Name:           def.Name,
		EventTypes:     append([]string(nil), def.EventTypes...),
		SourceFilters:  append([]string(nil), def.SourceFilters...),
		Matchers:       matchers,
		Condition:      condition,
		Handler:        handler,
		Priority:       Priority(def.Priority),
		RetryBudget:    def.RetryBudget,
		TimeoutSeconds: def.TimeoutSeconds,
		Enabled:        def.Enabled,
	}, nil
}

// Loader keeps the router's route table in sync with static definitions
// and the repository. It only touches routes it registered itself.
type Loader struct {
	router    *Router
	repo      Repository
	static    []models.RouteDefinition
	factory   HandlerFactory
	evaluator *cel.Evaluator
	interval  time.Duration
	logger    logger.Logger

	mu      sync.Mutex
	applied map[string]models.RouteDefinition
}

// NewLoader builds a loader. repo may be nil when routes come from config only.
func NewLoader(router *Router, repo Repository, static []models.RouteDefinition, factory HandlerFactory, interval time.Duration, log logger.Logger) (*Loader, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	return &Loader{
		router:    router,
		repo:      repo,
		static:    static,
		factory:   factory,
		evaluator: evaluator,
		interval:  interval,
		logger:    log,
		applied:   make(map[string]models.RouteDefinition),
	}, nil
}

// ReloadRoutes recomputes the desired route set and applies the difference.
// A definition that fails to build keeps the previously applied version.
func (l *Loader) ReloadRoutes(ctx context.Context) error {
	desired, order, err := l.desired(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var buildErrs []error
	added, removed := 0, 0

	for _, name := range order {
		def := desired[name]
		if prev, ok := l.applied[name]; ok && reflect.DeepEqual(prev, def) {
			continue
		}

		route, err := BuildRoute(def, l.factory, l.evaluator)
		if err != nil {
			l.logger.ErrorwCtx(ctx, "Failed to build route", "route", name, "error", err)
			buildErrs = append(buildErrs, err)
			continue
		}
		if err := l.router.AddRoute(route); err != nil {
			l.logger.ErrorwCtx(ctx, "Failed to register route", "route", name, "error", err)
			buildErrs = append(buildErrs, err)
			continue
		}
		l.applied[name] = def
		added++
	}

	for name := range l.applied {
		if _, ok := desired[name]; ok {
			continue
		}
		l.router.RemoveRoute(name)
		delete(l.applied, name)
		removed++
	}

	l.logger.InfowCtx(ctx, "Routes reloaded",
		"routes_count", len(desired),
		"updated", added,
		"removed", removed,
		"failed", len(buildErrs),
	)

	return errors.Join(buildErrs...)
}

// Validate reports whether def would build into a route, without applying it.
func (l *Loader) Validate(def models.RouteDefinition) error {
	_, err := BuildRoute(def, l.factory, l.evaluator)
	return err
}

// Definitions returns the definitions currently applied, sorted by name.
func (l *Loader) Definitions() []models.RouteDefinition {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.RouteDefinition, 0, len(l.applied))
	for _, def := range l.applied {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Definition returns the applied definition for name.
func (l *Loader) Definition(name string) (models.RouteDefinition, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	def, ok := l.applied[name]
	return def, ok
}

// desired merges static and stored definitions; stored ones win on name clashes.
func (l *Loader) desired(ctx context.Context) (map[string]models.RouteDefinition, []string, error) {
	desired := make(map[string]models.RouteDefinition, len(l.static))
	order := make([]string, 0, len(l.static))

	add := func(def models.RouteDefinition) {
		if _, exists := desired[def.Name]; !exists {
			order = append(order, def.Name)
		}
		desired[def.Name] = def
	}

	for _, def := range l.static {
		add(def)
	}

	if l.repo != nil {
		l.logger.DebugwCtx(ctx, "Loading route definitions from database")
		stored, err := l.repo.ListDefinitions(ctx)
		if err != nil {
			return nil, nil, err
		}
		for _, def := range stored {
			add(def)
		}
	}

	return desired, order, nil
}

// StartReloader reloads immediately and then on every interval until ctx ends.
func (l *Loader) StartReloader(ctx context.Context) error {
	if err := l.ReloadRoutes(ctx); err != nil {
		l.logger.ErrorwCtx(ctx, "Failed to reload routes", "error", err)
	}

	if l.interval <= 0 || l.repo == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := l.ReloadRoutes(ctx); err != nil {
				l.logger.ErrorwCtx(ctx, "Failed to reload routes", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
