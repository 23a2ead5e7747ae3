package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eventgate/internal/constants"
	"eventgate/internal/logger"
	apperrors "eventgate/pkg/errors"
	"eventgate/pkg/logging"
	"eventgate/pkg/metrics"
	"eventgate/pkg/retry"
	"eventgate/pkg/tracing"
)

const tracerName = "router-service"

type Option func(*Router)

func WithWorkers(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithQueueCapacity(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.capacity = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithRetryDelays sets the exponential retry base and cap.
func WithRetryDelays(base, max time.Duration) Option {
	return func(r *Router) {
		if base > 0 {
			r.retryBase = base
		}
		if max >= base && max > 0 {
			r.retryMax = max
		}
	}
}

// WithCompletionHook registers fn to receive a copy of every event that
// reaches COMPLETED, FAILED or FILTERED.
func WithCompletionHook(fn func(ProcessedEvent)) Option {
	return func(r *Router) {
		r.onComplete = fn
	}
}

func WithLogger(l logger.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

type Router struct {
	routesMu sync.RWMutex
	routes   map[string]*Route
	order    []string

	queue *delayQueue
	stats counters

	workers      int
	capacity     int
	pollInterval time.Duration
	retryBase    time.Duration
	retryMax     time.Duration
	onComplete   func(ProcessedEvent)
	logger       logger.Logger

	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	alive     atomic.Int32
	// pending counts events sitting in the queue or held by a worker.
	pending atomic.Int64
	closed  atomic.Bool
}

func NewRouter(opts ...Option) *Router {
	r := &Router{
		routes:       make(map[string]*Route),
		workers:      constants.DefaultWorkers,
		capacity:     constants.DefaultQueueCapacity,
		pollInterval: constants.DefaultPollInterval,
		retryBase:    constants.DefaultRetryBase,
		retryMax:     constants.DefaultRetryMax,
		logger:       logger.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.queue = newDelayQueue(r.capacity)
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Start launches the worker pool. Calling it again is a no-op.
func (r *Router) Start() {
	r.startOnce.Do(func() {
		for i := 0; i < r.workers; i++ {
			r.wg.Add(1)
			go r.runWorker(r.ctx, i)
		}
		r.logger.Infow("Router started",
			"workers", r.workers,
			"queue_capacity", r.capacity,
		)
	})
}

// AddRoute registers route, replacing any route with the same name in place.
func (r *Router) AddRoute(route *Route) error {
	if route == nil {
		return fmt.Errorf("%w: route is nil", ErrRouteInvalid)
	}
	if err := route.Validate(); err != nil {
		return err
	}

	stored := *route

	r.routesMu.Lock()
	if _, exists := r.routes[stored.Name]; !exists {
		r.order = append(r.order, stored.Name)
	}
	r.routes[stored.Name] = &stored
	count := len(r.routes)
	r.routesMu.Unlock()

	metrics.SetRouterActiveRoutes(count)
	r.logger.Infow("Route registered",
		"route", stored.Name,
		"priority", stored.Priority.String(),
		"retry_budget", stored.RetryBudget,
	)
	return nil
}

func (r *Router) RemoveRoute(name string) bool {
	r.routesMu.Lock()
	if _, exists := r.routes[name]; !exists {
		r.routesMu.Unlock()
		return false
	}
	delete(r.routes, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	count := len(r.routes)
	r.routesMu.Unlock()

	metrics.SetRouterActiveRoutes(count)
	r.logger.Infow("Route removed", "route", name)
	return true
}

// Routes lists registered routes in registration order.
func (r *Router) Routes() []Route {
	r.routesMu.RLock()
	defer r.routesMu.RUnlock()

	out := make([]Route, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.routes[name])
	}
	return out
}

func (r *Router) GetRoute(name string) (Route, bool) {
	r.routesMu.RLock()
	defer r.routesMu.RUnlock()

	route, ok := r.routes[name]
	if !ok {
		return Route{}, false
	}
	return *route, true
}

// RouteEvent matches the event against the route table and either queues it
// (async) or processes it on the calling goroutine. It never returns an
// error; the outcome is carried by the returned copy's Status.
//
// In sync mode the call returns after the first attempt. A failed attempt
// with retry budget left comes back as RETRY and continues on the workers.
func (r *Router) RouteEvent(ctx context.Context, payload map[string]interface{}, source, eventType, eventID string, async bool) ProcessedEvent {
	if eventID == "" {
		eventID = uuid.NewString()
	}
	ctx = logging.WithSource(logging.WithEventID(ctx, eventID), source)

	ctx, span := tracing.GetTracer(tracerName).Start(ctx, "router.route_event")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", eventID),
		attribute.String("event.type", eventType),
		attribute.String("event.source", source),
		attribute.Bool("router.async", async),
	)

	ev := &ProcessedEvent{
		ID:        eventID,
		EventType: eventType,
		Source:    source,
		Timestamp: time.Now(),
		Payload:   payload,
		Status:    StatusPending,
	}
	r.stats.incTotal()

	if r.closed.Load() {
		return r.fail(ctx, ev, ErrRouterClosed.Error())
	}

	route := r.selectRoute(ctx, ev)
	if route == nil {
		ev.Status = StatusFiltered
		r.stats.incFiltered()
		metrics.IncRouterEvent("filtered")
		r.logger.DebugwCtx(ctx, "No route matched event", "event_type", eventType)
		snap := *ev
		r.complete(snap)
		return snap
	}

	ev.RouteName = route.Name
	span.SetAttributes(attribute.String("route.name", route.Name))

	if !async {
		metrics.IncRouterEvent("accepted")
		return r.processEvent(ctx, ev, route)
	}

	// Shutdown sets closed before reading pending, so one of the two
	// sides always sees the other.
	r.pending.Add(1)
	if r.closed.Load() {
		r.pending.Add(-1)
		return r.fail(ctx, ev, ErrRouterClosed.Error())
	}

	snap := *ev
	now := time.Now()
	err := r.queue.TryPush(&QueueItem{
		Key:     PrimaryKey(route.Priority, now),
		Event:   ev,
		Route:   route,
		ReadyAt: now,
		Span:    trace.SpanContextFromContext(ctx),
	})
	if err != nil {
		r.pending.Add(-1)
		span.SetStatus(codes.Error, err.Error())
		r.logger.WarnwCtx(ctx, "Queue full, rejecting event",
			"route", route.Name,
			"queue_size", r.queue.Len(),
		)
		return r.fail(ctx, ev, ErrQueueFull.Error())
	}

	metrics.IncRouterEvent("accepted")
	metrics.SetRouterQueueSize(r.queue.Len())
	return snap
}

// selectRoute picks the highest priority match; ties go to the earliest registered route.
func (r *Router) selectRoute(ctx context.Context, ev *ProcessedEvent) *Route {
	r.routesMu.RLock()
	defer r.routesMu.RUnlock()

	var best *Route
	for _, name := range r.order {
		route := r.routes[name]
		if !route.Enabled {
			continue
		}

		ok, err := route.evaluate(ctx, ev.EventType, ev.Source, ev.Payload)
		if err != nil {
			r.logger.WarnwCtx(ctx, "Route evaluation failed, treating as no match",
				"route", route.Name,
				"error", err,
			)
			continue
		}
		if ok && (best == nil || route.Priority > best.Priority) {
			best = route
		}
	}
	return best
}

// processEvent runs one handler attempt and schedules a retry on failure.
// The returned copy is taken before any retry becomes visible to workers.
func (r *Router) processEvent(ctx context.Context, ev *ProcessedEvent, route *Route) ProcessedEvent {
	ctx, span := tracing.GetTracer(tracerName).Start(ctx, "router.process_event")
	defer span.End()
	span.SetAttributes(
		attribute.String("route.name", route.Name),
		attribute.Int("event.retry_count", ev.RetryCount),
	)

	ev.Status = StatusProcessing
	handlerCtx := ContextWithEventInfo(ctx, EventInfo{
		ID:         ev.ID,
		EventType:  ev.EventType,
		Source:     ev.Source,
		RouteName:  route.Name,
		RetryCount: ev.RetryCount,
		Timestamp:  ev.Timestamp,
	})
	start := time.Now()
	result, err := r.invoke(handlerCtx, route, ev.Payload)
	ev.ProcessingTime = time.Since(start)
	metrics.ObserveRouteHandlerDuration(route.Name, ev.ProcessingTime)

	if err == nil {
		ev.Status = StatusCompleted
		ev.HandlerResult = result
		ev.ErrorMessage = ""
		r.stats.recordSuccess(ev.ProcessingTime)
		metrics.IncRouteDispatch(route.Name, "success")
		r.logger.DebugwCtx(ctx, "Event processed",
			"route", route.Name,
			"retry_count", ev.RetryCount,
			"duration_ms", ev.ProcessingTime.Milliseconds(),
		)
		snap := *ev
		r.complete(snap)
		return snap
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.stats.incFailed()
	metrics.IncRouteDispatch(route.Name, "error")
	ev.ErrorMessage = err.Error()

	if ev.RetryCount >= route.RetryBudget {
		ev.Status = StatusFailed
		r.logger.ErrorwCtx(ctx, "Event failed, retries exhausted",
			"route", route.Name,
			"retry_count", ev.RetryCount,
			"error", err,
		)
		snap := *ev
		r.complete(snap)
		return snap
	}

	ev.RetryCount++
	ev.Status = StatusRetry
	delay := retry.ExponentialDelay(ev.RetryCount, r.retryBase, r.retryMax)
	readyAt := time.Now().Add(delay)
	snap := *ev

	r.pending.Add(1)
	pushErr := r.queue.TryPush(&QueueItem{
		Key:     RetryKey(readyAt),
		Event:   ev,
		Route:   route,
		ReadyAt: readyAt,
		Span:    trace.SpanContextFromContext(ctx),
	})
	if pushErr != nil {
		r.pending.Add(-1)
		metrics.IncRetryScheduled("dropped")
		r.logger.ErrorwCtx(ctx, "Retry dropped, queue full",
			"route", route.Name,
			"retry_count", ev.RetryCount,
			"error", err,
		)
		ev.Status = StatusFailed
		ev.ErrorMessage = "retry dropped: " + ErrQueueFull.Error()
		snap = *ev
		r.complete(snap)
		return snap
	}

	metrics.IncRetryScheduled("scheduled")
	metrics.SetRouterQueueSize(r.queue.Len())
	r.logger.WarnwCtx(ctx, "Handler failed, retry scheduled",
		"route", route.Name,
		"retry_count", snap.RetryCount,
		"delay", delay.String(),
		"error", err,
	)
	return snap
}

func (r *Router) invoke(ctx context.Context, route *Route, payload map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = apperrors.RecoverPanic(rec)
		}
	}()
	return route.Handler.Invoke(ctx, payload)
}

func (r *Router) fail(ctx context.Context, ev *ProcessedEvent, message string) ProcessedEvent {
	ev.Status = StatusFailed
	ev.ErrorMessage = message
	r.stats.incFailed()
	metrics.IncRouterEvent("rejected")
	snap := *ev
	r.complete(snap)
	return snap
}

func (r *Router) complete(ev ProcessedEvent) {
	if r.onComplete == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorw("Completion hook panicked",
				"event_id", ev.ID,
				"error", apperrors.RecoverPanic(rec),
			)
		}
	}()
	r.onComplete(ev)
}

func (r *Router) GetStatistics() Statistics {
	stats := r.stats.snapshot()
	stats.QueueSize = r.queue.Len()
	stats.QueueCapacity = r.queue.Cap()
	stats.WorkersAlive = int(r.alive.Load())

	r.routesMu.RLock()
	stats.TotalRoutes = len(r.routes)
	for _, route := range r.routes {
		if route.Enabled {
			stats.ActiveRoutes++
		}
	}
	r.routesMu.RUnlock()

	return stats
}

// IsHealthy is true while every worker is running and the queue is below 90% full.
func (r *Router) IsHealthy() bool {
	if int(r.alive.Load()) != r.workers {
		return false
	}
	return r.queue.Len()*10 < r.queue.Cap()*9
}

// Shutdown stops intake and waits for queued and in-flight events to finish,
// then stops the workers. Handlers still running at the deadline are not
// cancelled.
func (r *Router) Shutdown(timeout time.Duration) error {
	r.closed.Store(true)
	r.logger.Infow("Router shutting down",
		"queue_size", r.queue.Len(),
		"timeout", timeout.String(),
	)

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	drained := r.pending.Load() == 0
	for !drained && time.Now().Before(deadline) {
		<-ticker.C
		drained = r.pending.Load() == 0
	}

	r.cancel()

	if !drained {
		remaining := r.pending.Load()
		r.logger.Warnw("Router shutdown timed out",
			"pending", remaining,
		)
		return fmt.Errorf("router shutdown timed out with %d events pending", remaining)
	}

	r.wg.Wait()
	r.logger.Infow("Router stopped")
	return nil
}

// IsClosed reports whether Shutdown has been called.
func (r *Router) IsClosed() bool {
	return r.closed.Load()
}

// ErrorFor maps a FAILED RouteEvent outcome onto the shared API error types.
func ErrorFor(ev ProcessedEvent) error {
	if ev.Status != StatusFailed {
		return nil
	}
	switch ev.ErrorMessage {
	case ErrQueueFull.Error():
		return apperrors.ErrQueueFull.WithCause(ErrQueueFull)
	case ErrRouterClosed.Error():
		return apperrors.ErrServiceUnavailable.WithCause(ErrRouterClosed)
	default:
		return errors.New(ev.ErrorMessage)
	}
}
