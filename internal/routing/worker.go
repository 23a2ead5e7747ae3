package routing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"eventgate/pkg/logging"
	"eventgate/pkg/metrics"
)

func (r *Router) runWorker(ctx context.Context, id int) {
	defer r.wg.Done()

	metrics.SetRouterWorkersAlive(int(r.alive.Add(1)))
	defer func() {
		metrics.SetRouterWorkersAlive(int(r.alive.Add(-1)))
	}()

	r.logger.Debugw("Worker started", "worker_id", id)
	for {
		if ctx.Err() != nil {
			r.logger.Debugw("Worker stopped", "worker_id", id)
			return
		}

		item, ok := r.queue.Pop(ctx, r.pollInterval)
		if !ok {
			continue
		}
		r.handleItem(item)
	}
}

// handleItem runs outside the caller's context, so handlers are never cancelled
// by shutdown. Only the enqueuing span carries over.
func (r *Router) handleItem(item *QueueItem) {
	defer r.pending.Add(-1)

	metrics.SetRouterQueueSize(r.queue.Len())
	if wait := time.Since(item.ReadyAt); wait > 0 {
		metrics.ObserveRouterQueueWait(wait)
	}

	ctx := context.Background()
	if item.Span.IsValid() {
		ctx = trace.ContextWithSpanContext(ctx, item.Span)
	}
	ctx = logging.WithSource(logging.WithEventID(ctx, item.Event.ID), item.Event.Source)
	r.processEvent(ctx, item.Event, item.Route)
}
