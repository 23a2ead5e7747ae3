package routing

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const (
	// PrimaryBandBase minus the route priority gives the band of a fresh event,
	// so CRITICAL lands in band 1 and LOW in band 4.
	PrimaryBandBase = 5
	// RetryBand sorts every retry after all fresh work.
	RetryBand = 10
)

// PriorityKey orders queue items; lower keys dequeue first.
type PriorityKey struct {
	Band     int
	Sequence int64
}

func (k PriorityKey) Less(o PriorityKey) bool {
	if k.Band != o.Band {
		return k.Band < o.Band
	}
	return k.Sequence < o.Sequence
}

func PrimaryKey(p Priority, enqueuedAt time.Time) PriorityKey {
	return PriorityKey{Band: PrimaryBandBase - int(p), Sequence: enqueuedAt.UnixNano()}
}

func RetryKey(readyAt time.Time) PriorityKey {
	return PriorityKey{Band: RetryBand, Sequence: readyAt.UnixNano()}
}

type QueueItem struct {
	Key     PriorityKey
	Event   *ProcessedEvent
	Route   *Route
	ReadyAt time.Time
	// Span links the worker's processing span to whoever enqueued the item.
	Span trace.SpanContext

	seq uint64
}

type itemHeap []*QueueItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Key != h[j].Key {
		return h[i].Key.Less(h[j].Key)
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x interface{}) { *h = append(*h, x.(*QueueItem)) }

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// delayQueue is a bounded priority queue whose items become visible only
// once their ReadyAt has passed.
type delayQueue struct {
	mu       sync.Mutex
	items    itemHeap
	capacity int
	seq      uint64
	// wake is closed and replaced on every push to release all waiters.
	wake chan struct{}
}

func newDelayQueue(capacity int) *delayQueue {
	return &delayQueue{
		items:    make(itemHeap, 0),
		capacity: capacity,
		wake:     make(chan struct{}),
	}
}

// TryPush never blocks; it fails with ErrQueueFull at capacity.
func (q *delayQueue) TryPush(item *QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		return ErrQueueFull
	}

	q.seq++
	item.seq = q.seq
	heap.Push(&q.items, item)

	close(q.wake)
	q.wake = make(chan struct{})
	return nil
}

// Pop returns the lowest-key ready item, waiting up to timeout for one.
func (q *delayQueue) Pop(ctx context.Context, timeout time.Duration) (*QueueItem, bool) {
	deadline := time.Now().Add(timeout)

	for {
		q.mu.Lock()
		now := time.Now()
		if len(q.items) > 0 && !q.items[0].ReadyAt.After(now) {
			item := heap.Pop(&q.items).(*QueueItem)
			q.mu.Unlock()
			return item, true
		}

		wait := deadline.Sub(now)
		if len(q.items) > 0 {
			if untilReady := q.items[0].ReadyAt.Sub(now); untilReady < wait {
				wait = untilReady
			}
		}
		wake := q.wake
		q.mu.Unlock()

		if wait <= 0 {
			return nil, false
		}

		timer := time.NewTimer(wait)
		select {
		case <-wake:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		}
		timer.Stop()
	}
}

func (q *delayQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *delayQueue) Cap() int {
	return q.capacity
}
