package admission

import (
	"context"
	"sync"
	"time"
)

// StatsEvent is one admission decision.
type StatsEvent struct {
	Endpoint string
	Key      string
	Allowed  bool
	Reason   string
	At       time.Time
}

type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// StatsReader exposes the cumulative decision counters of a store.
type StatsReader interface {
	Totals(ctx context.Context) (Counters, error)
}

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

// MemoryStatsStore keeps decision counters in process. Nothing expires.
type MemoryStatsStore struct {
	mu         sync.Mutex
	total      Counters
	byEndpoint map[string]Counters
	byReason   map[string]int64
}

func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{
		byEndpoint: make(map[string]Counters),
		byReason:   make(map[string]int64),
	}
}

func (s *MemoryStatsStore) Record(_ context.Context, ev StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Allowed)
	c := s.byEndpoint[ev.Endpoint]
	c.add(ev.Allowed)
	s.byEndpoint[ev.Endpoint] = c
	if !ev.Allowed {
		s.byReason[ev.Reason]++
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) Totals(context.Context) (Counters, error) {
	return s.Total(), nil
}

func (s *MemoryStatsStore) ByEndpoint() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byEndpoint))
	for k, v := range s.byEndpoint {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) DeniedByReason() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.byReason))
	for k, v := range s.byReason {
		out[k] = v
	}
	return out
}
