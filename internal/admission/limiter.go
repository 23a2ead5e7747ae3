package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"eventgate/internal/constants"
	"eventgate/internal/logger"
	"eventgate/pkg/metrics"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
)

const (
	ReasonAllowed         = "request allowed"
	ReasonBurst           = "burst limit exceeded"
	ReasonPerMinute       = "rate limit exceeded (per minute)"
	ReasonPerHour         = "rate limit exceeded (per hour)"
	reasonBlockedTemplate = "blocked until %s"
)

// Limits configures one limiter. A non-positive limit disables that check.
type Limits struct {
	RequestsPerMinute int
	RequestsPerHour   int
	BurstLimit        int
	BlockDuration     time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		RequestsPerMinute: constants.DefaultRequestsPerMinute,
		RequestsPerHour:   constants.DefaultRequestsPerHour,
		BurstLimit:        constants.DefaultBurstLimit,
		BlockDuration:     constants.DefaultBlockDurationSec * time.Second,
	}
}

type block struct {
	until  time.Time
	reason string
}

type Option func(*RateLimiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *RateLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

func WithLogger(log logger.Logger) Option {
	return func(l *RateLimiter) {
		if log != nil {
			l.logger = log
		}
	}
}

// WithStatsStore records every decision, best effort.
func WithStatsStore(store StatsStore) Option {
	return func(l *RateLimiter) {
		l.stats = store
	}
}

// RateLimiter throttles one logical endpoint with per-key sliding windows
// and a temporary block list. Instances never share state.
type RateLimiter struct {
	name   string
	limits Limits
	now    func() time.Time
	logger logger.Logger
	stats  StatsStore

	mu       sync.Mutex
	requests map[string]*window
	blocked  map[string]block
}

func NewRateLimiter(name string, limits Limits, opts ...Option) *RateLimiter {
	l := &RateLimiter{
		name:     name,
		limits:   limits,
		now:      time.Now,
		logger:   logger.NopLogger(),
		requests: make(map[string]*window),
		blocked:  make(map[string]block),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RateLimiter) Name() string {
	return l.name
}

func (l *RateLimiter) Limits() Limits {
	return l.limits
}

// IsAllowed decides whether key may make another request now.
func (l *RateLimiter) IsAllowed(key string) (bool, string) {
	return l.Check(context.Background(), key)
}

// Check is IsAllowed with a context for the stats store.
func (l *RateLimiter) Check(ctx context.Context, key string) (bool, string) {
	allowed, reason := l.decide(key)

	result := "allowed"
	if !allowed {
		result = "denied"
		l.logger.DebugwCtx(ctx, "Admission denied",
			"endpoint", l.name,
			"key", key,
			"reason", reason,
		)
	}
	metrics.IncAdmissionRequest(l.name, result)

	if l.stats != nil {
		ev := StatsEvent{Endpoint: l.name, Key: key, Allowed: allowed, Reason: reason, At: l.now()}
		if err := l.stats.Record(ctx, ev); err != nil {
			l.logger.WarnwCtx(ctx, "Failed to record admission stats",
				"endpoint", l.name,
				"error", err,
			)
		}
	}

	return allowed, reason
}

func (l *RateLimiter) decide(key string) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if b, ok := l.blocked[key]; ok {
		if now.Before(b.until) {
			return false, fmt.Sprintf(reasonBlockedTemplate, b.until.UTC().Format(time.RFC3339))
		}
		delete(l.blocked, key)
	}

	w, ok := l.requests[key]
	if !ok {
		w = &window{}
		l.requests[key] = w
	}
	w.pruneNotAfter(now.Add(-hourWindow))

	lastMinute := w.countAfter(now.Add(-minuteWindow))

	if l.limits.BurstLimit > 0 && lastMinute >= l.limits.BurstLimit {
		l.blockLocked(key, ReasonBurst, l.limits.BlockDuration, now)
		return false, ReasonBurst
	}

	if l.limits.RequestsPerMinute > 0 && lastMinute >= l.limits.RequestsPerMinute {
		return false, ReasonPerMinute
	}

	if l.limits.RequestsPerHour > 0 && w.len() >= l.limits.RequestsPerHour {
		return false, ReasonPerHour
	}

	w.push(now)
	return true, ReasonAllowed
}

// BlockSource blocks key for duration, replacing any existing block.
func (l *RateLimiter) BlockSource(key, reason string, duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blockLocked(key, reason, duration, l.now())
}

func (l *RateLimiter) blockLocked(key, reason string, duration time.Duration, now time.Time) {
	until := now.Add(duration)
	l.blocked[key] = block{until: until, reason: reason}
	metrics.SetAdmissionBlockedKeys(l.name, len(l.blocked))

	l.logger.Warnw("Source blocked",
		"endpoint", l.name,
		"key", key,
		"reason", reason,
		"blocked_until", until.UTC().Format(time.RFC3339),
	)
}

// UnblockSource lifts a block early. It reports whether a block existed.
func (l *RateLimiter) UnblockSource(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.blocked[key]; !ok {
		return false
	}
	delete(l.blocked, key)
	metrics.SetAdmissionBlockedKeys(l.name, len(l.blocked))
	l.logger.Infow("Source unblocked", "endpoint", l.name, "key", key)
	return true
}

type KeyStatus struct {
	Endpoint        string     `json:"endpoint"`
	Key             string     `json:"key"`
	MinuteCount     int        `json:"minute_count"`
	HourCount       int        `json:"hour_count"`
	RemainingMinute int        `json:"remaining_minute"`
	RemainingHour   int        `json:"remaining_hour"`
	Blocked         bool       `json:"blocked"`
	BlockedUntil    *time.Time `json:"blocked_until,omitempty"`
	BlockReason     string     `json:"block_reason,omitempty"`
}

// Status reports current usage for key without recording a request.
func (l *RateLimiter) Status(key string) KeyStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st := KeyStatus{Endpoint: l.name, Key: key}

	if w, ok := l.requests[key]; ok {
		st.MinuteCount = w.countAfter(now.Add(-minuteWindow))
		st.HourCount = w.countAfter(now.Add(-hourWindow))
	}
	st.RemainingMinute = remaining(l.limits.RequestsPerMinute, st.MinuteCount)
	st.RemainingHour = remaining(l.limits.RequestsPerHour, st.HourCount)

	if b, ok := l.blocked[key]; ok && now.Before(b.until) {
		until := b.until
		st.Blocked = true
		st.BlockedUntil = &until
		st.BlockReason = b.reason
	}

	return st
}

func remaining(limit, used int) int {
	if limit <= 0 {
		return -1
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

// Cleanup evicts keys with no requests in the last hour and expired blocks.
// It returns the number of entries removed.
func (l *RateLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0

	for key, w := range l.requests {
		w.pruneNotAfter(now.Add(-hourWindow))
		if w.len() == 0 {
			delete(l.requests, key)
			removed++
		}
	}

	for key, b := range l.blocked {
		if !now.Before(b.until) {
			delete(l.blocked, key)
			removed++
		}
	}

	metrics.SetAdmissionTrackedKeys(l.name, len(l.requests))
	metrics.SetAdmissionBlockedKeys(l.name, len(l.blocked))
	return removed
}

// TrackedKeys returns how many keys currently hold request history.
func (l *RateLimiter) TrackedKeys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}
