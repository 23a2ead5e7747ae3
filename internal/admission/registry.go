package admission

import (
	"context"
	"sort"
	"sync"
	"time"

	"eventgate/internal/config"
	"eventgate/internal/logger"
)

// Registry holds one independent RateLimiter per logical endpoint.
// Endpoints missing from config are created on first use with defaults.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*RateLimiter
	defaults Limits
	opts     []Option
	logger   logger.Logger
}

func NewRegistry(cfg config.AdmissionConfig, log logger.Logger, opts ...Option) *Registry {
	if log == nil {
		log = logger.NopLogger()
	}
	opts = append([]Option{WithLogger(log)}, opts...)

	r := &Registry{
		limiters: make(map[string]*RateLimiter),
		defaults: DefaultLimits(),
		opts:     opts,
		logger:   log,
	}
	for name, ep := range cfg.Endpoints {
		r.limiters[name] = NewRateLimiter(name, LimitsFromConfig(ep), opts...)
	}
	return r
}

func LimitsFromConfig(ep config.EndpointLimitConfig) Limits {
	return Limits{
		RequestsPerMinute: ep.RequestsPerMinute,
		RequestsPerHour:   ep.RequestsPerHour,
		BurstLimit:        ep.BurstLimit,
		BlockDuration:     time.Duration(ep.BlockDurationSeconds) * time.Second,
	}
}

// Limiter returns the limiter for endpoint, creating it if needed.
func (r *Registry) Limiter(endpoint string) *RateLimiter {
	r.mu.RLock()
	l, ok := r.limiters[endpoint]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[endpoint]; ok {
		return l
	}
	l = NewRateLimiter(endpoint, r.defaults, r.opts...)
	r.limiters[endpoint] = l
	r.logger.Infow("Created admission limiter with default limits", "endpoint", endpoint)
	return l
}

// Lookup returns the limiter only if it already exists.
func (r *Registry) Lookup(endpoint string) (*RateLimiter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.limiters[endpoint]
	return l, ok
}

func (r *Registry) Endpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.limiters))
	for name := range r.limiters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CleanupAll runs Cleanup on every limiter and returns the total evicted.
func (r *Registry) CleanupAll() int {
	r.mu.RLock()
	limiters := make([]*RateLimiter, 0, len(r.limiters))
	for _, l := range r.limiters {
		limiters = append(limiters, l)
	}
	r.mu.RUnlock()

	removed := 0
	for _, l := range limiters {
		removed += l.Cleanup()
	}
	return removed
}

// StartJanitor evicts idle keys every interval until ctx is done.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Infow("Admission janitor started", "interval", interval.String())

	for {
		select {
		case <-ctx.Done():
			r.logger.Infow("Admission janitor stopped")
			return nil
		case <-ticker.C:
			if removed := r.CleanupAll(); removed > 0 {
				r.logger.Debugw("Admission cleanup", "removed", removed)
			}
		}
	}
}
