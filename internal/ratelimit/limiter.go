package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Alias1177/Trader/models"
)

// Limiter bounds the call rate to one named external resource. Acquire never
// rejects a caller: it blocks until issuing a call would not exceed maxCalls
// within the trailing period, preserving FIFO fairness among waiters.
type Limiter struct {
	name    string
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// New creates a limiter allowing maxCalls per period. maxCalls <= 0 or a
// non-positive period is a configuration error, raised here and never at
// call time.
func New(name string, maxCalls int, period time.Duration) (*Limiter, error) {
	if maxCalls <= 0 {
		return nil, &models.ConfigError{
			Field:  "rate_limits." + name + ".max_calls",
			Reason: "must be positive",
		}
	}
	if period <= 0 {
		return nil, &models.ConfigError{
			Field:  "rate_limits." + name + ".period",
			Reason: "must be positive",
		}
	}

	// Token bucket sized to the full window: a burst of maxCalls passes
	// immediately, call maxCalls+1 waits for a slot to free.
	refill := rate.Limit(float64(maxCalls) / period.Seconds())

	return &Limiter{
		name:    name,
		limiter: rate.NewLimiter(refill, maxCalls),
		logger:  log.With().Str("component", "ratelimit").Str("resource", name).Logger(),
	}, nil
}

// Acquire blocks until a call slot is available. It only returns an error
// when ctx is cancelled; a saturated limiter delays, never drops.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter %s: %w", l.name, err)
	}
	return nil
}

// Name returns the resource name the limiter guards
func (l *Limiter) Name() string { return l.name }

// Registry holds one Limiter per named external resource, constructed once
// at startup and injected into data-access collaborators.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*Limiter)}
}

// Register creates and stores a limiter for the named resource
func (r *Registry) Register(name string, maxCalls int, period time.Duration) (*Limiter, error) {
	l, err := New(name, maxCalls, period)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.limiters[name] = l
	r.mu.Unlock()
	return l, nil
}

// Get returns the limiter for name, or an error if none was registered
func (r *Registry) Get(name string) (*Limiter, error) {
	r.mu.RLock()
	l, ok := r.limiters[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no rate limiter registered for resource %q", name)
	}
	return l, nil
}
