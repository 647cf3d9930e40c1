package params

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Trader/models"
)

// Registry holds the active ParameterSet per strategy. Sets are immutable
// once created: an update builds a new version and swaps the active pointer
// atomically, so readers mid-cycle keep the set they started with and only
// scans starting after activation observe the new one.
type Registry struct {
	mu     sync.Mutex // serializes writers; readers go through the atomic pointers
	active map[string]*atomic.Pointer[models.ParameterSet]
	logger zerolog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]*atomic.Pointer[models.ParameterSet]),
		logger: log.With().Str("component", "params").Logger(),
	}
}

// Seed installs version 1 defaults for a strategy at startup
func (r *Registry) Seed(strategy string, defaults map[string]float64) *models.ParameterSet {
	ps := &models.ParameterSet{
		Strategy:  strategy,
		Version:   1,
		Params:    copyParams(defaults),
		ValidFrom: time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ptr := &atomic.Pointer[models.ParameterSet]{}
	ptr.Store(ps)
	r.active[strategy] = ptr
	return ps
}

// Active returns the currently active set for a strategy, or nil when the
// strategy was never seeded. The returned set must be treated as read-only.
func (r *Registry) Active(strategy string) *models.ParameterSet {
	r.mu.Lock()
	ptr, ok := r.active[strategy]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return ptr.Load()
}

// Activate creates the next version with the given params and swaps it in.
// The previous set is untouched; in-flight readers keep it.
func (r *Registry) Activate(strategy string, newParams map[string]float64) *models.ParameterSet {
	r.mu.Lock()
	defer r.mu.Unlock()

	ptr, ok := r.active[strategy]
	if !ok {
		ptr = &atomic.Pointer[models.ParameterSet]{}
		r.active[strategy] = ptr
	}

	version := 1
	if prev := ptr.Load(); prev != nil {
		version = prev.Version + 1
	}

	ps := &models.ParameterSet{
		Strategy:  strategy,
		Version:   version,
		Params:    copyParams(newParams),
		ValidFrom: time.Now().UTC(),
	}
	ptr.Store(ps)

	r.logger.Info().
		Str("strategy", strategy).
		Int("version", version).
		Interface("params", ps.Params).
		Msg("Parameter set activated")
	return ps
}

func copyParams(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
