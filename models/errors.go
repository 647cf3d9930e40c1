package models

import (
	"errors"
	"fmt"
)

// Error taxonomy. Per-symbol data failures are isolated and skip the symbol;
// the circuit breaker halts the remaining cycle; configuration errors are
// process-fatal at startup. Risk rejections are not errors at all — they are
// RiskDecisions with Approved=false.
var (
	// ErrDataUnavailable marks a per-symbol failure after retries are
	// exhausted. The affected symbol is skipped for the cycle.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrCircuitBreakerTripped halts the remainder of a trading cycle.
	ErrCircuitBreakerTripped = errors.New("daily loss circuit breaker tripped")

	// ErrInsufficientData is returned by the optimizer when the lookback
	// window holds too few trades to re-tune parameters.
	ErrInsufficientData = errors.New("insufficient trade history for optimization")
)

// ExternalServiceError wraps a transient provider failure. Callers retry
// with bounded backoff, then demote it to ErrDataUnavailable.
type ExternalServiceError struct {
	Provider string
	Err      error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s: %v", e.Provider, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// ConfigError is a fatal startup configuration problem. The process must
// refuse to start when one is raised.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}
