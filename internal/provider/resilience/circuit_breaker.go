// Package resilience wraps calls to external collaborators (scheduler backend,
// email provider, message broker) with circuit breakers, bounded timeouts and
// optional retries.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig configures the breaker of one collaborator.
type CircuitBreakerConfig struct {
	Name string

	// MaxRequests allowed through while half-open. Default: 1
	MaxRequests uint32

	// Interval after which closed-state counts reset. Zero keeps them until
	// the state changes.
	Interval time.Duration

	// Timeout spent open before probing again. Default: 30s
	Timeout time.Duration

	// ReadyToTrip decides when to open. Default: TripOnFailureRatio(5, 0.5)
	ReadyToTrip func(counts gobreaker.Counts) bool

	// IsSuccessful reports errors that are expected outcomes and must not
	// count against the collaborator, e.g. "no such job" on cancel.
	IsSuccessful func(err error) bool

	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultCircuitBreakerConfig returns the breaker used by every guard unless
// overridden.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: TripOnFailureRatio(5, 0.5),
	}
}

// TripOnFailureRatio opens the breaker once at least minRequests calls were
// made and the share of failures reaches ratio.
func TripOnFailureRatio(minRequests uint32, ratio float64) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		if counts.Requests == 0 || counts.Requests < minRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
	}
}

// TripOnConsecutiveFailures opens the breaker after n failures in a row.
func TripOnConsecutiveFailures(n uint32) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= n
	}
}

// NewCircuitBreaker builds a gobreaker breaker from cfg. Zero fields fall
// back to gobreaker's own defaults.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   cfg.ReadyToTrip,
		IsSuccessful:  cfg.IsSuccessful,
		OnStateChange: cfg.OnStateChange,
	})
}
