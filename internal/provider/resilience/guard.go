package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for guarded operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// GuardConfig holds configuration for a Guard.
type GuardConfig struct {
	// Name identifies this guard for circuit breaker naming and the registry.
	Name string

	// Timeout bounds every individual attempt.
	// Default: 5 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Default: 0 (single attempt)
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 5 seconds
	MaxInterval time.Duration

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry, if set, receives the guard and its success/failure history.
	Registry *Registry
}

// DefaultGuardConfig returns defaults for a single-attempt guard.
func DefaultGuardConfig(name string) GuardConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return GuardConfig{
		Name:            name,
		Timeout:         5 * time.Second,
		MaxRetries:      0,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		CircuitBreaker:  &cbConfig,
	}
}

// Guard runs operations against an external collaborator through a circuit
// breaker, with a per-attempt timeout and optional exponential backoff.
type Guard struct {
	circuitBreaker *gobreaker.CircuitBreaker[struct{}]
	config         GuardConfig
	isSuccessful   func(err error) bool
}

// NewGuard creates a new Guard.
func NewGuard(cfg GuardConfig) *Guard {
	// Set defaults
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
		if cbConfig.Name == "" {
			cbConfig.Name = cfg.Name
		}
	}

	g := &Guard{
		circuitBreaker: NewCircuitBreaker[struct{}](cbConfig),
		config:         cfg,
		isSuccessful:   cbConfig.IsSuccessful,
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, g)
	}

	return g
}

// Name returns the guard name.
func (g *Guard) Name() string {
	return g.config.Name
}

// Do executes op with circuit breaker protection. Each attempt gets its own
// timeout derived from ctx. Retries use exponential backoff and stop early on
// an open circuit, a cancelled ctx, or an error wrapped with backoff.Permanent.
func (g *Guard) Do(ctx context.Context, op func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.config.InitialInterval
	bo.MaxInterval = g.config.MaxInterval
	bo.MaxElapsedTime = 0 // Unlimited, we control retries via WithMaxRetries

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, g.config.MaxRetries), ctx)

	operation := func() error {
		_, err := g.circuitBreaker.Execute(func() (struct{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
			defer cancel()
			return struct{}{}, op(attemptCtx)
		})
		if err == nil {
			return nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		if g.isSuccessful != nil && g.isSuccessful(err) {
			// Expected outcome, not worth retrying
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, policy)
	g.record(err)
	return err
}

func (g *Guard) record(err error) {
	if g.config.Registry == nil {
		return
	}
	if err == nil || (g.isSuccessful != nil && g.isSuccessful(err)) {
		g.config.Registry.RecordSuccess(g.config.Name)
		return
	}
	g.config.Registry.RecordFailure(g.config.Name, err)
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (g *Guard) CircuitBreakerState() gobreaker.State {
	return g.circuitBreaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (g *Guard) CircuitBreakerCounts() gobreaker.Counts {
	return g.circuitBreaker.Counts()
}
