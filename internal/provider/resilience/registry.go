package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// DependencyHealth is the health snapshot of one guarded dependency.
type DependencyHealth struct {
	Name          string
	CircuitState  gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// IsHealthy returns true if the circuit is closed.
func (h *DependencyHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded returns true if the circuit is half-open.
func (h *DependencyHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// IsUnhealthy returns true if the circuit is open.
func (h *DependencyHealth) IsUnhealthy() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// Registry tracks guards and their recent outcomes for the ops status endpoint.
type Registry struct {
	mu     sync.RWMutex
	guards map[string]*registeredGuard
	now    func() time.Time
}

type registeredGuard struct {
	guard         *Guard
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		guards: make(map[string]*registeredGuard),
		now:    time.Now,
	}
}

// Register adds a guard under name, replacing any previous one.
func (r *Registry) Register(name string, g *Guard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guards[name] = &registeredGuard{guard: g}
}

// Unregister removes a guard.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.guards, name)
}

// RecordSuccess records a successful call.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.guards[name]; ok {
		now := r.now()
		g.lastSuccessAt = &now
	}
}

// RecordFailure records a failed call.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.guards[name]; ok {
		now := r.now()
		g.lastFailureAt = &now
		if err != nil {
			g.lastError = err.Error()
		}
	}
}

// GetHealth returns the health of a guard, or nil if it is not registered.
func (r *Registry) GetHealth(name string) *DependencyHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.guards[name]
	if !ok {
		return nil
	}
	return g.snapshot(name)
}

// GetAllHealth returns the health of every registered guard, sorted by name.
func (r *Registry) GetAllHealth() []*DependencyHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health := make([]*DependencyHealth, 0, len(r.guards))
	for name, g := range r.guards {
		health = append(health, g.snapshot(name))
	}
	sort.Slice(health, func(i, j int) bool { return health[i].Name < health[j].Name })
	return health
}

// Count returns the number of registered guards.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.guards)
}

func (g *registeredGuard) snapshot(name string) *DependencyHealth {
	return &DependencyHealth{
		Name:          name,
		CircuitState:  g.guard.CircuitBreakerState(),
		Counts:        g.guard.CircuitBreakerCounts(),
		LastSuccessAt: g.lastSuccessAt,
		LastFailureAt: g.lastFailureAt,
		LastError:     g.lastError,
	}
}
