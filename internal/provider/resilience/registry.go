package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Status is the coarse health of an upstream provider.
type Status string

// Provider statuses derived from the circuit breaker state.
const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFail     Status = "fail"
)

// ProviderHealth is a point-in-time view of one upstream provider.
type ProviderHealth struct {
	Name         string
	CircuitState gobreaker.State
	Counts       gobreaker.Counts

	// StateChangedAt is when the circuit last changed state; nil if it never has.
	StateChangedAt *time.Time

	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// Status maps the circuit state: closed is ok, half-open is degraded and open is fail.
func (h ProviderHealth) Status() Status {
	switch h.CircuitState {
	case gobreaker.StateOpen:
		return StatusFail
	case gobreaker.StateHalfOpen:
		return StatusDegraded
	default:
		return StatusOK
	}
}

// Registry tracks the resilient clients of the routing, directions and POI
// providers so the ops endpoints can report on them.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*registeredProvider
}

type registeredProvider struct {
	client         *Client
	stateChangedAt *time.Time
	lastSuccessAt  *time.Time
	lastFailureAt  *time.Time
	lastError      string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*registeredProvider),
	}
}

// Register adds a client under name, replacing any earlier client of that name.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = &registeredProvider{client: client}
}

// RecordSuccess records a successful call to the named provider.
func (r *Registry) RecordSuccess(name string) {
	r.update(name, func(p *registeredProvider, now time.Time) {
		p.lastSuccessAt = &now
	})
}

// RecordFailure records a failed call to the named provider.
func (r *Registry) RecordFailure(name string, err error) {
	r.update(name, func(p *registeredProvider, now time.Time) {
		p.lastFailureAt = &now
		if err != nil {
			p.lastError = err.Error()
		}
	})
}

// RecordStateChange records a circuit breaker transition for the named provider.
func (r *Registry) RecordStateChange(name string) {
	r.update(name, func(p *registeredProvider, now time.Time) {
		p.stateChangedAt = &now
	})
}

func (r *Registry) update(name string, fn func(p *registeredProvider, now time.Time)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[name]; ok {
		fn(p, time.Now())
	}
}

// Health returns the named provider's health, or false if it is not registered.
func (r *Registry) Health(name string) (ProviderHealth, bool) {
	r.mu.RLock()
	p, ok := r.providers[name]
	var h ProviderHealth
	if ok {
		h = p.record(name)
	}
	r.mu.RUnlock()

	if !ok {
		return ProviderHealth{}, false
	}
	return withCircuit(h, p.client), true
}

// Snapshot returns the health of every registered provider ordered by name.
func (r *Registry) Snapshot() []ProviderHealth {
	r.mu.RLock()
	all := make([]ProviderHealth, 0, len(r.providers))
	clients := make(map[string]*Client, len(r.providers))
	for name, p := range r.providers {
		all = append(all, p.record(name))
		clients[name] = p.client
	}
	r.mu.RUnlock()

	// Reading the breaker can fire a state change that records back into the
	// registry, so it happens without the registry lock held.
	for i := range all {
		all[i] = withCircuit(all[i], clients[all[i].Name])
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Names returns the registered provider names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

func (p *registeredProvider) record(name string) ProviderHealth {
	return ProviderHealth{
		Name:           name,
		StateChangedAt: p.stateChangedAt,
		LastSuccessAt:  p.lastSuccessAt,
		LastFailureAt:  p.lastFailureAt,
		LastError:      p.lastError,
	}
}

func withCircuit(h ProviderHealth, c *Client) ProviderHealth {
	h.CircuitState = c.CircuitBreakerState()
	h.Counts = c.CircuitBreakerCounts()
	return h
}
