package model

import (
	"sync"
	"time"

	"github.com/samber/lo"
)

// EndpointHealth is the circuit state of one endpoint.
type EndpointHealth struct {
	Available    bool      `json:"available"`
	LastSuccess  time.Time `json:"last_success,omitempty"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
	FailureCount int       `json:"failure_count"`

	CircuitOpen     bool      `json:"circuit_open"`
	CircuitOpenedAt time.Time `json:"circuit_opened_at,omitempty"`
}

// HealthConfig tunes the per-endpoint circuit breaker.
type HealthConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int

	// RecoveryTimeout after opening, one probe is let through.
	RecoveryTimeout time.Duration
}

// DefaultHealthConfig opens after 3 failures and probes after 30s.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second}
}

// breaker holds the circuit state of every endpoint the registry has used.
type breaker struct {
	mu     sync.RWMutex
	cfg    HealthConfig
	states map[string]*EndpointHealth
	clock  func() time.Time
}

func newBreaker() *breaker {
	return &breaker{
		cfg:    DefaultHealthConfig(),
		states: map[string]*EndpointHealth{},
		clock:  time.Now,
	}
}

// record applies one call outcome to name's circuit.
func (b *breaker) record(name string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, found := b.states[name]
	if !found {
		st = &EndpointHealth{Available: true}
		b.states[name] = st
	}
	now := b.clock()
	if ok {
		*st = EndpointHealth{Available: true, LastSuccess: now, LastFailure: st.LastFailure}
		return
	}
	st.LastFailure = now
	st.FailureCount++
	if st.FailureCount >= b.cfg.FailureThreshold && !st.CircuitOpen {
		st.CircuitOpen = true
		st.CircuitOpenedAt = now
		st.Available = false
	}
}

// allows reports whether name may be called: its circuit is closed, or has
// been open longer than the recovery timeout.
func (b *breaker) allows(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.states[name]
	if !ok || !st.CircuitOpen {
		return true
	}
	return b.clock().Sub(st.CircuitOpenedAt) > b.cfg.RecoveryTimeout
}

// circuits returns the breaker, creating it on first use.
func (r *Registry) circuits() *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.health == nil {
		r.health = newBreaker()
	}
	return r.health
}

// MarkEndpointSuccess closes name's circuit and clears its failure count.
func (r *Registry) MarkEndpointSuccess(name string) {
	r.circuits().record(name, true)
}

// MarkEndpointFailure counts a failure against name, opening its circuit at
// the threshold.
func (r *Registry) MarkEndpointFailure(name string) {
	r.circuits().record(name, false)
}

// IsEndpointAvailable reports whether requests may be sent to name.
func (r *Registry) IsEndpointAvailable(name string) bool {
	return r.circuits().allows(name)
}

// GetEndpointHealth returns a copy of name's circuit state, or nil if the
// endpoint has not been used.
func (r *Registry) GetEndpointHealth(name string) *EndpointHealth {
	b := r.circuits()
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.states[name]
	if !ok {
		return nil
	}
	cp := *st
	return &cp
}

// GetAvailableFallbackChain is GetFallbackChain without open circuits. If
// every circuit is open the whole chain is returned.
func (r *Registry) GetAvailableFallbackChain(c Capability) []string {
	chain := r.GetFallbackChain(c)
	open := lo.Filter(chain, func(name string, _ int) bool {
		return r.IsEndpointAvailable(name)
	})
	if len(open) == 0 {
		return chain
	}
	return open
}

// SetHealthConfig replaces the breaker settings.
func (r *Registry) SetHealthConfig(cfg HealthConfig) {
	b := r.circuits()
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
}

// ResetEndpointHealth forgets name's circuit state.
func (r *Registry) ResetEndpointHealth(name string) {
	b := r.circuits()
	b.mu.Lock()
	delete(b.states, name)
	b.mu.Unlock()
}

func (r *Registry) setHealthClock(now func() time.Time) {
	b := r.circuits()
	b.mu.Lock()
	b.clock = now
	b.mu.Unlock()
}
