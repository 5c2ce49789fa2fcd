package retry

import (
	"sync"
	"time"

	"github.com/your-org/decision-pipeline/pkg/decision"
)

// CircuitBreaker maintains breaker state per decision type.
type CircuitBreaker struct {
	mu     sync.Mutex
	policy decision.CircuitBreakerPolicy
	states map[string]circuitState
}

type circuitState struct {
	consecutiveFailures int
	openUntil           time.Time
}

func NewCircuitBreaker(policy decision.CircuitBreakerPolicy) *CircuitBreaker {
	if policy.ResetTimeout <= 0 {
		policy.ResetTimeout = 60 * time.Second
	}
	return &CircuitBreaker{policy: policy, states: make(map[string]circuitState)}
}

// Enabled reports whether the breaker can ever open.
func (cb *CircuitBreaker) Enabled() bool {
	return cb != nil && cb.policy.FailureThreshold > 0
}

func (cb *CircuitBreaker) Allow(key string, now time.Time) bool {
	if !cb.Enabled() {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := cb.states[key]
	if s.openUntil.IsZero() {
		return true
	}
	if now.Before(s.openUntil) {
		return false
	}

	// Half-open: let one trial through and reset counters.
	s.openUntil = time.Time{}
	s.consecutiveFailures = 0
	cb.states[key] = s
	return true
}

func (cb *CircuitBreaker) RecordSuccess(key string) {
	if !cb.Enabled() {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := cb.states[key]
	s.consecutiveFailures = 0
	s.openUntil = time.Time{}
	cb.states[key] = s
}

// RecordFailure counts a failure and reports whether this call opened the circuit.
func (cb *CircuitBreaker) RecordFailure(key string, now time.Time) bool {
	if !cb.Enabled() {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := cb.states[key]
	s.consecutiveFailures++
	opened := false
	if s.consecutiveFailures >= cb.policy.FailureThreshold {
		s.openUntil = now.Add(cb.policy.ResetTimeout)
		s.consecutiveFailures = 0
		opened = true
	}
	cb.states[key] = s
	return opened
}
