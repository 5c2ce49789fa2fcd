// Package executor provides the units of work behind decision types.
package executor

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/your-org/decision-pipeline/pkg/decision"
)

var (
	ErrEmptyType     = errors.New("decision type is empty")
	ErrNilExecutor   = errors.New("executor func is nil")
	ErrDuplicateType = errors.New("decision type already registered")
)

// Registry stores executors by decision type. A fallback serves unregistered types.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]decision.ExecuteFunc
	fallback  decision.ExecuteFunc
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]decision.ExecuteFunc)}
}

func (r *Registry) Register(decisionType string, fn decision.ExecuteFunc) error {
	if decisionType == "" {
		return ErrEmptyType
	}
	if fn == nil {
		return ErrNilExecutor
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[decisionType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, decisionType)
	}
	r.executors[decisionType] = fn
	return nil
}

// SetFallback installs the executor used when no type matches. nil clears it.
func (r *Registry) SetFallback(fn decision.ExecuteFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = fn
}

func (r *Registry) Resolve(decisionType string) (decision.ExecuteFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.executors[decisionType]; ok {
		return fn, true
	}
	return r.fallback, r.fallback != nil
}

// Types lists the registered decision types in order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.executors))
	for t := range r.executors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
