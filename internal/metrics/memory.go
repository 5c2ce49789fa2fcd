package metrics

import (
	"sync"
	"time"
)

// TypeStats aggregates per decision type.
type TypeStats struct {
	Attempts     int64
	Failures     int64
	Retries      int64
	Resolved     int64
	DeadLettered int64
	CircuitOpens int64
}

// MemorySnapshot is the read view of an InMemoryRecorder.
type MemorySnapshot struct {
	Submitted     int64
	Rejected      map[string]int64
	TotalAttempts int64
	RetryAttempts int64
	Terminal      map[string]int64
	ByType        map[string]TypeStats
	LastSnapshot  Snapshot
}

// InMemoryRecorder keeps counters in process, mainly for tests and the CLI.
type InMemoryRecorder struct {
	mu sync.Mutex
	s  MemorySnapshot
}

func NewInMemoryRecorder() *InMemoryRecorder {
	return &InMemoryRecorder{s: MemorySnapshot{
		Rejected: map[string]int64{},
		Terminal: map[string]int64{},
		ByType:   map[string]TypeStats{},
	}}
}

func (r *InMemoryRecorder) ObserveSubmitted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.Submitted++
}

func (r *InMemoryRecorder) ObserveRejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.Rejected[reason]++
}

func (r *InMemoryRecorder) ObserveAttempt(decisionType string, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.TotalAttempts++
	ts := r.s.ByType[decisionType]
	ts.Attempts++
	if status != "success" {
		ts.Failures++
	}
	r.s.ByType[decisionType] = ts
}

func (r *InMemoryRecorder) ObserveRetry(decisionType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.RetryAttempts++
	ts := r.s.ByType[decisionType]
	ts.Retries++
	r.s.ByType[decisionType] = ts
}

func (r *InMemoryRecorder) ObserveTerminal(decisionType string, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.Terminal[outcome]++
	ts := r.s.ByType[decisionType]
	switch outcome {
	case OutcomeResolved:
		ts.Resolved++
	case OutcomeDeadLettered:
		ts.DeadLettered++
	}
	r.s.ByType[decisionType] = ts
}

func (r *InMemoryRecorder) ObserveCircuitOpen(decisionType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := r.s.ByType[decisionType]
	ts.CircuitOpens++
	r.s.ByType[decisionType] = ts
}

func (r *InMemoryRecorder) ObserveSnapshot(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.LastSnapshot = s
}

// Snapshot returns a deep copy of the counters.
func (r *InMemoryRecorder) Snapshot() MemorySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.s
	out.Rejected = make(map[string]int64, len(r.s.Rejected))
	for k, v := range r.s.Rejected {
		out.Rejected[k] = v
	}
	out.Terminal = make(map[string]int64, len(r.s.Terminal))
	for k, v := range r.s.Terminal {
		out.Terminal[k] = v
	}
	out.ByType = make(map[string]TypeStats, len(r.s.ByType))
	for k, v := range r.s.ByType {
		out.ByType[k] = v
	}
	return out
}
