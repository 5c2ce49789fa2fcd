package executor

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/your-org/decision-pipeline/pkg/decision"
)

// ErrSimulatedFailure is returned by the simulated executor's failure injection.
var ErrSimulatedFailure = errors.New("simulated execution failure")

// Base durations per complexity tier. Each run varies by up to 50% either way.
var tierDurations = map[decision.Complexity]time.Duration{
	decision.ComplexityLow:    100 * time.Millisecond,
	decision.ComplexityMedium: 500 * time.Millisecond,
	decision.ComplexityHigh:   2000 * time.Millisecond,
}

// SimulatedOptions tune the simulated executor. Scale multiplies every tier
// duration; FailureRate is the chance in [0,1] of a transient failure.
type SimulatedOptions struct {
	Scale       float64
	FailureRate float64
	Seed        int64
}

// Simulated stands in for a real downstream decision engine.
type Simulated struct {
	scale       float64
	failureRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulated(opts SimulatedOptions) *Simulated {
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	return &Simulated{
		scale:       opts.Scale,
		failureRate: opts.FailureRate,
		rng:         rand.New(rand.NewSource(opts.Seed)),
	}
}

// Duration returns the jittered run time for a tier.
func (s *Simulated) Duration(tier decision.Complexity) time.Duration {
	base, ok := tierDurations[tier]
	if !ok {
		base = tierDurations[decision.ComplexityMedium]
	}
	jitter := 0.5 + s.float()
	return time.Duration(float64(base) * jitter * s.scale)
}

// Execute waits out the simulated duration and returns a scored result.
func (s *Simulated) Execute(ctx context.Context, d decision.Decision) (decision.Result, error) {
	wait := s.Duration(d.Tier())
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return decision.Result{}, ctx.Err()
	case <-timer.C:
	}

	if s.failureRate > 0 && s.float() < s.failureRate {
		return decision.Result{}, ErrSimulatedFailure
	}

	confidence := 0.7 + 0.3*s.float()
	return decision.Result{
		Outcome:         classify(confidence),
		Confidence:      confidence,
		Recommendations: recommendations(d.Tier()),
	}, nil
}

func (s *Simulated) float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func classify(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return "approve"
	case confidence >= 0.8:
		return "approve_with_conditions"
	default:
		return "manual_review"
	}
}

func recommendations(tier decision.Complexity) []string {
	switch tier {
	case decision.ComplexityLow:
		return []string{"proceed"}
	case decision.ComplexityHigh:
		return []string{"escalate to reviewer", "collect additional evidence", "re-evaluate within 24h"}
	default:
		return []string{"proceed", "monitor outcome"}
	}
}
