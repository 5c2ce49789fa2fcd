package retry

import (
	"math/rand"
	"time"

	"github.com/your-org/decision-pipeline/pkg/decision"
)

const defaultBaseDelay = time.Second

// BackoffDuration returns the wait before re-queueing a decision that has run attempt times.
// Linear backoff is attempt * base.
func BackoffDuration(strategy decision.BackoffStrategy, base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = defaultBaseDelay
	}
	if attempt < 1 {
		attempt = 1
	}
	switch strategy {
	case decision.BackoffExponential:
		return base * time.Duration(1<<uint(attempt-1))
	case decision.BackoffExponentialJitter:
		exp := base * time.Duration(1<<uint(attempt-1))
		jitter := time.Duration(rand.Int63n(int64(base)))
		return exp + jitter
	default:
		return base * time.Duration(attempt)
	}
}
