package decision

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ExecuteFunc is the contract for the unit of work a decision fronts.
type ExecuteFunc func(ctx context.Context, d Decision) (Result, error)

// ValidateFunc is the compliance gate run before execution.
type ValidateFunc func(d Decision) error

// Complexity selects the execution tier of a decision.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// ParseComplexity accepts the tier names plus the simple/moderate/complex aliases.
// Unknown or empty input maps to medium.
func ParseComplexity(raw string) Complexity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low", "simple", "trivial":
		return ComplexityLow
	case "high", "complex", "critical":
		return ComplexityHigh
	default:
		return ComplexityMedium
	}
}

// Priority is advisory metadata; the intake queue is strictly FIFO.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Decision is the unit of work admitted to the pipeline.
type Decision struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Complexity string            `json:"complexity,omitempty"`
	Priority   Priority          `json:"priority,omitempty"`
	CustomerID string            `json:"customerId,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Compliance map[string]bool   `json:"compliance,omitempty"`

	SubmittedAt time.Time `json:"submittedAt"`
	Attempts    int       `json:"attempts"`
}

// Tier returns the parsed complexity tier.
func (d Decision) Tier() Complexity {
	return ParseComplexity(d.Complexity)
}

// Clone returns a deep copy so executors cannot mutate pipeline-owned state.
func (d Decision) Clone() Decision {
	out := d
	if d.Attributes != nil {
		out.Attributes = make(map[string]string, len(d.Attributes))
		for k, v := range d.Attributes {
			out.Attributes[k] = v
		}
	}
	if d.Compliance != nil {
		out.Compliance = make(map[string]bool, len(d.Compliance))
		for k, v := range d.Compliance {
			out.Compliance[k] = v
		}
	}
	return out
}

// Result is the terminal success payload delivered to the submitter.
type Result struct {
	DecisionID      string        `json:"decisionId"`
	Success         bool          `json:"success"`
	Outcome         string        `json:"outcome,omitempty"`
	Confidence      float64       `json:"confidence,omitempty"`
	Recommendations []string      `json:"recommendations,omitempty"`
	Attempts        int           `json:"attempts"`
	ProcessingTime  time.Duration `json:"processingTime"`
	CompletedAt     time.Time     `json:"completedAt"`
}

// BackoffStrategy defines retry wait behavior.
type BackoffStrategy string

const (
	BackoffLinear            BackoffStrategy = "linear"
	BackoffExponential       BackoffStrategy = "exponential"
	BackoffExponentialJitter BackoffStrategy = "exponential_jitter"
)

// ParseBackoff validates a backoff name. Empty input means linear.
func ParseBackoff(raw string) (BackoffStrategy, error) {
	switch s := BackoffStrategy(strings.ToLower(strings.TrimSpace(raw))); s {
	case "":
		return BackoffLinear, nil
	case BackoffLinear, BackoffExponential, BackoffExponentialJitter:
		return s, nil
	default:
		return "", fmt.Errorf("unknown backoff strategy %q", raw)
	}
}

// RetryPolicy configures retry behavior.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffStrategy
	BaseDelay   time.Duration
}

// CircuitBreakerPolicy configures failure threshold and reset behavior per decision type.
type CircuitBreakerPolicy struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// HealthPolicy holds the thresholds behind IsHealthy.
type HealthPolicy struct {
	MaxErrorRate  float64
	MaxQueueRatio float64
}

// Config is the process-wide pipeline configuration. It is copied at construction.
type Config struct {
	MaxConcurrentDecisions int
	BatchSize              int
	ProcessingTimeout      time.Duration
	BackpressureThreshold  float64
	BatchInterval          time.Duration
	MetricsInterval        time.Duration
	WorkerPoolSize         int
	ShutdownTimeout        time.Duration
	ResultCacheSize        int
	ResultCacheTTL         time.Duration
	RequiredMarkers        []string
	Retry                  RetryPolicy
	CircuitBreaker         CircuitBreakerPolicy
	Health                 HealthPolicy
}

// AdmissionLimit is the queue length above which Submit is refused.
func (c Config) AdmissionLimit() float64 {
	return float64(c.MaxConcurrentDecisions) * c.BackpressureThreshold
}
