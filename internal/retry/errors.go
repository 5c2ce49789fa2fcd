package retry

import (
	"errors"
	"fmt"
)

var (
	ErrProcessingTimeout = errors.New("decision processing timeout")
	ErrCircuitOpen       = errors.New("circuit breaker open")
	ErrExecutorPanic     = errors.New("executor panicked")
	ErrWorkerPanic       = errors.New("decision processing panicked")
	ErrValidation        = errors.New("decision failed validation")
	ErrRetriesExhausted  = errors.New("decision retries exhausted")
)

// DecisionError wraps an underlying error with retryability metadata.
type DecisionError struct {
	Cause     error
	Retryable bool
}

func (e DecisionError) Error() string {
	if e.Cause == nil {
		return "decision error"
	}
	return fmt.Sprintf("decision error: %v", e.Cause)
}

func (e DecisionError) Unwrap() error {
	return e.Cause
}

// NonRetryable marks an error as not eligible for retries.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return DecisionError{Cause: err, Retryable: false}
}

// Retryable marks an error as transient.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return DecisionError{Cause: err, Retryable: true}
}

// IsRetryable reports whether err should be retried. Validation failures never are;
// errors without a DecisionError wrapper are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) {
		return false
	}
	var de DecisionError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return true
}
