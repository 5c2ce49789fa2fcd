// Package queue implements the bounded FIFO intake buffer and its admission check.
package queue

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrRejected is wrapped by every error returned from Admit.
	ErrRejected = errors.New("decision rejected pre-queue")
	// ErrBackpressure signals the caller should shed load or try later.
	ErrBackpressure = errors.New("intake queue over backpressure threshold")
	// ErrClosed is returned once the queue stops admitting new work.
	ErrClosed = errors.New("intake queue closed")
)

// BackpressureError carries the depth observed when admission was refused.
type BackpressureError struct {
	Depth int
	Limit float64
}

func (e *BackpressureError) Error() string {
	return fmt.Sprintf("%v: %v (depth=%d limit=%.1f)", ErrRejected, ErrBackpressure, e.Depth, e.Limit)
}

func (e *BackpressureError) Is(target error) bool {
	return target == ErrBackpressure || target == ErrRejected
}

// Intake is a mutex-guarded FIFO. Admit applies backpressure; Requeue does not.
type Intake[T any] struct {
	mu     sync.Mutex
	items  []T
	limit  float64
	closed bool
}

// NewIntake builds a queue that refuses admission once its length exceeds limit.
func NewIntake[T any](limit float64) *Intake[T] {
	return &Intake[T]{limit: limit}
}

// Admit appends item unless the queue is closed or over the backpressure limit.
// It returns the depth after the append, or the depth that caused the refusal.
func (q *Intake[T]) Admit(item T) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	depth := len(q.items)
	if q.closed {
		return depth, fmt.Errorf("%w: %w", ErrRejected, ErrClosed)
	}
	if float64(depth) > q.limit {
		return depth, &BackpressureError{Depth: depth, Limit: q.limit}
	}
	q.items = append(q.items, item)
	return len(q.items), nil
}

// Requeue appends an already-admitted item to the tail. Retries are never refused,
// including after Close, so in-flight work can drain.
func (q *Intake[T]) Requeue(item T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return len(q.items)
}

// PopBatch atomically removes up to n items from the head.
func (q *Intake[T]) PopBatch(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.items) {
		n = len(q.items)
	}
	if n <= 0 {
		return nil
	}
	batch := make([]T, n)
	copy(batch, q.items[:n])

	var zero T
	for i := 0; i < n; i++ {
		q.items[i] = zero
	}
	q.items = q.items[n:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return batch
}

// Drain removes and returns everything still queued.
func (q *Intake[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *Intake[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops admission. It is idempotent.
func (q *Intake[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *Intake[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Limit returns the admission threshold.
func (q *Intake[T]) Limit() float64 {
	return q.limit
}
