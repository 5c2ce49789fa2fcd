// Package scheduler drains the intake queue in batches on a fixed tick.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/your-org/decision-pipeline/internal/logging"
)

// Source is the queue side the scheduler pulls from.
type Source[T any] interface {
	PopBatch(n int) []T
}

// DispatchFunc processes one batch and returns once every item reached a
// terminal-for-this-attempt state.
type DispatchFunc[T any] func(ctx context.Context, batch []T)

// Stats are cumulative scheduler counters.
type Stats struct {
	Batches      int64
	Dispatched   int64
	SkippedTicks int64
	Panics       int64
}

// Scheduler runs a batch drain on every tick. A tick that finds the previous
// batch still in flight is skipped.
type Scheduler[T any] struct {
	source    Source[T]
	dispatch  DispatchFunc[T]
	batchSize int
	interval  time.Duration
	logger    logr.Logger

	busy     atomic.Bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  atomic.Bool
	stopped  atomic.Bool

	batches    atomic.Int64
	dispatched atomic.Int64
	skipped    atomic.Int64
	panics     atomic.Int64
}

func New[T any](source Source[T], dispatch DispatchFunc[T], batchSize int, interval time.Duration, logger logr.Logger) *Scheduler[T] {
	if batchSize <= 0 {
		batchSize = 1
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Scheduler[T]{
		source:    source,
		dispatch:  dispatch,
		batchSize: batchSize,
		interval:  interval,
		logger:    logger.WithName("scheduler"),
		stopChan:  make(chan struct{}),
	}
}

// Start launches the tick loop. Each tick drains on its own goroutine so the
// busy flag, not the ticker, is what prevents overlapping batches.
func (s *Scheduler[T]) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					s.Tick(ctx)
				}()
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight batch to finish.
func (s *Scheduler[T]) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.stopChan)
	s.wg.Wait()
}

// Tick performs one drain. It returns the number of items dispatched, or -1 when
// the tick was skipped because a batch was already in flight.
func (s *Scheduler[T]) Tick(ctx context.Context) (n int) {
	if !s.busy.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.V(logging.TRACE).Info("tick skipped, batch in flight")
		return -1
	}
	defer s.busy.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			s.logger.Error(fmt.Errorf("%v", r), "batch drain panicked")
		}
	}()

	batch := s.source.PopBatch(s.batchSize)
	if len(batch) == 0 {
		return 0
	}
	s.batches.Add(1)
	s.dispatched.Add(int64(len(batch)))
	s.logger.V(logging.DEBUG).Info("dispatching batch", "size", len(batch))

	n = len(batch)
	s.dispatch(ctx, batch)
	return n
}

// Busy reports whether a batch is currently in flight.
func (s *Scheduler[T]) Busy() bool {
	return s.busy.Load()
}

func (s *Scheduler[T]) Stats() Stats {
	return Stats{
		Batches:      s.batches.Load(),
		Dispatched:   s.dispatched.Load(),
		SkippedTicks: s.skipped.Load(),
		Panics:       s.panics.Load(),
	}
}
