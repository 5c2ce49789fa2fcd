package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/your-org/decision-pipeline/internal/retry"
	"github.com/your-org/decision-pipeline/pkg/decision"
)

// HandleFunc consumes the outcome of one attempt. Dispatch waits for it to return.
type HandleFunc func(ctx context.Context, o Outcome)

// RecoverFunc terminates a decision whose outcome handler panicked.
type RecoverFunc func(ctx context.Context, d decision.Decision, err error)

// Pool fans a batch out over at most size concurrent attempts.
type Pool struct {
	size    int
	exec    *Executor
	handle  HandleFunc
	onPanic RecoverFunc
	active  atomic.Int64
}

type PoolOption func(*Pool)

// WithRecover sets the fallback for outcomes the handler could not finish.
func WithRecover(fn RecoverFunc) PoolOption {
	return func(p *Pool) { p.onPanic = fn }
}

func NewPool(size int, exec *Executor, handle HandleFunc, opts ...PoolOption) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{size: size, exec: exec, handle: handle}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dispatch processes every decision of the batch and returns once each has been
// handed to the outcome handler. A panic while processing one decision becomes
// a non-retryable outcome for that decision alone.
func (p *Pool) Dispatch(ctx context.Context, batch []decision.Decision) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.size)

	for _, d := range batch {
		wg.Add(1)
		go func(d decision.Decision) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			p.active.Add(1)
			defer p.active.Add(-1)

			p.run(ctx, d)
		}(d)
	}
	wg.Wait()
}

func (p *Pool) run(ctx context.Context, d decision.Decision) {
	o := p.process(ctx, d)
	if p.handle == nil {
		return
	}
	err := guard(func() { p.handle(ctx, o) })
	if err == nil || p.onPanic == nil {
		return
	}
	_ = guard(func() { p.onPanic(ctx, o.Decision, err) })
}

func (p *Pool) process(ctx context.Context, d decision.Decision) (o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.Attempts++
			o = Outcome{
				Decision: d,
				Err:      retry.NonRetryable(fmt.Errorf("%w: %v", retry.ErrWorkerPanic, r)),
				Executed: true,
			}
		}
	}()
	return p.exec.Process(ctx, d)
}

func guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = retry.NonRetryable(fmt.Errorf("%w: %v", retry.ErrWorkerPanic, r))
		}
	}()
	fn()
	return nil
}

// Active is the number of attempts currently executing.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

func (p *Pool) Size() int {
	return p.size
}
