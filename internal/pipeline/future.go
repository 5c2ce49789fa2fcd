package pipeline

import (
	"context"
	"sync"

	"github.com/your-org/decision-pipeline/pkg/decision"
)

// Future is resolved or rejected exactly once when its decision turns terminal.
type Future struct {
	id   string
	done chan struct{}
	once sync.Once
	res  decision.Result
	err  error
}

func newFuture(id string) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// ID is the decision ID, generated at submission when the caller left it empty.
func (f *Future) ID() string {
	return f.id
}

// Done is closed once the outcome is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the decision is terminal or ctx ends. A ctx error does not
// cancel the decision.
func (f *Future) Wait(ctx context.Context) (decision.Result, error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return decision.Result{}, ctx.Err()
	}
}

// Peek returns the outcome without blocking; ok is false while pending.
func (f *Future) Peek() (res decision.Result, ok bool, err error) {
	select {
	case <-f.done:
		return f.res, true, f.err
	default:
		return decision.Result{}, false, nil
	}
}

func (f *Future) complete(res decision.Result, err error) bool {
	completed := false
	f.once.Do(func() {
		f.res = res
		f.err = err
		close(f.done)
		completed = true
	})
	return completed
}
