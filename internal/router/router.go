// Package router classifies attempt outcomes and moves decisions to their next
// state: resolved, retry-scheduled, dead-lettered or rejected.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/your-org/decision-pipeline/internal/deadletter"
	"github.com/your-org/decision-pipeline/internal/logging"
	"github.com/your-org/decision-pipeline/internal/retry"
	"github.com/your-org/decision-pipeline/internal/worker"
	"github.com/your-org/decision-pipeline/pkg/decision"
)

// Action is the routing verdict for one outcome.
type Action int

const (
	ActionResolve Action = iota
	ActionRetry
	ActionDeadLetter
	ActionReject
)

func (a Action) String() string {
	switch a {
	case ActionResolve:
		return "resolve"
	case ActionRetry:
		return "retry"
	case ActionDeadLetter:
		return "dead_letter"
	case ActionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Classify maps an outcome to an action. Attempts on the outcome's decision
// already include the attempt that produced it.
func Classify(o worker.Outcome, maxAttempts int) Action {
	switch {
	case o.Err == nil:
		return ActionResolve
	case errors.Is(o.Err, retry.ErrValidation):
		return ActionReject
	case !retry.IsRetryable(o.Err):
		return ActionDeadLetter
	case o.Decision.Attempts >= maxAttempts:
		return ActionDeadLetter
	default:
		return ActionRetry
	}
}

// Requeuer re-admits a decision without backpressure checks.
type Requeuer interface {
	Requeue(d decision.Decision) int
}

// Sink receives terminal transitions and retry notices.
type Sink interface {
	Resolve(d decision.Decision, res decision.Result)
	Reject(d decision.Decision, err error, deadLettered bool)
	RetryScheduled(d decision.Decision, err error, delay time.Duration)
}

// Router applies the retry policy to attempt outcomes.
type Router struct {
	policy      decision.RetryPolicy
	queue       Requeuer
	deadLetters deadletter.Sink
	sink        Sink
	logger      logr.Logger
	now         func() time.Time

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

type Option func(*Router)

func WithLogger(l logr.Logger) Option {
	return func(r *Router) { r.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

func New(policy decision.RetryPolicy, queue Requeuer, deadLetters deadletter.Sink, sink Sink, opts ...Option) *Router {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Backoff == "" {
		policy.Backoff = decision.BackoffLinear
	}
	r := &Router{
		policy:      policy,
		queue:       queue,
		deadLetters: deadLetters,
		sink:        sink,
		logger:      logr.Discard(),
		now:         time.Now,
		timers:      make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithName("router")
	return r
}

// Route applies the action for o and returns it. Dead-letter writes complete
// before the sink sees the rejection.
func (r *Router) Route(ctx context.Context, o worker.Outcome) Action {
	d := o.Decision
	action := Classify(o, r.policy.MaxAttempts)

	switch action {
	case ActionResolve:
		r.sink.Resolve(d, o.Result)

	case ActionReject:
		r.logger.V(logging.VERBOSE).Info("decision rejected", "id", d.ID, "err", o.Err.Error())
		r.sink.Reject(d, o.Err, false)

	case ActionDeadLetter:
		reason := deadletter.ReasonNonRetryable
		err := o.Err
		if retry.IsRetryable(o.Err) {
			reason = deadletter.ReasonRetriesExhausted
			err = fmt.Errorf("%w after %d attempts: %w", retry.ErrRetriesExhausted, d.Attempts, o.Err)
		}
		if r.deadLetters != nil {
			if dlErr := r.deadLetters.Add(ctx, deadletter.NewEntry(d, reason, o.Err, r.now())); dlErr != nil {
				r.logger.Error(dlErr, "dead-letter write failed", "id", d.ID)
			}
		}
		r.logger.Info("decision dead-lettered", "id", d.ID, "attempts", d.Attempts, "reason", reason)
		r.sink.Reject(d, err, true)

	case ActionRetry:
		delay := retry.BackoffDuration(r.policy.Backoff, r.policy.BaseDelay, d.Attempts)
		r.logger.V(logging.DEBUG).Info("retry scheduled", "id", d.ID, "attempts", d.Attempts, "delay", delay)
		r.sink.RetryScheduled(d, o.Err, delay)
		r.scheduleRetry(d, delay)
	}
	return action
}

func (r *Router) scheduleRetry(d decision.Decision, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.timers[d.ID] = time.AfterFunc(delay, func() {
		r.mu.Lock()
		if r.stopped {
			r.mu.Unlock()
			return
		}
		delete(r.timers, d.ID)
		r.mu.Unlock()
		r.queue.Requeue(d)
	})
}

// Pending is the number of decisions waiting on a retry timer.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Stop cancels outstanding retry timers and reports how many it cancelled.
// Later retries are dropped.
func (r *Router) Stop() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	cancelled := 0
	for _, t := range r.timers {
		if t.Stop() {
			cancelled++
		}
	}
	r.timers = map[string]*time.Timer{}
	return cancelled
}
