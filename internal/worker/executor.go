// Package worker runs decisions through the validation gate and the executor,
// one attempt at a time, on a bounded pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/your-org/decision-pipeline/internal/logging"
	"github.com/your-org/decision-pipeline/internal/retry"
	"github.com/your-org/decision-pipeline/pkg/decision"
)

var ErrNoExecutor = errors.New("no executor for decision type")

// Resolver looks up the executor serving a decision type.
type Resolver interface {
	Resolve(decisionType string) (decision.ExecuteFunc, bool)
}

// Only serves every decision type with fn.
type Only decision.ExecuteFunc

func (fn Only) Resolve(string) (decision.ExecuteFunc, bool) {
	return decision.ExecuteFunc(fn), fn != nil
}

// Outcome is the result of one attempt. Decision carries the updated attempt count.
type Outcome struct {
	Decision  decision.Decision
	Result    decision.Result
	Err       error
	Executed  bool
	StartedAt time.Time
	Duration  time.Duration
}

// Executor performs a single attempt of a decision.
type Executor struct {
	resolver Resolver
	validate decision.ValidateFunc
	breaker  *retry.CircuitBreaker
	timeout  time.Duration
	tracer   oteltrace.Tracer
	logger   logr.Logger
	now      func() time.Time
	onOpen   func(decisionType string)
}

type ExecutorOption func(*Executor)

func WithValidator(fn decision.ValidateFunc) ExecutorOption {
	return func(e *Executor) {
		if fn != nil {
			e.validate = fn
		}
	}
}

func WithCircuitBreaker(cb *retry.CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.breaker = cb }
}

func WithTracer(t oteltrace.Tracer) ExecutorOption {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithCircuitOpenHook is called whenever a failure opens the breaker for a type.
func WithCircuitOpenHook(fn func(decisionType string)) ExecutorOption {
	return func(e *Executor) { e.onOpen = fn }
}

func WithLogger(l logr.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

func NewExecutor(resolver Resolver, timeout time.Duration, opts ...ExecutorOption) *Executor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	e := &Executor{
		resolver: resolver,
		validate: RequireFields(nil),
		timeout:  timeout,
		tracer:   otel.Tracer("decision-pipeline/worker"),
		logger:   logr.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithName("worker")
	return e
}

// Process runs one attempt. Validation failures return without touching the
// attempt counter; every other path counts as an execution.
func (e *Executor) Process(ctx context.Context, d decision.Decision) Outcome {
	started := e.now()
	out := Outcome{Decision: d, StartedAt: started}

	if err := safeValidate(e.validate, d); err != nil {
		if !errors.Is(err, retry.ErrValidation) {
			err = fmt.Errorf("%w: %v", retry.ErrValidation, err)
		}
		out.Err = err
		return out
	}

	out.Decision.Attempts++
	out.Executed = true
	attempt := out.Decision.Attempts

	ctx, span := e.tracer.Start(ctx, "decision.attempt", oteltrace.WithAttributes(
		attribute.String("decision.id", d.ID),
		attribute.String("decision.type", d.Type),
		attribute.String("decision.complexity", string(d.Tier())),
		attribute.Int("decision.attempt", attempt),
	))
	defer span.End()

	if !e.breaker.Allow(d.Type, started) {
		out.Err = retry.Retryable(fmt.Errorf("%w: %s", retry.ErrCircuitOpen, d.Type))
		out.Duration = e.now().Sub(started)
		span.SetStatus(codes.Error, out.Err.Error())
		return out
	}

	fn, ok := e.resolver.Resolve(d.Type)
	if !ok {
		out.Err = retry.NonRetryable(fmt.Errorf("%w: %s", ErrNoExecutor, d.Type))
		out.Duration = e.now().Sub(started)
		span.SetStatus(codes.Error, out.Err.Error())
		return out
	}

	res, err := e.run(ctx, fn, d.Clone())
	out.Duration = e.now().Sub(started)

	if err != nil {
		if e.breaker.RecordFailure(d.Type, e.now()) {
			e.logger.Info("circuit opened", "type", d.Type)
			if e.onOpen != nil {
				e.onOpen(d.Type)
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.V(logging.DEBUG).Info("attempt failed", "id", d.ID, "attempt", attempt, "err", err.Error())
		out.Err = err
		return out
	}

	e.breaker.RecordSuccess(d.Type)
	res.DecisionID = d.ID
	res.Success = true
	res.Attempts = attempt
	res.ProcessingTime = out.Duration
	res.CompletedAt = e.now()
	out.Result = res
	e.logger.V(logging.TRACE).Info("attempt succeeded", "id", d.ID, "attempt", attempt, "duration", out.Duration)
	return out
}

// run detaches from an executor that overruns its deadline. The executor is
// handed a cancelled context and its late result is dropped.
func (e *Executor) run(ctx context.Context, fn decision.ExecuteFunc, d decision.Decision) (decision.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type reply struct {
		res decision.Result
		err error
	}
	done := make(chan reply, 1)
	go func() {
		res, err := safeCall(fn, runCtx, d)
		done <- reply{res: res, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && runCtx.Err() != nil && ctx.Err() == nil {
			return decision.Result{}, retry.Retryable(fmt.Errorf("%w after %s", retry.ErrProcessingTimeout, e.timeout))
		}
		return r.res, r.err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return decision.Result{}, retry.Retryable(ctx.Err())
		}
		return decision.Result{}, retry.Retryable(fmt.Errorf("%w after %s", retry.ErrProcessingTimeout, e.timeout))
	}
}

func safeCall(fn decision.ExecuteFunc, ctx context.Context, d decision.Decision) (res decision.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = retry.NonRetryable(fmt.Errorf("%w: %v", retry.ErrExecutorPanic, r))
		}
	}()
	return fn(ctx, d)
}

func safeValidate(fn decision.ValidateFunc, d decision.Decision) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: validator panicked: %v", retry.ErrValidation, r)
		}
	}()
	return fn(d)
}
