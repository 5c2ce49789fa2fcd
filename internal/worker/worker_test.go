package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"

	"github.com/your-org/decision-pipeline/internal/retry"
	"github.com/your-org/decision-pipeline/pkg/decision"
)

func validDecision(id string) decision.Decision {
	return decision.Decision{ID: id, Type: "credit", Priority: decision.PriorityNormal, CustomerID: "cust_1"}
}

func TestProcessSuccessCountsAttempt(t *testing.T) {
	exec := NewExecutor(Only(func(_ context.Context, d decision.Decision) (decision.Result, error) {
		return decision.Result{Outcome: "approve", Confidence: 0.9}, nil
	}), time.Second, WithLogger(testr.New(t)))

	o := exec.Process(context.Background(), validDecision("d1"))
	if o.Err != nil {
		t.Fatalf("unexpected error: %v", o.Err)
	}
	if !o.Executed || o.Decision.Attempts != 1 {
		t.Fatalf("expected one executed attempt, got %+v", o)
	}
	if !o.Result.Success || o.Result.DecisionID != "d1" || o.Result.Attempts != 1 {
		t.Fatalf("unexpected result: %+v", o.Result)
	}
}

func TestProcessValidationDoesNotConsumeAttempt(t *testing.T) {
	called := false
	exec := NewExecutor(Only(func(context.Context, decision.Decision) (decision.Result, error) {
		called = true
		return decision.Result{}, nil
	}), time.Second, WithValidator(RequireFields([]string{"kyc"})))

	d := validDecision("d1")
	o := exec.Process(context.Background(), d)
	if !errors.Is(o.Err, retry.ErrValidation) {
		t.Fatalf("expected validation error, got %v", o.Err)
	}
	if called || o.Executed || o.Decision.Attempts != 0 {
		t.Fatalf("validation failure must not execute: called=%v outcome=%+v", called, o)
	}

	d.Compliance = map[string]bool{"kyc": true}
	if o := exec.Process(context.Background(), d); o.Err != nil {
		t.Fatalf("expected compliant decision to pass, got %v", o.Err)
	}
}

func TestRequireFieldsListsMissing(t *testing.T) {
	err := RequireFields(nil)(decision.Decision{ID: "x"})
	if !errors.Is(err, retry.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	want := "decision failed validation: missing required fields: type, priority, customerId"
	if err.Error() != want {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestProcessTimeoutIsRetryable(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	exec := NewExecutor(Only(func(_ context.Context, _ decision.Decision) (decision.Result, error) {
		<-release
		return decision.Result{}, nil
	}), 20*time.Millisecond)

	started := time.Now()
	o := exec.Process(context.Background(), validDecision("slow"))
	if !errors.Is(o.Err, retry.ErrProcessingTimeout) {
		t.Fatalf("expected timeout, got %v", o.Err)
	}
	if !retry.IsRetryable(o.Err) {
		t.Fatal("timeout must be retryable")
	}
	if time.Since(started) > time.Second {
		t.Fatal("executor was not detached after timeout")
	}
}

func TestProcessPanicIsNonRetryable(t *testing.T) {
	exec := NewExecutor(Only(func(context.Context, decision.Decision) (decision.Result, error) {
		panic("boom")
	}), time.Second)

	o := exec.Process(context.Background(), validDecision("p"))
	if !errors.Is(o.Err, retry.ErrExecutorPanic) {
		t.Fatalf("expected panic error, got %v", o.Err)
	}
	if retry.IsRetryable(o.Err) {
		t.Fatal("panic must not be retryable")
	}
}

func TestProcessCircuitOpenSkipsExecutor(t *testing.T) {
	var calls atomic.Int32
	cb := retry.NewCircuitBreaker(decision.CircuitBreakerPolicy{FailureThreshold: 2, ResetTimeout: time.Hour})
	exec := NewExecutor(Only(func(context.Context, decision.Decision) (decision.Result, error) {
		calls.Add(1)
		return decision.Result{}, errors.New("downstream unavailable")
	}), time.Second, WithCircuitBreaker(cb))

	for i := 0; i < 2; i++ {
		exec.Process(context.Background(), validDecision("c"))
	}
	o := exec.Process(context.Background(), validDecision("c"))
	if !errors.Is(o.Err, retry.ErrCircuitOpen) || !retry.IsRetryable(o.Err) {
		t.Fatalf("expected retryable circuit open error, got %v", o.Err)
	}
	if calls.Load() != 2 {
		t.Fatalf("executor called %d times, expected 2", calls.Load())
	}
}

func TestProcessUnknownTypeIsNonRetryable(t *testing.T) {
	exec := NewExecutor(Only(nil), time.Second)
	o := exec.Process(context.Background(), validDecision("u"))
	if !errors.Is(o.Err, ErrNoExecutor) || retry.IsRetryable(o.Err) {
		t.Fatalf("expected non-retryable ErrNoExecutor, got %v", o.Err)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	exec := NewExecutor(Only(func(context.Context, decision.Decision) (decision.Result, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return decision.Result{}, nil
	}), time.Second)

	var mu sync.Mutex
	seen := map[string]bool{}
	pool := NewPool(3, exec, func(_ context.Context, o Outcome) {
		mu.Lock()
		seen[o.Decision.ID] = true
		mu.Unlock()
	})

	batch := make([]decision.Decision, 0, 12)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		batch = append(batch, validDecision(id))
	}
	pool.Dispatch(context.Background(), batch)

	if len(seen) != len(batch) {
		t.Fatalf("expected %d outcomes handled before Dispatch returned, got %d", len(batch), len(seen))
	}
	if peak.Load() > 3 {
		t.Fatalf("pool exceeded size: peak=%d", peak.Load())
	}
	if pool.Active() != 0 {
		t.Fatalf("expected no active attempts, got %d", pool.Active())
	}
}

func TestProcessValidatorPanicRejects(t *testing.T) {
	exec := NewExecutor(Only(func(context.Context, decision.Decision) (decision.Result, error) {
		return decision.Result{}, nil
	}), time.Second, WithValidator(func(decision.Decision) error { panic("bad validator") }))

	o := exec.Process(context.Background(), validDecision("v1"))
	if !errors.Is(o.Err, retry.ErrValidation) {
		t.Fatalf("expected validation error, got %v", o.Err)
	}
	if o.Executed {
		t.Fatalf("validator panic must not count as an attempt: %+v", o)
	}
}

func TestDispatchContainsHandlerPanic(t *testing.T) {
	exec := NewExecutor(Only(func(context.Context, decision.Decision) (decision.Result, error) {
		return decision.Result{}, nil
	}), time.Second)

	var mu sync.Mutex
	recovered := map[string]error{}
	pool := NewPool(2, exec, func(_ context.Context, o Outcome) {
		if o.Decision.ID == "boom" {
			panic("handler blew up")
		}
	}, WithRecover(func(_ context.Context, d decision.Decision, err error) {
		mu.Lock()
		recovered[d.ID] = err
		mu.Unlock()
	}))

	pool.Dispatch(context.Background(), []decision.Decision{validDecision("ok"), validDecision("boom")})

	if len(recovered) != 1 {
		t.Fatalf("expected exactly one recovered decision, got %v", recovered)
	}
	err := recovered["boom"]
	if !errors.Is(err, retry.ErrWorkerPanic) || retry.IsRetryable(err) {
		t.Fatalf("expected non-retryable worker panic, got %v", err)
	}
}

func TestDispatchSurvivesPanickingRecover(t *testing.T) {
	exec := NewExecutor(Only(func(context.Context, decision.Decision) (decision.Result, error) {
		return decision.Result{}, nil
	}), time.Second)
	pool := NewPool(1, exec,
		func(context.Context, Outcome) { panic("handler") },
		WithRecover(func(context.Context, decision.Decision, error) { panic("recover") }),
	)

	pool.Dispatch(context.Background(), []decision.Decision{validDecision("x")})
	if pool.Active() != 0 {
		t.Fatalf("expected no active attempts, got %d", pool.Active())
	}
}
