// Package pipeline wires the intake queue, batch scheduler, worker pool,
// outcome router and metrics collector into one backpressured component.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/your-org/decision-pipeline/internal/audit"
	"github.com/your-org/decision-pipeline/internal/cache"
	"github.com/your-org/decision-pipeline/internal/deadletter"
	"github.com/your-org/decision-pipeline/internal/events"
	"github.com/your-org/decision-pipeline/internal/executor"
	"github.com/your-org/decision-pipeline/internal/logging"
	"github.com/your-org/decision-pipeline/internal/metrics"
	"github.com/your-org/decision-pipeline/internal/queue"
	"github.com/your-org/decision-pipeline/internal/retry"
	"github.com/your-org/decision-pipeline/internal/router"
	"github.com/your-org/decision-pipeline/internal/scheduler"
	"github.com/your-org/decision-pipeline/internal/worker"
	"github.com/your-org/decision-pipeline/pkg/decision"
)

var (
	// ErrRejected is wrapped by every synchronous Submit refusal.
	ErrRejected = queue.ErrRejected
	// ErrBackpressure means the intake queue is over its admission limit.
	ErrBackpressure = queue.ErrBackpressure
	// ErrPipelineClosed is returned by Submit once Shutdown has begun.
	ErrPipelineClosed = errors.New("pipeline is not accepting decisions")
	// ErrDuplicateID is returned when a decision with the same ID is still in flight.
	ErrDuplicateID = errors.New("decision id already in flight")
	// ErrShutdown rejects decisions still pending when shutdown gives up waiting.
	ErrShutdown = errors.New("pipeline shut down before decision completed")
)

// QueueStatus is a point-in-time view of the pipeline's work in progress.
type QueueStatus struct {
	Depth          int     `json:"depth"`
	AdmissionLimit float64 `json:"admissionLimit"`
	Capacity       int     `json:"capacity"`
	Pending        int     `json:"pending"`
	InFlight       int     `json:"inFlight"`
	RetryScheduled int     `json:"retryScheduled"`
	BatchInFlight  bool    `json:"batchInFlight"`
	Accepting      bool    `json:"accepting"`
}

type entry struct {
	future    *Future
	decision  decision.Decision
	submitted time.Time
}

// Pipeline is the batch decision pipeline. Build it with New and stop it with Shutdown.
type Pipeline struct {
	cfg    decision.Config
	logger logr.Logger

	queue     *queue.Intake[decision.Decision]
	sched     *scheduler.Scheduler[decision.Decision]
	pool      *worker.Pool
	router    *router.Router
	collector *metrics.Collector
	recorder  metrics.Recorder
	hub       *events.Hub
	results   *cache.Results
	dlq       deadletter.Store
	audit     *audit.Logger

	mu         sync.Mutex
	pending    map[string]*entry
	finalizing int
	closing    bool
	drained    chan struct{}
	drainMu    sync.Once

	healthy atomic.Bool

	runCtx    context.Context
	cancelRun context.CancelFunc

	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds the pipeline and starts its scheduler and metrics sampler.
func New(cfg decision.Config, opts ...Option) (*Pipeline, error) {
	cfg = cfg.WithDefaults()
	if _, err := decision.ParseBackoff(string(cfg.Retry.Backoff)); err != nil {
		return nil, err
	}

	o := options{
		logger:   logr.Discard(),
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.resolver == nil {
		reg := executor.NewRegistry()
		reg.SetFallback(executor.NewSimulated(executor.SimulatedOptions{}).Execute)
		o.resolver = reg
	}
	if o.deadLetters == nil {
		o.deadLetters = deadletter.NewMemoryStore()
	}
	validator := o.validator
	if validator == nil {
		validator = worker.RequireFields(cfg.RequiredMarkers)
	}

	p := &Pipeline{
		cfg:      cfg,
		logger:   o.logger.WithName("pipeline"),
		queue:    queue.NewIntake[decision.Decision](cfg.AdmissionLimit()),
		recorder: o.recorder,
		hub:      events.NewHub(),
		results:  cache.NewResults(cfg.ResultCacheSize, cfg.ResultCacheTTL),
		dlq:      o.deadLetters,
		audit:    o.audit,
		pending:  make(map[string]*entry),
		drained:  make(chan struct{}),
	}
	p.healthy.Store(true)

	execOpts := []worker.ExecutorOption{
		worker.WithValidator(validator),
		worker.WithCircuitBreaker(retry.NewCircuitBreaker(cfg.CircuitBreaker)),
		worker.WithLogger(o.logger),
		worker.WithCircuitOpenHook(p.recorder.ObserveCircuitOpen),
	}
	if o.tracer != nil {
		execOpts = append(execOpts, worker.WithTracer(o.tracer))
	}
	exec := worker.NewExecutor(o.resolver, cfg.ProcessingTimeout, execOpts...)

	p.router = router.New(cfg.Retry, p.queue, p.dlq, p, router.WithLogger(o.logger))
	p.pool = worker.NewPool(cfg.WorkerPoolSize, exec, p.handleOutcome, worker.WithRecover(p.recoverOutcome))
	p.sched = scheduler.New[decision.Decision](p.queue, p.dispatch, cfg.BatchSize, cfg.BatchInterval, o.logger)
	p.collector = metrics.NewCollector(p.queue.Len, cfg.MetricsInterval,
		metrics.WithSampleHook(p.onSample),
		metrics.WithCollectorLogger(o.logger),
	)

	p.runCtx, p.cancelRun = context.WithCancel(context.Background())
	p.sched.Start(p.runCtx)
	p.collector.Start(p.runCtx)

	p.logger.V(logging.DEFAULT).Info("pipeline started",
		"maxConcurrent", cfg.MaxConcurrentDecisions,
		"batchSize", cfg.BatchSize,
		"workers", cfg.WorkerPoolSize,
		"admissionLimit", cfg.AdmissionLimit(),
		"retryAttempts", cfg.Retry.MaxAttempts,
	)
	return p, nil
}

// Config returns the configuration the pipeline runs with.
func (p *Pipeline) Config() decision.Config {
	return p.cfg
}

// Submit admits d or refuses it synchronously. Refusals wrap ErrRejected;
// over-limit refusals are also ErrBackpressure and carry the queue depth.
func (p *Pipeline) Submit(d decision.Decision) (*Future, error) {
	d = d.Clone()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.SubmittedAt = time.Now().UTC()
	d.Attempts = 0

	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		p.recorder.ObserveRejected("closed")
		return nil, fmt.Errorf("%w: %w", ErrRejected, ErrPipelineClosed)
	}
	if _, dup := p.pending[d.ID]; dup {
		p.mu.Unlock()
		p.recorder.ObserveRejected("duplicate")
		return nil, fmt.Errorf("%w: %w: %s", ErrRejected, ErrDuplicateID, d.ID)
	}
	depth, err := p.queue.Admit(d)
	if err != nil {
		p.mu.Unlock()
		var bp *queue.BackpressureError
		if errors.As(err, &bp) {
			p.recorder.ObserveRejected("backpressure")
			p.hub.Publish(events.Event{Kind: events.KindBackpressure, DecisionID: d.ID, QueueDepth: bp.Depth})
			p.logger.V(logging.VERBOSE).Info("backpressure", "queueDepth", bp.Depth, "limit", bp.Limit)
		} else {
			p.recorder.ObserveRejected("closed")
		}
		return nil, err
	}
	f := newFuture(d.ID)
	p.pending[d.ID] = &entry{future: f, decision: d, submitted: d.SubmittedAt}
	p.mu.Unlock()

	p.recorder.ObserveSubmitted()
	p.hub.Publish(events.Event{Kind: events.KindDecisionQueued, DecisionID: d.ID, QueueDepth: depth})
	p.logger.V(logging.DEBUG).Info("decision queued", "id", d.ID, "type", d.Type, "queueDepth", depth)
	return f, nil
}

// GetQueueStatus reports queue and in-flight counts.
func (p *Pipeline) GetQueueStatus() QueueStatus {
	p.mu.Lock()
	pending := len(p.pending)
	accepting := !p.closing
	p.mu.Unlock()

	return QueueStatus{
		Depth:          p.queue.Len(),
		AdmissionLimit: p.cfg.AdmissionLimit(),
		Capacity:       p.cfg.MaxConcurrentDecisions,
		Pending:        pending,
		InFlight:       p.pool.Active(),
		RetryScheduled: p.router.Pending(),
		BatchInFlight:  p.sched.Busy(),
		Accepting:      accepting,
	}
}

// GetMetrics returns the current metrics snapshot.
func (p *Pipeline) GetMetrics() metrics.Snapshot {
	return p.collector.Snapshot()
}

// IsHealthy derives health from the current error rate and queue depth.
func (p *Pipeline) IsHealthy() bool {
	return metrics.Healthy(p.collector.Snapshot(), p.cfg.Health, p.cfg.MaxConcurrentDecisions)
}

// Lookup returns the cached terminal outcome of a decision.
func (p *Pipeline) Lookup(id string) (cache.Record, bool) {
	return p.results.Get(id)
}

// DeadLetters lists dead-lettered entries, oldest first.
func (p *Pipeline) DeadLetters(ctx context.Context, limit int) ([]deadletter.Entry, error) {
	return p.dlq.List(ctx, limit)
}

// Subscribe streams pipeline notifications until the returned func is called.
func (p *Pipeline) Subscribe(buffer int) (<-chan events.Event, func()) {
	return p.hub.Subscribe(buffer)
}

// Shutdown stops admission and waits for every admitted decision to turn
// terminal, bounded by ctx and the configured shutdown timeout. Decisions
// still pending after that are rejected with ErrShutdown. Later calls return
// the first call's result.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		p.shutdownErr = p.shutdown(ctx)
	})
	return p.shutdownErr
}

func (p *Pipeline) shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closing = true
	remaining := len(p.pending)
	if remaining == 0 && p.finalizing == 0 {
		p.closeDrained()
	}
	p.mu.Unlock()
	p.queue.Close()

	p.logger.Info("shutdown started", "pending", remaining)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ShutdownTimeout)
	defer cancel()

	var err error
	if !p.waitDrained(ctx) {
		abandoned := p.abandonPending()
		p.router.Stop()
		p.queue.Drain()
		err = fmt.Errorf("%w: %d decisions abandoned: %w", ErrShutdown, abandoned, ctx.Err())
		p.logger.Error(err, "shutdown deadline reached")
	}

	p.router.Stop()
	p.cancelRun()
	p.sched.Stop()
	p.collector.Stop()
	p.queue.Drain()

	final := p.collector.Sample()
	p.recorder.ObserveSnapshot(final)
	p.hub.Publish(events.Event{Kind: events.KindMetrics, Metrics: &final})
	p.hub.Close()

	p.logger.Info("shutdown complete", "totalProcessed", final.TotalProcessed, "totalErrors", final.TotalErrors)
	return err
}

// waitDrained reports whether every pending decision turned terminal before
// ctx ended. An already drained pipeline wins over an expired ctx.
func (p *Pipeline) waitDrained(ctx context.Context) bool {
	select {
	case <-p.drained:
		return true
	default:
	}
	select {
	case <-p.drained:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pipeline) abandonPending() int {
	p.mu.Lock()
	ids := make([]string, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	n := 0
	for _, id := range ids {
		if p.finalize(id, decision.Result{}, ErrShutdown, cache.StatusRejected, metrics.OutcomeShutdown) {
			n++
		}
	}
	return n
}

func (p *Pipeline) closeDrained() {
	p.drainMu.Do(func() { close(p.drained) })
}

// dispatch hands the batch to the pool, skipping decisions that turned
// terminal while queued.
func (p *Pipeline) dispatch(ctx context.Context, batch []decision.Decision) {
	p.mu.Lock()
	live := batch[:0]
	for _, d := range batch {
		if _, ok := p.pending[d.ID]; ok {
			live = append(live, d)
		}
	}
	p.mu.Unlock()
	if len(live) > 0 {
		p.pool.Dispatch(ctx, live)
	}
}

func (p *Pipeline) handleOutcome(ctx context.Context, o worker.Outcome) {
	if o.Executed {
		status := "success"
		if o.Err != nil {
			status = "error"
		}
		p.collector.ObserveLatency(o.Duration)
		p.recorder.ObserveAttempt(o.Decision.Type, status, o.Duration)
	}
	p.router.Route(ctx, o)
}

// recoverOutcome rejects a decision whose outcome handling panicked. The
// dead-letter write may be the part that failed, so nothing is retried.
func (p *Pipeline) recoverOutcome(_ context.Context, d decision.Decision, err error) {
	p.logger.Error(err, "outcome handling panicked", "id", d.ID)
	p.Reject(d, err, false)
}

// Resolve implements router.Sink.
func (p *Pipeline) Resolve(d decision.Decision, res decision.Result) {
	p.finalize(d.ID, res, nil, cache.StatusResolved, metrics.OutcomeResolved)
}

// Reject implements router.Sink.
func (p *Pipeline) Reject(d decision.Decision, err error, deadLettered bool) {
	status, outcome := cache.StatusRejected, metrics.OutcomeRejected
	if deadLettered {
		status, outcome = cache.StatusDeadLettered, metrics.OutcomeDeadLettered
	}
	if p.finalize(d.ID, decision.Result{DecisionID: d.ID, Attempts: d.Attempts}, err, status, outcome) && deadLettered {
		p.hub.Publish(events.Event{Kind: events.KindDeadLettered, DecisionID: d.ID, QueueDepth: p.queue.Len(), Error: err.Error()})
	}
}

// RetryScheduled implements router.Sink.
func (p *Pipeline) RetryScheduled(d decision.Decision, _ error, _ time.Duration) {
	p.recorder.ObserveRetry(d.Type)
	p.mu.Lock()
	if e, ok := p.pending[d.ID]; ok {
		e.decision.Attempts = d.Attempts
	}
	p.mu.Unlock()
}

// finalize moves a pending decision to its terminal state. Only the first call
// per decision has any effect. Counters, cache and audit are written before the
// future completes, so a caller returning from Wait sees consistent metrics. The
// future completes even if one of those writes panics.
func (p *Pipeline) finalize(id string, res decision.Result, err error, status cache.Status, outcome string) bool {
	p.mu.Lock()
	e, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
		p.finalizing++
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	defer p.finalized()
	defer e.future.complete(res, err)

	if err == nil {
		p.collector.RecordSuccess()
	} else {
		p.collector.RecordError()
	}
	p.recorder.ObserveTerminal(e.decision.Type, outcome)

	attempts := res.Attempts
	if attempts == 0 {
		attempts = e.decision.Attempts
	}
	rec := cache.Record{
		DecisionID:  id,
		Type:        e.decision.Type,
		Status:      status,
		Attempts:    attempts,
		CompletedAt: time.Now().UTC(),
	}
	if err == nil {
		r := res
		rec.Result = &r
	} else {
		rec.Error = err.Error()
	}
	p.results.Put(rec)

	if aErr := p.audit.Record(audit.Event{
		DecisionID:   id,
		DecisionType: e.decision.Type,
		CustomerID:   e.decision.CustomerID,
		Status:       string(status),
		Attempts:     attempts,
		DurationMs:   time.Since(e.submitted).Milliseconds(),
	}, err); aErr != nil {
		p.logger.Error(aErr, "audit record failed", "id", id)
	}
	return true
}

func (p *Pipeline) finalized() {
	p.mu.Lock()
	p.finalizing--
	if p.closing && len(p.pending) == 0 && p.finalizing == 0 {
		p.closeDrained()
	}
	p.mu.Unlock()
}

func (p *Pipeline) onSample(s metrics.Snapshot) {
	p.recorder.ObserveSnapshot(s)
	p.hub.Publish(events.Event{Kind: events.KindMetrics, QueueDepth: s.QueueDepth, Metrics: &s})

	healthy := metrics.Healthy(s, p.cfg.Health, p.cfg.MaxConcurrentDecisions)
	if p.healthy.Swap(healthy) && !healthy {
		p.logger.Info("pipeline unhealthy", "errorRate", s.ErrorRate, "queueDepth", s.QueueDepth)
		p.hub.Publish(events.Event{
			Kind:       events.KindHealthIssue,
			QueueDepth: s.QueueDepth,
			Metrics:    &s,
			Error:      fmt.Sprintf("error rate %.3f, queue depth %d", s.ErrorRate, s.QueueDepth),
		})
	}
}
