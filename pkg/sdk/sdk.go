// Package sdk embeds the decision pipeline in another Go program.
package sdk

import (
	"context"

	"github.com/go-logr/logr"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/your-org/decision-pipeline/internal/cache"
	"github.com/your-org/decision-pipeline/internal/events"
	"github.com/your-org/decision-pipeline/internal/executor"
	"github.com/your-org/decision-pipeline/internal/metrics"
	"github.com/your-org/decision-pipeline/internal/pipeline"
	"github.com/your-org/decision-pipeline/pkg/decision"
)

type (
	Decision     = decision.Decision
	Result       = decision.Result
	Config       = decision.Config
	ExecuteFunc  = decision.ExecuteFunc
	ValidateFunc = decision.ValidateFunc
	Future       = pipeline.Future
	QueueStatus  = pipeline.QueueStatus
	Metrics      = metrics.Snapshot
	Event        = events.Event
	Record       = cache.Record
)

var (
	ErrRejected       = pipeline.ErrRejected
	ErrBackpressure   = pipeline.ErrBackpressure
	ErrPipelineClosed = pipeline.ErrPipelineClosed
	ErrDuplicateID    = pipeline.ErrDuplicateID
	ErrShutdown       = pipeline.ErrShutdown
)

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return decision.DefaultConfig()
}

type settings struct {
	logger    logr.Logger
	fallback  ExecuteFunc
	validator ValidateFunc
	tracer    oteltrace.Tracer
}

type Option func(*settings)

func WithLogger(l logr.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithDefaultExecutor serves every decision type without a registered executor.
// The default is the simulated executor.
func WithDefaultExecutor(fn ExecuteFunc) Option {
	return func(s *settings) { s.fallback = fn }
}

func WithValidator(fn ValidateFunc) Option {
	return func(s *settings) { s.validator = fn }
}

func WithTracer(t oteltrace.Tracer) Option {
	return func(s *settings) { s.tracer = t }
}

// Pipeline is an embedded, running decision pipeline.
type Pipeline struct {
	p        *pipeline.Pipeline
	registry *executor.Registry
}

// New starts a pipeline. Call Shutdown to stop it.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	s := settings{logger: logr.Discard()}
	for _, opt := range opts {
		opt(&s)
	}

	reg := executor.NewRegistry()
	if s.fallback != nil {
		reg.SetFallback(s.fallback)
	} else {
		reg.SetFallback(executor.NewSimulated(executor.SimulatedOptions{}).Execute)
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithLogger(s.logger),
		pipeline.WithResolver(reg),
	}
	if s.validator != nil {
		pipeOpts = append(pipeOpts, pipeline.WithValidator(s.validator))
	}
	if s.tracer != nil {
		pipeOpts = append(pipeOpts, pipeline.WithTracer(s.tracer))
	}
	p, err := pipeline.New(cfg, pipeOpts...)
	if err != nil {
		return nil, err
	}
	return &Pipeline{p: p, registry: reg}, nil
}

// Register routes decisions of decisionType to fn. It may be called while running.
func (p *Pipeline) Register(decisionType string, fn ExecuteFunc) error {
	return p.registry.Register(decisionType, fn)
}

func (p *Pipeline) Submit(d Decision) (*Future, error) {
	return p.p.Submit(d)
}

// SubmitAndWait submits d and blocks until it is terminal or ctx ends.
func (p *Pipeline) SubmitAndWait(ctx context.Context, d Decision) (Result, error) {
	f, err := p.p.Submit(d)
	if err != nil {
		return Result{}, err
	}
	return f.Wait(ctx)
}

func (p *Pipeline) GetQueueStatus() QueueStatus { return p.p.GetQueueStatus() }
func (p *Pipeline) GetMetrics() Metrics         { return p.p.GetMetrics() }
func (p *Pipeline) IsHealthy() bool             { return p.p.IsHealthy() }

// Lookup returns the cached terminal outcome of a decision.
func (p *Pipeline) Lookup(id string) (Record, bool) {
	return p.p.Lookup(id)
}

// Subscribe streams pipeline notifications until cancel is called.
func (p *Pipeline) Subscribe(buffer int) (<-chan Event, func()) {
	return p.p.Subscribe(buffer)
}

func (p *Pipeline) Shutdown(ctx context.Context) error {
	return p.p.Shutdown(ctx)
}
