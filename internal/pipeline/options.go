package pipeline

import (
	"github.com/go-logr/logr"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/your-org/decision-pipeline/internal/audit"
	"github.com/your-org/decision-pipeline/internal/deadletter"
	"github.com/your-org/decision-pipeline/internal/metrics"
	"github.com/your-org/decision-pipeline/internal/worker"
	"github.com/your-org/decision-pipeline/pkg/decision"
)

type options struct {
	logger      logr.Logger
	resolver    worker.Resolver
	validator   decision.ValidateFunc
	deadLetters deadletter.Store
	recorder    metrics.Recorder
	tracer      oteltrace.Tracer
	audit       *audit.Logger
}

// Option configures a Pipeline.
type Option func(*options)

// WithLogger sets the logging sink. The default discards everything.
func WithLogger(l logr.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithExecutor serves every decision type with fn.
func WithExecutor(fn decision.ExecuteFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.resolver = worker.Only(fn)
		}
	}
}

// WithResolver picks the executor per decision type, e.g. an executor.Registry.
func WithResolver(r worker.Resolver) Option {
	return func(o *options) {
		if r != nil {
			o.resolver = r
		}
	}
}

// WithValidator replaces the default required-field gate.
func WithValidator(fn decision.ValidateFunc) Option {
	return func(o *options) { o.validator = fn }
}

func WithDeadLetterStore(s deadletter.Store) Option {
	return func(o *options) {
		if s != nil {
			o.deadLetters = s
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

func WithTracer(t oteltrace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

func WithAuditLogger(l *audit.Logger) Option {
	return func(o *options) { o.audit = l }
}
