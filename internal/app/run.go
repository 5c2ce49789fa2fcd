// Package app builds a running pipeline from config.Settings and exposes it
// over HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/your-org/decision-pipeline/internal/audit"
	"github.com/your-org/decision-pipeline/internal/config"
	"github.com/your-org/decision-pipeline/internal/deadletter"
	"github.com/your-org/decision-pipeline/internal/executor"
	"github.com/your-org/decision-pipeline/internal/logging"
	"github.com/your-org/decision-pipeline/internal/metrics"
	"github.com/your-org/decision-pipeline/internal/pipeline"
	"github.com/your-org/decision-pipeline/internal/security"
	"github.com/your-org/decision-pipeline/internal/trace"
)

// releaseTimeout bounds closing stores, exporters and the metrics endpoint
// after the drain, whatever the drain used of its own budget.
const releaseTimeout = 5 * time.Second

// Runtime owns the pipeline and every resource built around it.
type Runtime struct {
	Pipeline *pipeline.Pipeline
	Registry *executor.Registry
	Metrics  *metrics.InMemoryRecorder
	Prom     *prometheus.Registry

	logger        logr.Logger
	metricsServer *http.Server
	closers       []func(context.Context) error
}

// Build wires dead-letter storage, executors, recorders, audit and tracing
// into a started pipeline. Close must be called to release them.
func Build(ctx context.Context, s config.Settings, logger logr.Logger) (*Runtime, error) {
	rt := &Runtime{logger: logger.WithName("app")}
	fail := func(err error) (*Runtime, error) {
		_ = rt.closeResources(context.Background())
		return nil, err
	}

	tracing, err := trace.Setup(ctx, trace.Options{
		Enabled:     s.Trace.Enabled,
		Endpoint:    s.Trace.Endpoint,
		ServiceName: s.Trace.ServiceName,
	})
	if err != nil {
		return fail(fmt.Errorf("setup tracing: %w", err))
	}
	rt.closers = append(rt.closers, tracing.Shutdown)

	store, err := rt.deadLetterStore(ctx, s.DeadLetter)
	if err != nil {
		return fail(err)
	}

	rt.Registry, err = buildRegistry(s.Executor)
	if err != nil {
		return fail(err)
	}

	rt.Metrics = metrics.NewInMemoryRecorder()
	rt.Prom = prometheus.NewRegistry()
	promRecorder, err := metrics.NewPrometheusRecorder(rt.Prom)
	if err != nil {
		return fail(fmt.Errorf("setup prometheus recorder: %w", err))
	}
	if s.MetricsAddr != "" {
		tlsCfg, err := security.ServerConfig(s.TLS)
		if err != nil {
			return fail(fmt.Errorf("metrics tls: %w", err))
		}
		rt.metricsServer, err = metrics.StartPrometheusServerTLS(s.MetricsAddr, rt.Prom, tlsCfg)
		if err != nil {
			return fail(fmt.Errorf("start metrics endpoint: %w", err))
		}
		rt.logger.V(logging.DEFAULT).Info("metrics endpoint listening", "addr", rt.metricsServer.Addr)
	}

	p, err := pipeline.New(s.Pipeline,
		pipeline.WithLogger(logger),
		pipeline.WithResolver(rt.Registry),
		pipeline.WithDeadLetterStore(store),
		pipeline.WithRecorder(metrics.NewMultiRecorder(rt.Metrics, promRecorder)),
		pipeline.WithTracer(tracing.Tracer),
		pipeline.WithAuditLogger(audit.NewLogger(s.AuditLogPath)),
	)
	if err != nil {
		return fail(fmt.Errorf("build pipeline: %w", err))
	}
	rt.Pipeline = p
	return rt, nil
}

// Close drains the pipeline within ctx, then releases stores, exporters and
// the metrics endpoint on a fresh context bounded by releaseTimeout. The drain
// error, if any, is returned first.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Pipeline != nil {
		if err := rt.Pipeline.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := rt.closeResources(releaseCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (rt *Runtime) closeResources(ctx context.Context) error {
	var errs []error
	if err := metrics.StopServer(ctx, rt.metricsServer); err != nil {
		errs = append(errs, fmt.Errorf("stop metrics endpoint: %w", err))
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func (rt *Runtime) deadLetterStore(ctx context.Context, s config.DeadLetterSettings) (deadletter.Store, error) {
	var primary deadletter.Store
	switch s.Backend {
	case config.BackendRedis:
		rs, err := deadletter.NewRedisStore(s.RedisURL, s.RedisKey)
		if err != nil {
			return nil, fmt.Errorf("dead-letter redis: %w", err)
		}
		rt.closers = append(rt.closers, closeFunc(rs))
		primary = rs
	case config.BackendDynamo:
		ds, err := deadletter.NewDynamoStore(ctx, deadletter.DynamoOptions{
			Table:    s.DynamoTable,
			Region:   s.DynamoRegion,
			Endpoint: s.DynamoEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("dead-letter dynamo: %w", err)
		}
		primary = ds
	default:
		primary = deadletter.NewMemoryStore()
	}

	if s.KafkaBrokers == "" {
		return primary, nil
	}
	ks, err := deadletter.NewKafkaSink(s.KafkaBrokers, s.KafkaTopic)
	if err != nil {
		return nil, fmt.Errorf("dead-letter kafka: %w", err)
	}
	rt.closers = append(rt.closers, closeFunc(ks))
	return deadletter.NewTee(primary, ks), nil
}

func buildRegistry(s config.ExecutorSettings) (*executor.Registry, error) {
	reg := executor.NewRegistry()
	if s.URL == "" {
		sim := executor.NewSimulated(executor.SimulatedOptions{Scale: s.SimulatedScale, FailureRate: s.FailureRate})
		reg.SetFallback(sim.Execute)
		return reg, nil
	}
	h, err := executor.NewHTTP(s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("http executor: %w", err)
	}
	reg.SetFallback(h.Execute)
	return reg, nil
}

func closeFunc(c io.Closer) func(context.Context) error {
	return func(context.Context) error { return c.Close() }
}
