// Package trace wires OpenTelemetry for the per-attempt spans opened by the worker.
package trace

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Options selects the exporter. An empty Endpoint exports to Writer (stdout by default).
type Options struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Writer      io.Writer
}

// Runtime stores the initialized tracer and its shutdown hook.
type Runtime struct {
	Tracer   oteltrace.Tracer
	Shutdown func(context.Context) error
}

// Setup installs a tracer provider when tracing is enabled. Disabled tracing
// returns the global no-op tracer.
func Setup(ctx context.Context, opts Options) (Runtime, error) {
	name := strings.TrimSpace(opts.ServiceName)
	if name == "" {
		name = "decision-pipeline"
	}
	noop := Runtime{
		Tracer:   otel.Tracer(name),
		Shutdown: func(context.Context) error { return nil },
	}
	if !opts.Enabled {
		return noop, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", name),
		),
	)
	if err != nil {
		return Runtime{}, fmt.Errorf("otel resource: %w", err)
	}

	var exp sdktrace.SpanExporter
	if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
		exp, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return Runtime{}, fmt.Errorf("otel otlp exporter: %w", err)
		}
	} else {
		stdoutOpts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if opts.Writer != nil {
			stdoutOpts = append(stdoutOpts, stdouttrace.WithWriter(opts.Writer))
		}
		exp, err = stdouttrace.New(stdoutOpts...)
		if err != nil {
			return Runtime{}, fmt.Errorf("otel stdout exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return Runtime{
		Tracer:   tp.Tracer(name),
		Shutdown: tp.Shutdown,
	}, nil
}
