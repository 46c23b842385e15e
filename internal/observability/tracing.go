package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig selects the span exporter
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	// Endpoint is an OTLP/HTTP collector URL. Empty writes spans to Writer.
	Endpoint    string
	SampleRatio float64
	Writer      io.Writer
}

// Tracing owns the process TracerProvider. A disabled Tracing hands out the
// global no-op tracer and its Shutdown does nothing.
type Tracing struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracing installs a batching TracerProvider as the global provider when
// tracing is enabled.
func NewTracing(ctx context.Context, cfg TracingConfig) (*Tracing, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "studygen"
	}
	if !cfg.Enabled {
		return &Tracing{tracer: otel.Tracer(name)}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", name)),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	var exp sdktrace.SpanExporter
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		exp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, fmt.Errorf("otel otlp exporter: %w", err)
		}
	} else {
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		exp, err = stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("otel stdout exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)

	return &Tracing{provider: tp, tracer: tp.Tracer(name)}, nil
}

// sampler keeps the caller's decision and samples new roots at ratio.
// Out-of-range ratios sample everything.
func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Tracer returns the tracer handed to the generation service
func (t *Tracing) Tracer() trace.Tracer {
	return t.tracer
}

// Enabled reports whether spans are exported
func (t *Tracing) Enabled() bool {
	return t.provider != nil
}

// Shutdown flushes pending spans and stops the exporter
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
