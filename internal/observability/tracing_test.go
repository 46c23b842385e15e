package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func restoreGlobalProvider(t *testing.T) {
	t.Helper()
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestNewTracing_Disabled(t *testing.T) {
	tr, err := NewTracing(context.Background(), TracingConfig{})
	require.NoError(t, err)

	assert.False(t, tr.Enabled())
	require.NotNil(t, tr.Tracer())

	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestNewTracing_StdoutExporter(t *testing.T) {
	restoreGlobalProvider(t)
	var buf bytes.Buffer

	tr, err := NewTracing(context.Background(), TracingConfig{
		Enabled:     true,
		ServiceName: "studygen-test",
		Writer:      &buf,
	})
	require.NoError(t, err)
	assert.True(t, tr.Enabled())

	_, span := tr.Tracer().Start(context.Background(), "generation.attempt")
	assert.True(t, span.SpanContext().IsSampled())
	span.End()

	// Shutdown flushes the batcher
	require.NoError(t, tr.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "generation.attempt")
	assert.Contains(t, buf.String(), "studygen-test")
}

func TestSampler(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		want  string
	}{
		{"unset samples everything", 0, sdktrace.ParentBased(sdktrace.AlwaysSample()).Description()},
		{"above one samples everything", 2, sdktrace.ParentBased(sdktrace.AlwaysSample()).Description()},
		{"ratio", 0.25, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sampler(tt.ratio).Description(); got != tt.want {
				t.Errorf("sampler(%v) = %s, want %s", tt.ratio, got, tt.want)
			}
		})
	}
}
