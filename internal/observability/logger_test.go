package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/studygen/internal/shared"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr string
		enabled zapcore.Level
	}{
		{name: "json info", level: "info", format: "json", enabled: zapcore.InfoLevel},
		{name: "console debug", level: "debug", format: "console", enabled: zapcore.DebugLevel},
		{name: "empty defaults", level: "", format: "", enabled: zapcore.InfoLevel},
		{name: "upper case", level: "WARN", format: "JSON", enabled: zapcore.WarnLevel},
		{name: "bad level", level: "verbose", format: "json", wantErr: "invalid log level"},
		{name: "bad format", level: "info", format: "xml", wantErr: "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.enabled))
			assert.False(t, logger.Core().Enabled(tt.enabled-1))
		})
	}
}

func TestContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ContextLogger(context.Background(), base).Info("plain")
	ContextLogger(shared.WithRequestID(context.Background(), "req-9"), base).Info("tagged")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.NotContains(t, entries[0].ContextMap(), "request_id")
	assert.Equal(t, "req-9", entries[1].ContextMap()["request_id"])
}
