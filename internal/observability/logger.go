package observability

import (
	"context"
	"fmt"
	"strings"

	"github.com/upb/studygen/internal/shared"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger. format is "json" (default) or "console".
func NewLogger(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch strings.ToLower(format) {
	case "", "json":
	case "console":
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	return cfg.Build()
}

// ContextLogger returns logger annotated with the request id carried by ctx
func ContextLogger(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id := shared.RequestID(ctx); id != "" {
		return logger.With(zap.String("request_id", id))
	}
	return logger
}
