package logger

import (
	"context"
	"log/slog"
	"os"
)

// LevelTrace sits below slog's Debug level; the wire protocol and firmware
// docs call it "trace" but slog has no native concept of it.
const LevelTrace = slog.Level(-8)

// Logger is a wrapper around slog.Logger.
type Logger struct {
	*slog.Logger
}

// New creates a new JSON logger with the service name at the info level.
func New(serviceName string) *Logger {
	return NewWithLevel(serviceName, slog.LevelInfo)
}

// NewWithLevel creates a new JSON logger with an explicit minimum level.
func NewWithLevel(serviceName string, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With("service", serviceName)

	return &Logger{logger}
}

// ParseLevel maps the config-level spelling (trace|debug|info|warn|error) to
// a slog.Level. Unknown spellings fall back to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithContext adds correlation info from context.
func (l *Logger) WithContext(ctx context.Context) *slog.Logger {
	logger := l.Logger

	if reqID, ok := ctx.Value(ctxKeyRequestID).(string); ok && reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	if mid, ok := ctx.Value(ctxKeyMID).(string); ok && mid != "" {
		logger = logger.With("mid", mid)
	}

	return logger
}

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyMID       ctxKey = "mid"
)

// WithRequestID returns a context carrying a request id for WithContext to
// pick up.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// WithMID returns a context carrying a vehicle id for WithContext to pick up.
func WithMID(ctx context.Context, mid string) context.Context {
	return context.WithValue(ctx, ctxKeyMID, mid)
}
