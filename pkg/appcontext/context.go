package appcontext

import (
	"context"

	"github.com/subseactl/fleetd/pkg/db/store"
	"github.com/subseactl/fleetd/pkg/logger"
)

type contextKey string

const (
	LoggerKey    contextKey = "logger"
	QuerierKey   contextKey = "querier"
	RequestIDKey contextKey = "request_id"
)

// GetLogger retrieves the logger from the context.
func GetLogger(ctx context.Context) *logger.Logger {
	if l, ok := ctx.Value(LoggerKey).(*logger.Logger); ok {
		return l
	}
	return logger.New("unknown")
}

// GetQuerier retrieves the store querier from the context.
func GetQuerier(ctx context.Context) store.Querier {
	if q, ok := ctx.Value(QuerierKey).(store.Querier); ok {
		return q
	}
	return nil
}

// GetRequestID retrieves the correlation id assigned to this request, if any.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithLogger returns a context with the logger attached.
func WithLogger(ctx context.Context, l *logger.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, l)
}

// WithQuerier returns a context with the querier attached.
func WithQuerier(ctx context.Context, q store.Querier) context.Context {
	return context.WithValue(ctx, QuerierKey, q)
}

// WithRequestID returns a context with the correlation id attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
