// Package logger provides structured logging setup using slog.
package logger

import (
	"context"
	"log/slog"
	"os"
)

// connIDKey is the context key for gateway connection IDs.
type connIDKey struct{}

// New creates a new structured JSON logger scoped to a component
// ("api", "worker", "gateway", ...).
func New(component string) *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})).With("component", component)
}

// WithConnID returns a new context carrying the given connection ID.
func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connIDKey{}, connID)
}

// ConnIDFromContext extracts the connection ID from the context.
func ConnIDFromContext(ctx context.Context) string {
	if v := ctx.Value(connIDKey{}); v != nil {
		return v.(string)
	}
	return ""
}

// FromContext returns a logger with context fields (connection ID, etc.) attached.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if connID := ConnIDFromContext(ctx); connID != "" {
		return base.With("conn_id", connID)
	}
	return base
}
