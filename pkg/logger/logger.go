// Package logger configures the process-wide slog logger and carries the
// trace id that ties one mutation event or control call through the router,
// synchronizer and engine log lines.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type contextKey struct{}

// Setup installs the default logger. Logs go to stderr; stdout stays
// reserved for command output.
func Setup(level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithTraceID stamps ctx with the identifier that correlates one mutation
// event or control call across router, synchronizer and engine logs.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKey{}, traceID)
}

// FromContext returns the default logger, tagged with the trace id in ctx
// when one is present.
func FromContext(ctx context.Context) *slog.Logger {
	log := slog.Default()
	if traceID, ok := ctx.Value(contextKey{}).(string); ok {
		log = log.With("trace_id", traceID)
	}
	return log
}

// WithComponent returns the default logger tagged with a component name.
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
