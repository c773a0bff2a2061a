package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ContextKey is the type for context keys used in logging
type ContextKey string

const (
	// LeadIDKey is the context key for lead_id
	LeadIDKey ContextKey = "lead_id"
	// CorrelationIDKey is the context key for correlation_id
	CorrelationIDKey ContextKey = "correlation_id"
	// SessionIDKey is the context key for the board session_id
	SessionIDKey ContextKey = "session_id"
)

// SlowOperationThreshold is the duration above which LogSlowOperation emits a warning
const SlowOperationThreshold = time.Second

var defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// Init initializes the global structured logger.
// format is "json" (default) or "text"; level is one of debug, info, warn, error.
func Init(level, format string) {
	InitWithWriter(os.Stdout, level, format)
}

// InitWithWriter initializes the global logger writing to w
func InitWithWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// ParseLevel maps a level name to slog.Level, falling back to info
func ParseLevel(level string) slog.Level {
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

// WithLeadID returns a context carrying the lead id for logging
func WithLeadID(ctx context.Context, leadID string) context.Context {
	return context.WithValue(ctx, LeadIDKey, leadID)
}

// WithCorrelationID returns a context carrying the correlation id for logging
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// WithSessionID returns a context carrying the board session id for logging
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// CorrelationID extracts the correlation id from ctx, or "" if absent
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithContext creates a logger with context values (lead_id, correlation_id, session_id)
func WithContext(ctx context.Context) *slog.Logger {
	logger := defaultLogger

	if leadID, ok := ctx.Value(LeadIDKey).(string); ok && leadID != "" {
		logger = logger.With("lead_id", leadID)
	}

	if correlationID, ok := ctx.Value(CorrelationIDKey).(string); ok && correlationID != "" {
		logger = logger.With("correlation_id", correlationID)
	}

	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok && sessionID != "" {
		logger = logger.With("session_id", sessionID)
	}

	return logger
}

// Info logs an info message with context
func Info(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

// Error logs an error message with context
func Error(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}

// Warn logs a warning message with context
func Warn(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

// Debug logs a debug message with context
func Debug(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}

// LogStatusTransition logs a lead moving between pipeline stages
func LogStatusTransition(ctx context.Context, leadID string, oldStatus, newStatus string) {
	logger := WithContext(ctx).With(
		"lead_id", leadID,
		"old_status", oldStatus,
		"new_status", newStatus,
		"timestamp", time.Now().UTC(),
	)
	logger.Info("Lead status transition")
}

// LogSlowOperation logs operations that exceed the threshold
func LogSlowOperation(ctx context.Context, operation string, duration time.Duration) {
	if duration > SlowOperationThreshold {
		logger := WithContext(ctx).With(
			"operation", operation,
			"duration_ms", duration.Milliseconds(),
		)
		logger.Warn("Slow operation detected")
	}
}

// LogError logs an error with its message under the "error" key
func LogError(ctx context.Context, msg string, err error, args ...any) {
	logger := WithContext(ctx)
	errText := "<nil>"
	if err != nil {
		errText = err.Error()
	}
	allArgs := append([]any{"error", errText}, args...)
	logger.Error(msg, allArgs...)
}
