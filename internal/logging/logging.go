// Package logging provides the application's structured slog setup plus
// context plumbing for request-scoped fields.
package logging

import (
	"context"
	"log/slog"
	"os"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	txHashKey    contextKey = "tx_hash"
	loggerKey    contextKey = "logger"
)

// New creates a structured logger. format is "json" or "text"; any
// unrecognized level falls back to info. Source locations are attached only
// at debug level.
func New(level string, format string) *slog.Logger {
	lvl := parseLevel(level)

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
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

// WithRequestID stores the request id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request id from the context, or "".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTxHash stores the payment transaction hash the request is operating
// under, so every later log line can be correlated with the payment.
func WithTxHash(ctx context.Context, txHash string) context.Context {
	return context.WithValue(ctx, txHashKey, txHash)
}

// TxHash returns the payment transaction hash from the context, or "".
func TxHash(ctx context.Context) string {
	if h, ok := ctx.Value(txHashKey).(string); ok {
		return h
	}
	return ""
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the context's logger, or the process default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// L returns the context's logger annotated with the request id and payment
// transaction hash when present.
func L(ctx context.Context) *slog.Logger {
	logger := FromContext(ctx)
	if reqID := RequestID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if txHash := TxHash(ctx); txHash != "" {
		logger = logger.With("tx_hash", txHash)
	}
	return logger
}
