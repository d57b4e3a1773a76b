package common

import (
	"context"
	"log/slog"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyJobID     contextKey = "job_id"
	ContextKeyReceiptID contextKey = "receipt_id"
)

// WithJob tags the context with the job and receipt being processed.
func WithJob(ctx context.Context, jobID, receiptID string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyJobID, jobID)
	return context.WithValue(ctx, ContextKeyReceiptID, receiptID)
}

// JobIDFromContext extracts the job ID from context
func JobIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyJobID).(string); ok {
		return v
	}
	return ""
}

// ReceiptIDFromContext extracts the receipt ID from context
func ReceiptIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyReceiptID).(string); ok {
		return v
	}
	return ""
}

// LoggerFromContext returns logger enriched with any job identifiers present in ctx.
func LoggerFromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if id := JobIDFromContext(ctx); id != "" {
		logger = logger.With("job_id", id)
	}
	if id := ReceiptIDFromContext(ctx); id != "" {
		logger = logger.With("receipt_id", id)
	}
	return logger
}
