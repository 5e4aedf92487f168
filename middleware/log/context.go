package logger

import (
	"context"

	"github.com/google/uuid"
)

// WithTraceID stores the trace ID in the context, minting a fresh UUID
// when the caller passes an empty string.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = uuid.New().String()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the context's trace ID, or "" when none is set.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// NewTraceID mints a UUID v4 trace ID.
func NewTraceID() string {
	return uuid.New().String()
}
