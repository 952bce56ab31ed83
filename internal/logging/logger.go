package logging

import (
	"context"

	"go.uber.org/zap"
)

type requestIDKey struct{}

// NewLogger builds a production ready structured logger.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	return cfg.Build()
}

// ContextWithRequestID stores the id of the inbound request on ctx.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id stored by ContextWithRequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

// WithOperation enriches the logger with the operation name, the document it
// acts on and the request that triggered it.
func WithOperation(ctx context.Context, logger *zap.Logger, operation, documentID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if documentID != "" {
		fields = append(fields, zap.String("document_id", documentID))
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	return logger.With(fields...)
}
