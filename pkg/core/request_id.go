package core

import (
	"context"

	"github.com/google/uuid"
)

// requestIDKey is the context key for request ID
type requestIDKey struct{}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID retrieves the request ID from context, or "" if unset
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GenerateRequestID generates a new random request ID
func GenerateRequestID() string {
	return uuid.NewString()
}

// WithNewRequestID tags ctx with a fresh request ID and returns both
func WithNewRequestID(ctx context.Context) (context.Context, string) {
	id := GenerateRequestID()
	return WithRequestID(ctx, id), id
}
