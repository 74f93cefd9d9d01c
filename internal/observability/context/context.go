package context

import "context"

type requestIDKey struct{}
type householdIDKey struct{}

// WithRequestID stores the request identifier on ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request identifier or an empty string.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithHouseholdID stores the household the request operates on.
func WithHouseholdID(ctx context.Context, householdID string) context.Context {
	if householdID == "" {
		return ctx
	}
	return context.WithValue(ctx, householdIDKey{}, householdID)
}

func HouseholdIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(householdIDKey{}).(string); ok {
		return v
	}
	return ""
}
