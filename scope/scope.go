// Package scope carries the authenticated caller on a context.
//
// The API middleware stores the caller after validating its key; handlers
// and services read it back instead of trusting request parameters.
package scope

import "context"

// Caller is the tenant behind an authenticated request.
type Caller struct {
	TenantID  string
	KeyID     string
	KeyPrefix string
}

type callerKey struct{}

// WithCaller returns a copy of ctx carrying c.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// FromContext returns the caller stored on ctx.
func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok && c.TenantID != ""
}

// TenantID returns the caller's tenant, or "" when ctx is unauthenticated.
func TenantID(ctx context.Context) string {
	c, _ := FromContext(ctx)
	return c.TenantID
}
