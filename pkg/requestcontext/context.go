// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values set by middleware and read by services.
//
// Usage in services:
//
//	p := requestcontext.Principal(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithPrincipal(ctx, requestcontext.Caller{ID: 1, Role: domain.RoleSecretary})
package requestcontext

import (
	"context"
	"time"

	"correspondence/pkg/domain"
)

type (
	principalKey   struct{}
	tokenIDKey     struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	clientKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Caller is the authenticated user as reloaded from the user store. Role and
// division never come from token claims alone.
type Caller struct {
	ID       domain.UserID
	Username string
	Role     domain.Role
	Division domain.Division
}

// Authenticated reports whether c was set by the auth middleware.
func (c Caller) Authenticated() bool {
	return !c.ID.IsZero()
}

// ScopeDivision is the division filter to apply for c: none for a secretary,
// the caller's own division otherwise.
func (c Caller) ScopeDivision() domain.Division {
	if c.Role.SeesAllDivisions() {
		return domain.DivisionNone
	}
	return c.Division
}

// Principal retrieves the authenticated caller. The zero Caller is returned
// when the request is anonymous.
func Principal(ctx context.Context) Caller {
	if c, ok := ctx.Value(principalKey{}).(Caller); ok {
		return c
	}
	return Caller{}
}

// WithPrincipal injects the authenticated caller.
func WithPrincipal(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, principalKey{}, c)
}

// UserID is shorthand for Principal(ctx).ID.
func UserID(ctx context.Context) domain.UserID {
	return Principal(ctx).ID
}

// TokenID retrieves the jti of the bearer token used for this request.
func TokenID(ctx context.Context) string {
	if jti, ok := ctx.Value(tokenIDKey{}).(string); ok {
		return jti
	}
	return ""
}

// WithTokenID injects the bearer token's jti.
func WithTokenID(ctx context.Context, jti string) context.Context {
	return context.WithValue(ctx, tokenIDKey{}, jti)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the raw User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// Client retrieves the parsed "browser/os" summary of the User-Agent.
func Client(ctx context.Context) string {
	if c, ok := ctx.Value(clientKey{}).(string); ok {
		return c
	}
	return ""
}

// WithClientMetadata injects client IP, raw User-Agent and its parsed summary.
func WithClientMetadata(ctx context.Context, clientIP, userAgent, client string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	ctx = context.WithValue(ctx, clientKey{}, client)
	return ctx
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() outside HTTP requests (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
