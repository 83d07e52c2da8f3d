// Package requestcontext carries request-scoped values from middleware to
// services without importing net/http.
//
//	orgID := requestcontext.OrgID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values with the With* functions.
package requestcontext

import (
	"context"
	"time"

	id "crm/pkg/domain"
)

type key int

const (
	orgIDKey key = iota
	actorIDKey
	clientIPKey
	userAgentKey
	requestIDKey
	requestTimeKey
)

func value[T any](ctx context.Context, k key) T {
	v, _ := ctx.Value(k).(T)
	return v
}

// OrgID is the organization resolved by the tenant middleware, or the empty
// OrgID outside a tenant-scoped request.
func OrgID(ctx context.Context) id.OrgID {
	return value[id.OrgID](ctx, orgIDKey)
}

func WithOrgID(ctx context.Context, orgID id.OrgID) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

// ActorID is the token subject, when the request carried a verified token.
func ActorID(ctx context.Context) string {
	return value[string](ctx, actorIDKey)
}

func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey, actorID)
}

func ClientIP(ctx context.Context) string {
	return value[string](ctx, clientIPKey)
}

func UserAgent(ctx context.Context) string {
	return value[string](ctx, userAgentKey)
}

func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, clientIP)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// RequestID is the correlation id echoed in X-Correlation-Id and stamped on
// audit events.
func RequestID(ctx context.Context) string {
	return value[string](ctx, requestIDKey)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// Now is the request-pinned time. Outside a request (relay, tests without
// WithTime) it falls back to the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}
