// Package requestcontext carries request-scoped values (actor, request ID,
// request time) through context without importing net/http. Middleware sets
// them; services and the outbox writer read them.
package requestcontext

import (
	"context"
	"time"

	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
)

type (
	actorIDKey     struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Keys are exported for tests that build contexts by hand.
var (
	ContextKeyActorID     = actorIDKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// ActorID retrieves the authenticated actor. ok is false for system work such
// as relays and background jobs.
func ActorID(ctx context.Context) (domain.ActorID, bool) {
	actorID, ok := ctx.Value(ContextKeyActorID).(domain.ActorID)
	if !ok || actorID.IsNil() {
		return domain.ActorID{}, false
	}
	return actorID, true
}

// ActorIDPtr is ActorID shaped for envelope constructors, which take an
// optional actor.
func ActorIDPtr(ctx context.Context) *domain.ActorID {
	actorID, ok := ActorID(ctx)
	if !ok {
		return nil
	}
	return &actorID
}

// WithActorID injects the acting principal into the context.
func WithActorID(ctx context.Context, actorID domain.ActorID) context.Context {
	return context.WithValue(ctx, ContextKeyActorID, actorID)
}

// RequestID returns the correlation ID, or "" outside a request.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID stores the correlation ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now returns the time stamped on the request, or the wall clock when none
// was set (relay, dispatcher and other background work).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the time Now reports.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
