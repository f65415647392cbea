package models

import "context"

type actorContextKey struct{}

// WithActor attaches the acting user id to a context so audit entries written
// further down the call chain can attribute the change.
func WithActor(ctx context.Context, actorId int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorId)
}

// ActorFromContext returns the acting user id, or nil for system actions.
func ActorFromContext(ctx context.Context) *int64 {
	id, ok := ctx.Value(actorContextKey{}).(int64)
	if !ok {
		return nil
	}
	return &id
}
