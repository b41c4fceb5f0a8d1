package db

import "context"

type actorKey struct{}

// Actor is who performs a mutation, recorded in the audit log.
type Actor struct {
	UserID    string
	IPAddress string
}

// WithActor attaches the acting user and client IP to ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor of ctx, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
