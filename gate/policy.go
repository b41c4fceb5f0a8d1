package gate

import "context"

// Policy defines authorization rules for a resource type.
// It runs after the profile permission check and receives the resolved profile.
// For list/create, resource may be nil (context-only check).
type Policy[U any] interface {
	Can(ctx context.Context, user U, profile Profile, action Action, resource any) bool
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc[U any] func(ctx context.Context, user U, profile Profile, action Action, resource any) bool

func (f PolicyFunc[U]) Can(ctx context.Context, user U, profile Profile, action Action, resource any) bool {
	return f(ctx, user, profile, action, resource)
}
