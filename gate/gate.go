package gate

import (
	"context"
	"fmt"
)

// Gate combines profile permissions with resource-specific policies.
// Authorization flow:
//  1. the subject must be non-zero
//  2. the subject must resolve to a profile
//  3. the profile must hold resource:action
//  4. if a policy is registered and a resource is given, the policy must allow it
type Gate[U comparable] struct {
	resolver ProfileResolver[U]
	policies map[string]Policy[U]
}

func NewGate[U comparable](resolver ProfileResolver[U]) *Gate[U] {
	return &Gate[U]{
		resolver: resolver,
		policies: make(map[string]Policy[U]),
	}
}

// Register adds a policy for a resource type. Overwrites any existing policy for that type.
func (g *Gate[U]) Register(resourceType string, p Policy[U]) {
	g.policies[resourceType] = p
}

// Authorize returns nil when allowed, or one of ErrUnauthenticated, ErrNoProfile, ErrForbidden.
// Resolver failures are wrapped and returned as is.
func (g *Gate[U]) Authorize(ctx context.Context, user U, action Action, resourceType string, resource any) error {
	profile, err := g.Profile(ctx, user)
	if err != nil {
		return err
	}
	if !profile.HasPermission(NewPermission(resourceType, action)) {
		return ErrForbidden
	}
	if resource != nil {
		if policy, ok := g.policies[resourceType]; ok {
			if !policy.Can(ctx, user, profile, action, resource) {
				return ErrForbidden
			}
		}
	}
	return nil
}

// CanProfile checks only the profile permission, without the resource policy.
// Useful for templates deciding which buttons to show.
func (g *Gate[U]) CanProfile(ctx context.Context, user U, action Action, resourceType string) bool {
	profile, err := g.Profile(ctx, user)
	if err != nil {
		return false
	}
	return profile.HasPermission(NewPermission(resourceType, action))
}

// Profile resolves the subject's profile, mapping the zero subject and a missing profile to sentinels.
func (g *Gate[U]) Profile(ctx context.Context, user U) (Profile, error) {
	var zero U
	if user == zero {
		return nil, ErrUnauthenticated
	}
	profile, err := g.resolver.Resolve(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("resolve profile: %w", err)
	}
	if profile == nil {
		return nil, ErrNoProfile
	}
	return profile, nil
}
