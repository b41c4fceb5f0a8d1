// Package services holds the server actions. Each action reads the caller from
// the request context, checks authorization through the gate and returns either
// a value or an *apperrors.Error whose message is shown to the user.
package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/diewo77/bloodboard/auth"
	"github.com/diewo77/bloodboard/gate"
	"github.com/diewo77/bloodboard/internal/apperrors"
	"github.com/diewo77/bloodboard/internal/cache"
	"github.com/diewo77/bloodboard/internal/policy"
)

// Paths whose cached views are dropped after a mutation.
const (
	PathHome      = "/"
	PathDashboard = "/dashboard"
	PathSignup    = "/signup"
)

const msgSomethingWentWrong = "Something went wrong"

// denials are the messages returned for each way an authorization check can fail.
type denials struct {
	noProfile    string
	noPermission string
	otherCenter  string
}

func sameDenial(msg string) denials { return denials{noProfile: msg, noPermission: msg, otherCenter: msg} }

// authorize checks the caller of ctx against the gate. resource may be nil to skip
// the center policy. It returns the caller's profile when allowed.
func authorize(ctx context.Context, g *policy.AuthGate, action gate.Action, resourceType string, resource any, d denials) (gate.Profile, error) {
	userID, _ := auth.UserIDFromContext(ctx)
	profile, err := g.Gate.Profile(ctx, userID)
	switch {
	case errors.Is(err, gate.ErrUnauthenticated):
		return nil, apperrors.Unauthenticated()
	case errors.Is(err, gate.ErrNoProfile):
		return nil, apperrors.Forbidden(d.noProfile)
	case err != nil:
		return nil, apperrors.Internal(msgSomethingWentWrong, err)
	}
	if !profile.HasPermission(gate.NewPermission(resourceType, action)) {
		return nil, apperrors.Forbidden(d.noPermission)
	}
	if resource != nil {
		if err := g.Authorize(ctx, action, resourceType, resource); err != nil {
			if errors.Is(err, gate.ErrForbidden) {
				return nil, apperrors.Forbidden(d.otherCenter)
			}
			return nil, apperrors.Internal(msgSomethingWentWrong, err)
		}
	}
	return profile, nil
}

func requireUser(ctx context.Context) (string, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok || userID == "" {
		return "", apperrors.Unauthenticated()
	}
	return userID, nil
}

// invalidate drops cached views. Failures are logged; the entries expire anyway.
func invalidate(ctx context.Context, store cache.Store, log *zap.Logger, paths ...string) {
	if store == nil {
		return
	}
	if err := store.Invalidate(ctx, paths...); err != nil {
		log.Warn("cache invalidation failed", zap.Strings("paths", paths), zap.Error(err))
	}
}

func storeError(msg string, err error) error {
	return apperrors.Internal(msg, err)
}
