package policy

import (
	"context"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/diewo77/bloodboard/auth"
	"github.com/diewo77/bloodboard/gate"
	"github.com/diewo77/bloodboard/httpx"
	"github.com/diewo77/bloodboard/internal/models"
)

// AuthGate is the application's authorization checkpoint: a gate over cached
// membership profiles with the center policy registered for every center-owned resource.
type AuthGate struct {
	Gate          *gate.Gate[string]
	CacheResolver *gate.CachedResolver[string]
}

// NewAuthGate creates the gate backed by the user_centers table.
func NewAuthGate(db *gorm.DB, cacheTTL time.Duration) *AuthGate {
	return NewAuthGateWithResolver(NewMembershipResolver(db), cacheTTL)
}

func NewAuthGateWithResolver(resolver gate.ProfileResolver[string], cacheTTL time.Duration) *AuthGate {
	cached := gate.NewCachedResolver[string](resolver, cacheTTL)
	g := gate.NewGate[string](cached)

	centerPolicy := NewCenterPolicy()
	g.Register(ResourceShortage, centerPolicy)
	g.Register(ResourceCenter, centerPolicy)
	g.Register(ResourceOfficial, centerPolicy)
	g.Register(ResourceAudit, centerPolicy)

	return &AuthGate{Gate: g, CacheResolver: cached}
}

// Authorize checks the current user of ctx. See gate.Gate.Authorize for the errors.
func (ag *AuthGate) Authorize(ctx context.Context, action gate.Action, resourceType string, resource any) error {
	userID, _ := auth.UserIDFromContext(ctx)
	return ag.Gate.Authorize(ctx, userID, action, resourceType, resource)
}

// CanProfile checks only profile permissions, for templates.
func (ag *AuthGate) CanProfile(ctx context.Context, action gate.Action, resourceType string) bool {
	userID, _ := auth.UserIDFromContext(ctx)
	return ag.Gate.CanProfile(ctx, userID, action, resourceType)
}

// IsAdmin reports whether the current user is an admin of its center.
func (ag *AuthGate) IsAdmin(ctx context.Context) bool {
	userID, _ := auth.UserIDFromContext(ctx)
	p, err := ag.Gate.Profile(ctx, userID)
	return err == nil && p.Role() == string(models.RoleAdmin)
}

// InvalidateUser drops the cached membership of a user, e.g. right after signup.
func (ag *AuthGate) InvalidateUser(userID string) {
	ag.CacheResolver.Invalidate(userID)
}

// InvalidateAll clears the cache, e.g. after a center and its memberships were deleted.
func (ag *AuthGate) InvalidateAll() {
	ag.CacheResolver.InvalidateAll()
}

// RequirePermission returns middleware that checks the profile permission.
func (ag *AuthGate) RequirePermission(resourceType string, action gate.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ag.CanProfile(r.Context(), action, resourceType) {
				httpx.JSONError(w, http.StatusForbidden, "Forbidden", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin only lets admins through. Browsers are redirected to redirectTo,
// JSON clients get 403.
func (ag *AuthGate) RequireAdmin(redirectTo string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ag.IsAdmin(r.Context()) {
				if httpx.WantsJSON(r) {
					httpx.JSONError(w, http.StatusForbidden, "Forbidden", nil)
					return
				}
				http.Redirect(w, r, redirectTo, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
