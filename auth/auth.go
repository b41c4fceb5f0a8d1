// Package auth keeps the provider session (access + refresh token) in a signed cookie
// and exposes the authenticated principal through the request context.
package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

type ctxKey string

const (
	sessionCookieName = "session"
	principalCtxKey   = ctxKey("principal")

	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
)

// ErrTokenExpired is returned by a Verifier for a well-formed but expired access token.
var ErrTokenExpired = errors.New("access token expired")

// Principal is the authenticated user of a request.
type Principal struct {
	UserID      string
	Email       string
	AccessToken string
}

// Tokens is a provider session.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Verifier validates an access token and returns its principal.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) (*Principal, error)
}

// Refresher exchanges a refresh token for a new session.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
}

// Manager reads and writes the session cookie.
type Manager struct {
	store     *sessions.CookieStore
	verifier  Verifier
	refresher Refresher
	logger    *zap.Logger
}

// NewManager creates a session manager. The secret may be any passphrase; it is
// SHA-256 hashed into the cookie signing key. secure marks the cookie HTTPS-only.
func NewManager(secret string, secure bool, verifier Verifier, refresher Refresher, logger *zap.Logger) *Manager {
	key := sha256.Sum256([]byte(secret))
	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((14 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, verifier: verifier, refresher: refresher, logger: logger}
}

// CreateSession stores the provider tokens in the session cookie.
func (m *Manager) CreateSession(w http.ResponseWriter, r *http.Request, t Tokens) error {
	s, _ := m.store.Get(r, sessionCookieName)
	s.Values[keyAccessToken] = t.AccessToken
	s.Values[keyRefreshToken] = t.RefreshToken
	s.Options.MaxAge = m.store.Options.MaxAge
	return s.Save(r, w)
}

// ClearSession deletes the session cookie.
func (m *Manager) ClearSession(w http.ResponseWriter, r *http.Request) {
	s, _ := m.store.Get(r, sessionCookieName)
	s.Values = map[interface{}]interface{}{}
	s.Options.MaxAge = -1
	if err := s.Save(r, w); err != nil {
		m.logger.Warn("failed to clear session cookie", zap.Error(err))
	}
}

// ParseSession returns the stored tokens, if the cookie is present and correctly signed.
func (m *Manager) ParseSession(r *http.Request) (Tokens, bool) {
	s, err := m.store.Get(r, sessionCookieName)
	if err != nil || s.IsNew {
		return Tokens{}, false
	}
	access, _ := s.Values[keyAccessToken].(string)
	refresh, _ := s.Values[keyRefreshToken].(string)
	if access == "" {
		return Tokens{}, false
	}
	return Tokens{AccessToken: access, RefreshToken: refresh}, true
}

// authenticate verifies the session, refreshing it once when the access token expired.
func (m *Manager) authenticate(w http.ResponseWriter, r *http.Request) (*Principal, bool) {
	tokens, ok := m.ParseSession(r)
	if !ok {
		return nil, false
	}
	p, err := m.verifier.Verify(r.Context(), tokens.AccessToken)
	if err == nil {
		p.AccessToken = tokens.AccessToken
		return p, true
	}
	if !errors.Is(err, ErrTokenExpired) || m.refresher == nil || tokens.RefreshToken == "" {
		m.logger.Debug("session rejected", zap.Error(err))
		m.ClearSession(w, r)
		return nil, false
	}

	fresh, err := m.refresher.Refresh(r.Context(), tokens.RefreshToken)
	if err != nil {
		m.logger.Info("session refresh failed", zap.Error(err))
		m.ClearSession(w, r)
		return nil, false
	}
	p, err = m.verifier.Verify(r.Context(), fresh.AccessToken)
	if err != nil {
		m.ClearSession(w, r)
		return nil, false
	}
	if err := m.CreateSession(w, r, *fresh); err != nil {
		m.logger.Warn("failed to save refreshed session", zap.Error(err))
	}
	p.AccessToken = fresh.AccessToken
	return p, true
}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext extracts the principal.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalCtxKey).(*Principal)
	return p, ok && p != nil
}

// UserIDFromContext extracts the authenticated user id.
func UserIDFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID == "" {
		return "", false
	}
	return p.UserID, true
}

// Middleware attaches the principal to the request context when the session is valid.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := m.authenticate(w, r); ok {
			r = r.WithContext(WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth redirects to /login if not authenticated (HTML) or returns 401 JSON.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserIDFromContext(r.Context()); !ok {
			accept := r.Header.Get("Accept")
			if strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"Not authenticated"}`))
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
