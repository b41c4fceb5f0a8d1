// Package identity talks to the authentication provider: the hosted GoTrue server
// or the built-in provider backed by the users table.
package identity

import (
	"context"
	"time"

	"github.com/diewo77/bloodboard/auth"
)

// User is an account known to the provider.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	// Identities is the number of linked identities. Zero on sign-up means the
	// email is already registered.
	Identities int `json:"-"`
}

// Session is an authenticated provider session.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	User         *User
}

// Tokens returns the cookie payload of the session.
func (s *Session) Tokens() auth.Tokens {
	return auth.Tokens{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
}

// SignUpResult is the outcome of a sign-up. Session is nil when the email must be confirmed first.
type SignUpResult struct {
	User    *User
	Session *Session
}

// RequiresEmailConfirmation reports whether a new identity was created but not yet confirmed.
func (r *SignUpResult) RequiresEmailConfirmation() bool {
	return r.User != nil && r.User.Identities > 0 && r.User.EmailConfirmedAt == nil
}

// AlreadyRegistered reports whether the provider answered with an existing account.
func (r *SignUpResult) AlreadyRegistered() bool {
	return r.User == nil || r.User.Identities == 0
}

// Provider is the authentication gateway.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*SignUpResult, error)
	SignOut(ctx context.Context, accessToken string) error
	// SendOTP emails a one-time login code. It never creates a user.
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, token string) (*Session, error)
	GetUser(ctx context.Context, userID string) (*User, error)
	DeleteUser(ctx context.Context, userID string) error
	Refresh(ctx context.Context, refreshToken string) (*auth.Tokens, error)
}

// Error is a provider failure whose message is shown to the user as is.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

// Messages shared by both providers, matching the hosted provider's wording.
const (
	MsgInvalidCredentials = "Invalid login credentials"
	MsgEmailNotConfirmed  = "Email not confirmed"
	MsgOTPSignupsDisabled = "Signups not allowed for otp"
	MsgOTPInvalid         = "Token has expired or is invalid"
	MsgUserNotFound       = "User not found"
	MsgInvalidRefresh     = "Invalid Refresh Token"
)
