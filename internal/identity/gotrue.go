package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/diewo77/bloodboard/auth"
)

// GoTrueConfig configures the hosted auth server client.
type GoTrueConfig struct {
	// URL is the project URL; the client talks to URL + "/auth/v1".
	URL            string
	AnonKey        string
	ServiceRoleKey string
	// SiteURL is where confirmation emails redirect to.
	SiteURL string
}

// GoTrue is a Provider backed by a GoTrue REST server.
type GoTrue struct {
	client *resty.Client
	cfg    GoTrueConfig
	logger *zap.Logger
}

type gotrueUser struct {
	ID               string           `json:"id"`
	Email            string           `json:"email"`
	EmailConfirmedAt *time.Time       `json:"email_confirmed_at"`
	Identities       []map[string]any `json:"identities"`
}

func (u *gotrueUser) toUser() *User {
	if u == nil || u.ID == "" {
		return nil
	}
	return &User{ID: u.ID, Email: u.Email, EmailConfirmedAt: u.EmailConfirmedAt, Identities: len(u.Identities)}
}

type gotrueSession struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int         `json:"expires_in"`
	User         *gotrueUser `json:"user"`
}

func (s *gotrueSession) toSession() *Session {
	if s == nil || s.AccessToken == "" {
		return nil
	}
	return &Session{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken, ExpiresIn: s.ExpiresIn, User: s.User.toUser()}
}

// gotrueSignup is either a session (auto-confirm) or a bare user (confirmation required).
type gotrueSignup struct {
	gotrueSession
	gotrueUser
}

type gotrueError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e *gotrueError) message() string {
	for _, m := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

func NewGoTrue(cfg GoTrueConfig, logger *zap.Logger) *GoTrue {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")+"/auth/v1").
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("apikey", cfg.AnonKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		// only idempotent reads are retried
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &GoTrue{client: client, cfg: cfg, logger: logger}
}

// check turns a transport failure or a non-2xx response into an error.
func (g *GoTrue) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		g.logger.Error("auth server call failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("auth server %s: %w", op, err)
	}
	if resp.IsError() {
		msg := ""
		if e, ok := resp.Error().(*gotrueError); ok {
			msg = e.message()
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		g.logger.Info("auth server rejected request", zap.String("op", op), zap.Int("status", resp.StatusCode()), zap.String("msg", msg))
		return &Error{Status: resp.StatusCode(), Message: msg}
	}
	return nil
}

func (g *GoTrue) admin(ctx context.Context) *resty.Request {
	return g.client.R().SetContext(ctx).
		SetHeader("apikey", g.cfg.ServiceRoleKey).
		SetAuthToken(g.cfg.ServiceRoleKey).
		SetError(&gotrueError{})
}

func (g *GoTrue) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var out gotrueSession
	resp, err := g.client.R().SetContext(ctx).
		SetQueryParam("grant_type", "password").
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).SetError(&gotrueError{}).
		Post("/token")
	if err := g.check("sign_in", resp, err); err != nil {
		return nil, err
	}
	return out.toSession(), nil
}

func (g *GoTrue) SignUp(ctx context.Context, email, password string) (*SignUpResult, error) {
	var out gotrueSignup
	req := g.client.R().SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).SetError(&gotrueError{})
	if g.cfg.SiteURL != "" {
		req.SetQueryParam("redirect_to", g.cfg.SiteURL)
	}
	resp, err := req.Post("/signup")
	if err := g.check("sign_up", resp, err); err != nil {
		return nil, err
	}
	if s := out.gotrueSession.toSession(); s != nil {
		return &SignUpResult{User: s.User, Session: s}, nil
	}
	return &SignUpResult{User: out.gotrueUser.toUser()}, nil
}

func (g *GoTrue) SignOut(ctx context.Context, accessToken string) error {
	resp, err := g.client.R().SetContext(ctx).
		SetAuthToken(accessToken).
		SetError(&gotrueError{}).
		Post("/logout")
	return g.check("sign_out", resp, err)
}

func (g *GoTrue) SendOTP(ctx context.Context, email string) error {
	resp, err := g.client.R().SetContext(ctx).
		SetBody(map[string]any{"email": email, "create_user": false}).
		SetError(&gotrueError{}).
		Post("/otp")
	return g.check("send_otp", resp, err)
}

func (g *GoTrue) VerifyOTP(ctx context.Context, email, token string) (*Session, error) {
	var out gotrueSession
	resp, err := g.client.R().SetContext(ctx).
		SetBody(map[string]string{"type": "email", "email": email, "token": token}).
		SetResult(&out).SetError(&gotrueError{}).
		Post("/verify")
	if err := g.check("verify_otp", resp, err); err != nil {
		return nil, err
	}
	s := out.toSession()
	if s == nil {
		return nil, &Error{Status: http.StatusBadRequest, Message: MsgOTPInvalid}
	}
	return s, nil
}

func (g *GoTrue) GetUser(ctx context.Context, userID string) (*User, error) {
	var out gotrueUser
	resp, err := g.admin(ctx).SetResult(&out).Get("/admin/users/" + userID)
	if err := g.check("get_user", resp, err); err != nil {
		return nil, err
	}
	return out.toUser(), nil
}

func (g *GoTrue) DeleteUser(ctx context.Context, userID string) error {
	resp, err := g.admin(ctx).Delete("/admin/users/" + userID)
	return g.check("delete_user", resp, err)
}

func (g *GoTrue) Refresh(ctx context.Context, refreshToken string) (*auth.Tokens, error) {
	var out gotrueSession
	resp, err := g.client.R().SetContext(ctx).
		SetQueryParam("grant_type", "refresh_token").
		SetBody(map[string]string{"refresh_token": refreshToken}).
		SetResult(&out).SetError(&gotrueError{}).
		Post("/token")
	if err := g.check("refresh", resp, err); err != nil {
		return nil, err
	}
	return &auth.Tokens{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}, nil
}

var _ Provider = (*GoTrue)(nil)
