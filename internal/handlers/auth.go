package handlers

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/diewo77/bloodboard/auth"
	"github.com/diewo77/bloodboard/httpx"
	"github.com/diewo77/bloodboard/internal/cache"
	"github.com/diewo77/bloodboard/internal/identity"
	"github.com/diewo77/bloodboard/internal/models"
	"github.com/diewo77/bloodboard/internal/services"
)

const keySignupCenters = services.PathSignup + "/centers"

type AuthHandler struct {
	auth     *services.AuthService
	centers  *services.CenterService
	sessions *auth.Manager
	cache    cache.Store
	ttl      time.Duration
	log      *zap.Logger
}

func NewAuthHandler(authSvc *services.AuthService, centers *services.CenterService, sessions *auth.Manager, store cache.Store, ttl time.Duration, log *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: authSvc, centers: centers, sessions: sessions, cache: store, ttl: ttl, log: log}
}

// startSession stores the provider session in the cookie and answers the action.
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, s *identity.Session, page string, data map[string]any) {
	if err := h.sessions.CreateSession(w, r, s.Tokens()); err != nil {
		h.log.Error("failed to save session", zap.Error(err))
		fail(w, r, h.log, err, page, data)
		return
	}
	succeed(w, r, map[string]any{"user": s.User}, services.PathDashboard)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		render(w, r, h.log, "login.html", map[string]any{
			"Email":   r.URL.Query().Get("email"),
			"Error":   r.URL.Query().Get("error"),
			"Message": r.URL.Query().Get("message"),
		})
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	data := map[string]any{"Email": email}
	session, err := h.auth.Login(r.Context(), email, r.FormValue("password"))
	if err != nil {
		// a failed attempt must not leave an earlier account signed in
		h.sessions.ClearSession(w, r)
		fail(w, r, h.log, err, "login.html", data)
		return
	}
	h.startSession(w, r, session, "login.html", data)
}

// SendOTP emails a one-time code to an existing account.
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	data := map[string]any{"Email": email}
	msg, err := h.auth.SendOTP(r.Context(), email)
	if err != nil {
		fail(w, r, h.log, err, "login.html", data)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, httpx.Result{Data: map[string]any{"email": email}, Message: msg})
		return
	}
	data["OTPSent"] = true
	data["Message"] = msg
	render(w, r, h.log, "login.html", data)
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	data := map[string]any{"Email": email, "OTPSent": true}
	session, err := h.auth.VerifyOTP(r.Context(), email, strings.TrimSpace(r.FormValue("token")))
	if err != nil {
		h.sessions.ClearSession(w, r)
		fail(w, r, h.log, err, "login.html", data)
		return
	}
	h.startSession(w, r, session, "login.html", data)
}

func (h *AuthHandler) signupCenters(r *http.Request) []models.Center {
	centers, err := cache.Load(r.Context(), h.cache, keySignupCenters, h.ttl, func() ([]models.Center, error) {
		return h.centers.GetCenters(r.Context())
	})
	if err != nil {
		logFailure(h.log, r, err)
	}
	return centers
}

func signupInput(r *http.Request) services.SignupInput {
	return services.SignupInput{
		Role:       r.FormValue("role"),
		Email:      strings.TrimSpace(r.FormValue("email")),
		Password:   r.FormValue("password"),
		CenterName: r.FormValue("center_name"),
		District:   r.FormValue("district"),
		Address:    r.FormValue("address"),
		Phone:      r.FormValue("phone"),
		CenterID:   r.FormValue("center_id"),
	}
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		render(w, r, h.log, "signup.html", map[string]any{
			"Centers": h.signupCenters(r),
			"Form":    services.SignupInput{Role: string(models.AccountBloodBank)},
		})
		return
	}

	in := signupInput(r)
	res, err := h.auth.Signup(r.Context(), in)
	if err != nil {
		in.Password = ""
		fail(w, r, h.log, err, "signup.html", map[string]any{"Centers": h.signupCenters(r), "Form": in})
		return
	}

	if res.Session != nil {
		if err := h.sessions.CreateSession(w, r, res.Session.Tokens()); err != nil {
			h.log.Error("failed to save session", zap.Error(err))
		}
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, httpx.Result{
			Data: map[string]any{
				"user_id":     res.UserID,
				"center_id":   res.CenterID,
				"center_name": res.CenterName,
			},
			Message:                   res.Message,
			RequiresEmailConfirmation: res.RequiresEmailConfirmation,
		})
		return
	}
	if res.Session == nil {
		render(w, r, h.log, "login.html", map[string]any{"Email": in.Email, "Message": res.Message})
		return
	}
	http.Redirect(w, r, services.PathDashboard, http.StatusSeeOther)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		h.auth.SignOut(r.Context(), p.AccessToken)
	}
	h.sessions.ClearSession(w, r)
	succeed(w, r, map[string]any{"success": true}, "/login")
}
