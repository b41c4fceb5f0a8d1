package main

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/bloodboard/auth"
	"github.com/diewo77/bloodboard/gate"
	"github.com/diewo77/bloodboard/httpx"
	"github.com/diewo77/bloodboard/i18n"
	"github.com/diewo77/bloodboard/internal/cache"
	"github.com/diewo77/bloodboard/internal/db"
	"github.com/diewo77/bloodboard/internal/handlers"
	"github.com/diewo77/bloodboard/internal/identity"
	"github.com/diewo77/bloodboard/internal/policy"
	"github.com/diewo77/bloodboard/internal/services"
	"github.com/diewo77/bloodboard/view"
)

// Deps are the boundaries the application is assembled from.
type Deps struct {
	DB       *gorm.DB
	Gate     *policy.AuthGate
	Sessions *auth.Manager
	Provider identity.Provider
	Cache    cache.Store
	CacheTTL time.Duration
	// Relay serves GET /realtime; nil disables the route.
	Relay  http.Handler
	Logger *zap.Logger
}

// App is the main application handler that sets up all routes.
type App struct {
	mux     *http.ServeMux
	deps    Deps
	handler http.Handler

	public    *handlers.PublicHandler
	auth      *handlers.AuthHandler
	dashboard *handlers.DashboardHandler
	centers   *handlers.CenterHandler
	audit     *handlers.AuditHandler
}

// NewApp creates a new application with all routes configured.
func NewApp(d Deps) *App {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	log := d.Logger

	shortageSvc := services.NewShortageService(d.DB, d.Gate, d.Cache, log.Named("shortages"))
	centerSvc := services.NewCenterService(d.DB, d.Gate, d.Provider, d.Cache, log.Named("centers"))
	authSvc := services.NewAuthService(d.DB, d.Provider, d.Gate, d.Cache, log.Named("auth"))
	auditSvc := services.NewAuditService(d.DB, d.Gate, log.Named("audit"))

	app := &App{
		mux:       http.NewServeMux(),
		deps:      d,
		public:    handlers.NewPublicHandler(shortageSvc, centerSvc, d.Cache, d.CacheTTL, log),
		auth:      handlers.NewAuthHandler(authSvc, centerSvc, d.Sessions, d.Cache, d.CacheTTL, log),
		dashboard: handlers.NewDashboardHandler(shortageSvc, centerSvc, d.Cache, d.CacheTTL, log),
		centers:   handlers.NewCenterHandler(centerSvc, log),
		audit:     handlers.NewAuditHandler(auditSvc, log),
	}

	// Templates check membership permissions through resolvers so view does not import policy.
	view.SetCanProfileResolver(func(r *http.Request, resource, action string) bool {
		return d.Gate.CanProfile(r.Context(), gate.Action(action), resource)
	})
	view.SetIsAdminResolver(func(r *http.Request) bool {
		return d.Gate.IsAdmin(r.Context())
	})

	app.setupRoutes()
	app.handler = withRequestLogging(log, d.Sessions.Middleware(withActor(withPreferences(app.mux))))
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// setupRoutes configures all application routes.
func (a *App) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Public routes (no auth required)
	// ─────────────────────────────────────────────────────────────────────────
	a.mux.HandleFunc("GET /{$}", a.public.Index)
	a.mux.HandleFunc("GET /api/shortages", a.public.Shortages)
	a.mux.HandleFunc("GET /api/centers", a.public.Centers)

	a.mux.HandleFunc("GET /login", a.auth.Login)
	a.mux.HandleFunc("POST /login", a.auth.Login)
	a.mux.HandleFunc("POST /login/otp", a.auth.SendOTP)
	a.mux.HandleFunc("POST /login/otp/verify", a.auth.VerifyOTP)
	a.mux.HandleFunc("GET /signup", a.auth.Signup)
	a.mux.HandleFunc("POST /signup", a.auth.Signup)
	a.mux.HandleFunc("POST /logout", a.auth.Logout)

	// The first center may be created before anyone has signed in.
	a.mux.HandleFunc("POST /centers", a.centers.Create)

	a.mux.HandleFunc("GET /healthz", a.healthz)
	if a.deps.Relay != nil {
		a.mux.Handle("GET /realtime", a.deps.Relay)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Member routes (require a session; services check the membership)
	// ─────────────────────────────────────────────────────────────────────────
	a.mux.Handle("GET /dashboard", a.requireAuth(a.dashboard.Dashboard))
	a.mux.Handle("GET /api/me/center", a.requireAuth(a.dashboard.MyCenter))
	a.mux.Handle("POST /dashboard/shortages", a.requireAuth(a.dashboard.CreateShortage))
	a.mux.Handle("POST /dashboard/shortages/{id}", a.requireAuth(a.dashboard.UpdateShortage))
	a.mux.Handle("POST /dashboard/shortages/{id}/delete", a.requireAuth(a.dashboard.DeleteShortage))
	a.mux.Handle("GET /api/centers/{id}/officials", a.requireAuth(a.dashboard.Officials))
	a.mux.Handle("POST /centers/{id}", a.requireAuth(a.centers.Update))
	a.mux.Handle("POST /centers/{id}/delete", a.requireAuth(a.centers.Delete))

	// ─────────────────────────────────────────────────────────────────────────
	// Admin routes
	// ─────────────────────────────────────────────────────────────────────────
	a.mux.Handle("GET /dashboard/audit", a.requireAdmin(a.audit.List))
	a.mux.Handle("GET /dashboard/audit/export", a.requirePermission(policy.ResourceAudit, gate.ActionExport, a.audit.Export))

	// ─────────────────────────────────────────────────────────────────────────
	// Static files
	// ─────────────────────────────────────────────────────────────────────────
	a.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))
}

// ─────────────────────────────────────────────────────────────────────────────
// Middleware
// ─────────────────────────────────────────────────────────────────────────────

// requireAuth wraps a handler to require authentication.
func (a *App) requireAuth(next http.HandlerFunc) http.Handler {
	return auth.RequireAuth(next)
}

// requireAdmin requires a session and an admin membership.
func (a *App) requireAdmin(next http.HandlerFunc) http.Handler {
	return auth.RequireAuth(a.deps.Gate.RequireAdmin(services.PathDashboard)(next))
}

// requirePermission requires a session whose role grants action on resourceType.
func (a *App) requirePermission(resourceType string, action gate.Action, next http.HandlerFunc) http.Handler {
	return auth.RequireAuth(a.deps.Gate.RequirePermission(resourceType, action)(next))
}

// withActor records who performs the request's writes, for the audit log.
func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserIDFromContext(r.Context())
		ctx := db.WithActor(r.Context(), db.Actor{UserID: userID, IPAddress: clientIP(r)})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// withPreferences injects language and theme preferences from cookies/query.
func withPreferences(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		lang := i18n.DetectLanguage(r.Header.Get("Accept-Language"))
		if c, err := r.Cookie("lang"); err == nil && i18n.Supported(c.Value) {
			lang = c.Value
		}
		if q := r.URL.Query().Get("lang"); i18n.Supported(q) {
			lang = q
			http.SetCookie(w, &http.Cookie{
				Name:     "lang",
				Value:    lang,
				Path:     "/",
				MaxAge:   86400 * 365,
				HttpOnly: true,
			})
		}
		ctx = i18n.WithLang(ctx, lang)

		if c, err := r.Cookie("theme"); err == nil && (c.Value == "light" || c.Value == "dark") {
			ctx = view.WithTheme(ctx, c.Value)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Hijack lets the websocket relay take over the connection.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// withRequestLogging logs method, path, status and duration of every request.
func withRequestLogging(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.deps.DB.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		a.deps.Logger.Warn("health check failed", zap.Error(err))
		httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
