package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/diewo77/bloodboard/httpx"
	"github.com/diewo77/bloodboard/internal/apperrors"
	"github.com/diewo77/bloodboard/internal/cache"
	"github.com/diewo77/bloodboard/internal/listing"
	"github.com/diewo77/bloodboard/internal/models"
	"github.com/diewo77/bloodboard/internal/services"
	"github.com/diewo77/bloodboard/view"
)

// DashboardHandler serves the member dashboard and the shortage actions behind it.
type DashboardHandler struct {
	shortages *services.ShortageService
	centers   *services.CenterService
	cache     cache.Store
	ttl       time.Duration
	log       *zap.Logger
}

func NewDashboardHandler(shortages *services.ShortageService, centers *services.CenterService, store cache.Store, ttl time.Duration, log *zap.Logger) *DashboardHandler {
	return &DashboardHandler{shortages: shortages, centers: centers, cache: store, ttl: ttl, log: log}
}

func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := map[string]any{
		"Error":      r.URL.Query().Get("error"),
		"BloodTypes": models.BloodTypes,
		"Statuses":   models.Statuses,
		"Manage":     true,
		"Tab":        r.URL.Query().Get("tab"),
		"Officials":  []models.Official{},
	}

	member, err := h.shortages.GetUserCenter(ctx)
	if err != nil {
		if apperrors.KindOf(err) != apperrors.KindNotFound {
			fail(w, r, h.log, err, "dashboard.html", data)
			return
		}
		if httpx.WantsJSON(r) {
			httpx.Fail(w, err)
			return
		}
		data["NoCenter"] = true
		render(w, r, h.log, "dashboard.html", data)
		return
	}

	shortages, err := cache.Load(ctx, h.cache, services.PathDashboard+"/"+member.CenterID, h.ttl, func() ([]models.Shortage, error) {
		return h.shortages.GetShortagesByCenter(ctx, member.CenterID)
	})
	if err != nil {
		fail(w, r, h.log, err, "dashboard.html", data)
		return
	}

	var officials []models.Official
	if member.IsAdmin() {
		officials, err = h.centers.GetOfficialsForCenter(ctx, member.CenterID)
		if err != nil {
			h.log.Warn("error loading officials", zap.String("center_id", member.CenterID), zap.Error(err))
		}
	}

	if httpx.WantsJSON(r) {
		httpx.Data(w, map[string]any{
			"membership": member,
			"shortages":  shortages,
			"officials":  officials,
		})
		return
	}

	data["Member"] = member
	data["Center"] = member.Center
	data["Shortages"] = shortages
	data["Empty"] = listing.EmptyMessage(len(shortages), len(shortages))
	if officials != nil {
		data["Officials"] = officials
	}
	data["IsAdmin"] = member.IsAdmin()
	if r.URL.Query().Get("partial") == "1" {
		if err := view.RenderPartial(w, r, "shortage-list", data); err != nil {
			h.log.Error("render failed", zap.String("template", "shortage-list"), zap.Error(err))
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
		return
	}
	render(w, r, h.log, "dashboard.html", data)
}

// MyCenter is GetUserCenter: GET /api/me/center.
func (h *DashboardHandler) MyCenter(w http.ResponseWriter, r *http.Request) {
	member, err := h.shortages.GetUserCenter(r.Context())
	if err != nil {
		logFailure(h.log, r, err)
		httpx.Fail(w, err)
		return
	}
	httpx.Data(w, member)
}

func shortageInput(r *http.Request) services.ShortageInput {
	return services.ShortageInput{
		BloodType: r.FormValue("blood_type"),
		Status:    r.FormValue("status"),
		Notes:     r.FormValue("notes"),
	}
}

func (h *DashboardHandler) CreateShortage(w http.ResponseWriter, r *http.Request) {
	sh, err := h.shortages.CreateShortage(r.Context(), shortageInput(r))
	if err != nil {
		redirectWithError(w, r, h.log, err, services.PathDashboard)
		return
	}
	succeed(w, r, sh, services.PathDashboard)
}

func (h *DashboardHandler) UpdateShortage(w http.ResponseWriter, r *http.Request) {
	sh, err := h.shortages.UpdateShortage(r.Context(), r.PathValue("id"), shortageInput(r))
	if err != nil {
		redirectWithError(w, r, h.log, err, services.PathDashboard)
		return
	}
	succeed(w, r, sh, services.PathDashboard)
}

func (h *DashboardHandler) DeleteShortage(w http.ResponseWriter, r *http.Request) {
	if err := h.shortages.DeleteShortage(r.Context(), r.PathValue("id")); err != nil {
		redirectWithError(w, r, h.log, err, services.PathDashboard)
		return
	}
	succeed(w, r, map[string]any{"success": true}, services.PathDashboard)
}

// Officials is GetOfficialsForCenter: GET /api/centers/{id}/officials.
func (h *DashboardHandler) Officials(w http.ResponseWriter, r *http.Request) {
	officials, err := h.centers.GetOfficialsForCenter(r.Context(), r.PathValue("id"))
	if err != nil {
		logFailure(h.log, r, err)
		httpx.Fail(w, err)
		return
	}
	httpx.Data(w, officials)
}
