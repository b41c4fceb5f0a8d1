package handlers

import (
	"context"
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

const (
	keyPublicListing = "/"
	keyCenters       = "/api/centers"
)

// listingPayload is what the public page fetches on load and on every change event.
type listingPayload struct {
	Shortages []models.Shortage `json:"shortages"`
	Centers   []models.Center   `json:"centers"`
}

type PublicHandler struct {
	shortages *services.ShortageService
	centers   *services.CenterService
	cache     cache.Store
	ttl       time.Duration
	log       *zap.Logger
}

func NewPublicHandler(shortages *services.ShortageService, centers *services.CenterService, store cache.Store, ttl time.Duration, log *zap.Logger) *PublicHandler {
	return &PublicHandler{shortages: shortages, centers: centers, cache: store, ttl: ttl, log: log}
}

func (h *PublicHandler) load(ctx context.Context) (listingPayload, error) {
	return cache.Load(ctx, h.cache, keyPublicListing, h.ttl, func() (listingPayload, error) {
		shortages, err := h.shortages.GetShortages(ctx, services.ShortageFilters{})
		if err != nil {
			return listingPayload{}, err
		}
		centers, err := h.centers.GetCenters(ctx)
		if err != nil {
			return listingPayload{}, err
		}
		return listingPayload{Shortages: shortages, Centers: centers}, nil
	})
}

// filterFromQuery reads ?q&blood_type&district&status.
func filterFromQuery(r *http.Request) listing.Filter {
	q := r.URL.Query()
	return listing.Filter{
		Search:    q.Get("q"),
		BloodType: q.Get("blood_type"),
		District:  q.Get("district"),
		Status:    q.Get("status"),
	}
}

// Index renders the public listing. ?partial=1 returns only the list fragment.
func (h *PublicHandler) Index(w http.ResponseWriter, r *http.Request) {
	state := listing.NewState(filterFromQuery(r))
	payload, err := h.load(r.Context())
	if err != nil {
		logFailure(h.log, r, err)
		if httpx.WantsJSON(r) {
			httpx.Fail(w, err)
			return
		}
		state = listing.Reduce(state, listing.Loaded{})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		h.renderListing(w, r, map[string]any{"State": state, "Error": apperrors.Message(err)})
		return
	}
	state = listing.Reduce(state, listing.Loaded{Shortages: payload.Shortages, Centers: payload.Centers})

	if httpx.WantsJSON(r) {
		httpx.Data(w, map[string]any{
			"shortages": state.Visible,
			"summary":   state.Summary,
			"districts": state.Districts,
			"empty":     state.EmptyMessage(),
		})
		return
	}
	h.renderListing(w, r, map[string]any{"State": state})
}

func (h *PublicHandler) renderListing(w http.ResponseWriter, r *http.Request, data map[string]any) {
	if st, ok := data["State"].(listing.State); ok {
		data["Shortages"] = st.Visible
		data["Summary"] = st.Summary
		data["Empty"] = st.EmptyMessage()
	}
	data["BloodTypes"] = models.BloodTypes
	data["Statuses"] = models.Statuses
	if r.URL.Query().Get("partial") == "1" {
		if err := view.RenderPartial(w, r, "shortage-list", data); err != nil {
			h.log.Error("render failed", zap.String("template", "shortage-list"), zap.Error(err))
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
		return
	}
	render(w, r, h.log, "index.html", data)
}

// Shortages is GetShortages: GET /api/shortages?blood_type&district&status.
func (h *PublicHandler) Shortages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := services.ShortageFilters{
		BloodType: q.Get("blood_type"),
		District:  q.Get("district"),
		Status:    q.Get("status"),
	}
	key := r.URL.Path
	if r.URL.RawQuery != "" {
		key += "/" + r.URL.RawQuery
	}
	shortages, err := cache.Load(r.Context(), h.cache, key, h.ttl, func() ([]models.Shortage, error) {
		return h.shortages.GetShortages(r.Context(), f)
	})
	if err != nil {
		logFailure(h.log, r, err)
		httpx.Fail(w, err)
		return
	}
	httpx.Data(w, shortages)
}

// Centers is GetCenters: GET /api/centers.
func (h *PublicHandler) Centers(w http.ResponseWriter, r *http.Request) {
	centers, err := cache.Load(r.Context(), h.cache, keyCenters, h.ttl, func() ([]models.Center, error) {
		return h.centers.GetCenters(r.Context())
	})
	if err != nil {
		logFailure(h.log, r, err)
		httpx.Fail(w, err)
		return
	}
	httpx.Data(w, centers)
}
