package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/diewo77/bloodboard/internal/services"
)

type CenterHandler struct {
	centers *services.CenterService
	log     *zap.Logger
}

func NewCenterHandler(centers *services.CenterService, log *zap.Logger) *CenterHandler {
	return &CenterHandler{centers: centers, log: log}
}

func centerInput(r *http.Request) services.CenterInput {
	return services.CenterInput{
		Name:         r.FormValue("name"),
		District:     r.FormValue("district"),
		Address:      r.FormValue("address"),
		Phone:        r.FormValue("phone"),
		OpeningHours: r.FormValue("opening_hours"),
	}
}

// Create is CreateCenter: POST /centers.
func (h *CenterHandler) Create(w http.ResponseWriter, r *http.Request) {
	c, err := h.centers.CreateCenter(r.Context(), centerInput(r))
	if err != nil {
		redirectWithError(w, r, h.log, err, services.PathDashboard)
		return
	}
	succeed(w, r, c, services.PathDashboard)
}

// Update is UpdateCenter: POST /centers/{id}.
func (h *CenterHandler) Update(w http.ResponseWriter, r *http.Request) {
	c, err := h.centers.UpdateCenter(r.Context(), r.PathValue("id"), centerInput(r))
	if err != nil {
		redirectWithError(w, r, h.log, err, services.PathDashboard)
		return
	}
	succeed(w, r, c, services.PathDashboard+"?tab=center")
}

// Delete is DeleteCenter: POST /centers/{id}/delete. The caller loses its membership.
func (h *CenterHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.centers.DeleteCenter(r.Context(), r.PathValue("id")); err != nil {
		redirectWithError(w, r, h.log, err, services.PathDashboard)
		return
	}
	succeed(w, r, map[string]any{"success": true}, services.PathHome)
}
