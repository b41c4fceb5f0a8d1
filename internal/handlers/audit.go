package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/diewo77/bloodboard/httpx"
	"github.com/diewo77/bloodboard/internal/models"
	"github.com/diewo77/bloodboard/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type AuditHandler struct {
	audit *services.AuditService
	log   *zap.Logger
}

func NewAuditHandler(audit *services.AuditService, log *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, log: log}
}

func auditFilters(r *http.Request) models.AuditFilters {
	q := r.URL.Query()
	return services.ParseAuditFilters(q.Get("center_id"), q.Get("action"), q.Get("start_date"), q.Get("end_date"))
}

// List is the audit viewer: GET /dashboard/audit?center_id&action&start_date&end_date.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	f := auditFilters(r)
	q := r.URL.Query()
	data := map[string]any{
		"Filters": map[string]string{
			"CenterID":  f.CenterID,
			"Action":    f.Action,
			"StartDate": q.Get("start_date"),
			"EndDate":   q.Get("end_date"),
		},
		"Actions": []models.AuditAction{models.AuditCreate, models.AuditUpdate, models.AuditDelete},
		"Query":   r.URL.RawQuery,
	}

	logs, err := h.audit.ListAuditLogs(r.Context(), f)
	if err != nil {
		fail(w, r, h.log, err, "audit.html", data)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.Data(w, logs)
		return
	}
	centers, err := h.audit.CentersForAudit(r.Context())
	if err != nil {
		logFailure(h.log, r, err)
	}
	data["Logs"] = logs
	data["Centers"] = centers
	render(w, r, h.log, "audit.html", data)
}

// Export downloads the filtered audit entries as an xlsx workbook.
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	b, err := h.audit.ExportAuditLogs(r.Context(), auditFilters(r))
	if err != nil {
		logFailure(h.log, r, err)
		httpx.Fail(w, err)
		return
	}
	name := fmt.Sprintf("audit-log-%s.xlsx", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
