// Package handlers maps HTTP requests onto the service actions. Each action answers
// {"data": ...} or {"error": ...} to JSON clients and renders or redirects for browsers.
package handlers

import (
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/diewo77/bloodboard/httpx"
	"github.com/diewo77/bloodboard/internal/apperrors"
	"github.com/diewo77/bloodboard/view"
)

// logFailure records errors the user cannot act on.
func logFailure(log *zap.Logger, r *http.Request, err error) {
	if apperrors.KindOf(err) == apperrors.KindInternal {
		log.Error("action failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
}

// fail answers a failed action: the JSON envelope, or page re-rendered with the error message.
func fail(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error, page string, data map[string]any) {
	logFailure(log, r, err)
	if httpx.WantsJSON(r) {
		httpx.Fail(w, err)
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["Error"] = apperrors.Message(err)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(apperrors.HTTPStatus(err))
	render(w, r, log, page, data)
}

// succeed answers a successful action with the data envelope or a 303 to next.
func succeed(w http.ResponseWriter, r *http.Request, v any, next string) {
	if httpx.WantsJSON(r) {
		httpx.Data(w, v)
		return
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func render(w http.ResponseWriter, r *http.Request, log *zap.Logger, page string, data map[string]any) {
	if err := view.Render(w, r, page, data); err != nil {
		log.Error("render failed", zap.String("template", page), zap.Error(err))
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
	}
}

// redirectWithError sends browsers back to next with the error in the query string.
func redirectWithError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error, next string) {
	logFailure(log, r, err)
	if httpx.WantsJSON(r) {
		httpx.Fail(w, err)
		return
	}
	http.Redirect(w, r, next+"?error="+url.QueryEscape(apperrors.Message(err)), http.StatusSeeOther)
}
