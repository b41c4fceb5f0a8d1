package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/diewo77/bloodboard/internal/apperrors"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// Result is the action envelope: either Data or Error is set.
type Result struct {
	Data                      any    `json:"data,omitempty"`
	Error                     string `json:"error,omitempty"`
	Message                   string `json:"message,omitempty"`
	RequiresEmailConfirmation bool   `json:"requiresEmailConfirmation,omitempty"`
}

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	var body []byte
	var err error
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			http.Error(w, `{"error":"encode_error"}`, http.StatusInternalServerError)
			return
		}
	} else {
		body = []byte("null")
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func JSONError(w http.ResponseWriter, status int, msg string, details any) {
	JSON(w, status, ErrorResponse{Error: msg, Details: details})
}

// Data writes {"data": v} with status 200.
func Data(w http.ResponseWriter, v any) {
	JSON(w, http.StatusOK, map[string]any{"data": v})
}

// Fail writes {"error": message} with the status mapped from the error kind.
// Errors outside the taxonomy are reported with a generic message.
func Fail(w http.ResponseWriter, err error) {
	msg := "Something went wrong"
	var ae *apperrors.Error
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	JSON(w, apperrors.HTTPStatus(err), Result{Error: msg})
}

// WantsJSON reports whether the client asked for JSON rather than HTML.
func WantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
