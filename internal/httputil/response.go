// Package httputil provides JSON response helpers shared by handlers and
// middleware.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/glamlab/stylist-gateway/internal/apperr"
)

// ErrorResponse is the wire shape of every error the gateway returns.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Detail  string                 `json:"detail,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   string                 `json:"cause,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to its service error and writes the standard error
// shape. The underlying cause is only included in development mode.
func WriteError(w http.ResponseWriter, err error, development bool) {
	se := apperr.Get(err)
	if se == nil {
		se = apperr.Internal("internal server error", err)
	}

	resp := ErrorResponse{
		Error:   string(se.Code),
		Detail:  se.Message,
		Details: se.Details,
	}
	if development {
		if cause := se.Unwrap(); cause != nil {
			resp.Cause = cause.Error()
		}
	}
	WriteJSON(w, se.HTTPStatus, resp)
}

// Unauthorized writes a 401 with the standard error shape.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, apperr.Unauthorized(message), false)
}
