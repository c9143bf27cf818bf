// Package handlers implements the HTTP endpoints of the prior-art analysis
// API.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

// ErrorResponse is the standard error body: a stable machine code and a
// caller-safe message.  Internal detail never reaches the wire.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeAppError maps an application error onto its HTTP status using the
// error-code table.  The body always carries the code's default message,
// not the error text, so wrapped internals stay inside.
func writeAppError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	writeJSON(w, errors.HTTPStatusForCode(code), ErrorResponse{
		Code:    string(code),
		Message: errors.DefaultMessageForCode(code),
	})
}

// parsePage extracts limit/offset query parameters with the repository's
// clamping applied again at the edge.
func parsePage(r *http.Request) (limit, offset int) {
	limit = 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}
	return limit, offset
}
