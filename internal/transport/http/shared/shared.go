// Package shared centralizes JSON response writing so every handler emits the
// same envelopes.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "linkage/pkg/domain-errors"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into an HTTP response. Validation
// failures surface their message; everything else gets a generic envelope so
// store internals never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	message := "Internal Server Error"
	if code == dErrors.CodeBadRequest {
		message = "bad request"
		var coded *dErrors.Error
		if errors.As(err, &coded) {
			message = coded.Message
		}
	}

	WriteJSON(w, status, map[string]string{"error": message})
}
