// Package httputil writes the {"ok": ...} envelopes shared by every
// gateway endpoint.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// errorResponse is the failure envelope.
type errorResponse struct {
	OK            bool   `json:"ok"`
	Error         string `json:"error"`
	Message       string `json:"message"`
	Details       string `json:"details,omitempty"`
	BackendStatus int    `json:"backendStatus,omitempty"`
}

// JSON writes body as-is with the given status. Success bodies carry their
// own "ok": true field.
func JSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// NoStore marks the response as non-cacheable.
func NoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}

// Error writes a failure envelope without diagnostics.
func Error(w http.ResponseWriter, status int, code, message string) {
	ErrorDetails(w, status, code, message, "", 0)
}

// ErrorDetails writes a failure envelope. details and backendStatus are
// omitted when empty.
func ErrorDetails(w http.ResponseWriter, status int, code, message, details string, backendStatus int) {
	JSON(w, status, errorResponse{
		OK:            false,
		Error:         code,
		Message:       message,
		Details:       details,
		BackendStatus: backendStatus,
	})
}
