// Package handlers provides the HTTP handlers and middleware of the lingua
// API: the RPC dispatcher, the conversation endpoints and the websocket hub.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/scrypster/lingua/internal/apperr"
)

// ErrorResponse is the error body of every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ResultResponse wraps a successful RPC result.
type ResultResponse struct {
	Result any `json:"result"`
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent.
		slog.Default().Warn("handlers: failed to encode response", "error", err)
	}
}

// respondError maps err to its status code and wire code. Internal errors
// are logged with their cause and reported with their safe message only.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal || kind == apperr.KindTimeout {
		loggerFrom(r.Context()).Error("handlers: request failed",
			"path", r.URL.Path, "code", kind.String(), "error", err)
	}
	respondJSON(w, apperr.HTTPStatus(kind), ErrorResponse{
		Error: apperr.Message(err),
		Code:  kind.String(),
	})
}

// respondStatus writes an error that did not come from an operation.
func respondStatus(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}
