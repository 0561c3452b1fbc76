// Package httputil renders the service's JSON envelopes.
//
// Every body carries an "ok" flag. Failures add an "error" string; internal
// failures never include the underlying cause.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "sovren/pkg/domain-errors"
)

// ErrorResponse is the {ok:false, error} failure envelope.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into its status and failure envelope.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	WriteFailure(w, dErrors.ToHTTPStatus(code), dErrors.Message(err))
}

// WriteFailure writes a failure envelope with an explicit status and message.
func WriteFailure(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{OK: false, Error: msg})
}
