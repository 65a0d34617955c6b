// Package httpapi exposes the engine over HTTP: the webhook intake, the
// checkout and tier management endpoints, and the entitlement check.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// response is the uniform JSON envelope every endpoint renders.
type response struct {
	Data  any          `json:"data,omitempty"`
	Error *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// httpError carries a status code and a stable machine-readable key.
// Messages stay generic so processor-side details never leak to clients.
type httpError struct {
	status int
	code   string
	msg    string
}

func (e httpError) Error() string {
	return e.code
}

func newHTTPError(status int, code, msg string) httpError {
	return httpError{status: status, code: code, msg: msg}
}

var (
	errBadRequest    = newHTTPError(http.StatusBadRequest, "bad_request", "request body could not be parsed")
	errUnauthorized  = newHTTPError(http.StatusUnauthorized, "unauthorized", "signature verification failed")
	errNotFound      = newHTTPError(http.StatusNotFound, "not_found", "resource not found")
	errConflict      = newHTTPError(http.StatusConflict, "conflict", "request conflicts with current state")
	errTierFull      = newHTTPError(http.StatusConflict, "tier_full", "tier has no remaining capacity")
	errUnprocessable = newHTTPError(http.StatusUnprocessableEntity, "unprocessable", "request failed validation")
	errInternal      = newHTTPError(http.StatusInternalServerError, "internal_error", "internal error")
	errProviderDown  = newHTTPError(http.StatusServiceUnavailable, "provider_unavailable", "payment provider is unavailable")
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response{Data: data})
}

func writeError(w http.ResponseWriter, err httpError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(err.status)
	_ = json.NewEncoder(w).Encode(response{
		Error: &errorDetail{Code: err.code, Message: err.msg},
	})
}

// decodeJSON parses a request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
