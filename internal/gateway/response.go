package gateway

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in error envelopes.
const (
	codeInvalidRequest = "invalid_request"
	codeInvalidAlert   = "invalid_alert"
	codeUnsupported    = "unsupported_alert"
	codeNotFound       = "not_found"
	codeNotReady       = "not_ready"
	codeUnsupportedOp  = "unsupported_operation"
	codeUnauthorized   = "unauthorized"
	codeRateLimited    = "rate_limited"
	codeUnavailable    = "unavailable"
	codeInternal       = "internal"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one rejected request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
