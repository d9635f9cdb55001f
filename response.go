package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"musicseed-go/models"
)

// APIResponse handles consistent header setting and JSON responses
type APIResponse struct {
	w         http.ResponseWriter
	r         *http.Request
	provider  string
	limit     int
	remaining int
	hasLimit  bool
}

// Respond creates a response helper from request context
func Respond(w http.ResponseWriter, r *http.Request) *APIResponse {
	return &APIResponse{w: w, r: r}
}

// SetProvider sets the X-Provider header value
func (a *APIResponse) SetProvider(provider string) *APIResponse {
	a.provider = provider
	return a
}

// SetRateLimit sets the X-RateLimit-Limit and X-RateLimit-Remaining headers
func (a *APIResponse) SetRateLimit(limit, remaining int) *APIResponse {
	a.limit = limit
	a.remaining = remaining
	a.hasLimit = true
	return a
}

// writeHeaders sets all standard headers based on context
func (a *APIResponse) writeHeaders() {
	a.w.Header().Set("Content-Type", "application/json")

	if a.provider != "" {
		a.w.Header().Set("X-Provider", a.provider)
	}
	if a.hasLimit {
		a.w.Header().Set("X-RateLimit-Limit", strconv.Itoa(a.limit))
		a.w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(a.remaining))
	}
}

// JSON writes headers and encodes data as JSON (200 OK)
func (a *APIResponse) JSON(data interface{}) error {
	a.writeHeaders()
	return json.NewEncoder(a.w).Encode(data)
}

// Error writes headers, sets status code, and encodes error response
func (a *APIResponse) Error(statusCode int, data interface{}) error {
	a.writeHeaders()
	a.w.WriteHeader(statusCode)
	return json.NewEncoder(a.w).Encode(data)
}

// Fail writes err as a {"kind","error"} body with the status of its kind.
// Unclassified errors are reported as upstream_unavailable without their text.
func (a *APIResponse) Fail(err error) error {
	var classified *models.Error
	if !errors.As(err, &classified) {
		classified = models.WrapError(models.KindUpstreamUnavailable, "AI service request failed", err)
	}

	status := classified.Status
	if status == 0 {
		status = classified.Kind.Status()
	}
	return a.Error(status, models.ErrorResponse{Kind: classified.Kind, Error: classified.Message})
}

// Options answers a bare OPTIONS request with 200 and an empty body
func (a *APIResponse) Options(allowed string) {
	a.w.Header().Set("Allow", allowed)
	a.w.WriteHeader(http.StatusOK)
}

// MethodNotAllowed writes a 405 with the allowed method
func (a *APIResponse) MethodNotAllowed(allowed string) error {
	a.w.Header().Set("Allow", allowed)
	return a.Error(http.StatusMethodNotAllowed, models.ErrorResponse{
		Kind:  models.KindValidation,
		Error: "method not allowed",
	})
}
