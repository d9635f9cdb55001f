package models

import (
	"errors"
	"net/http"
)

// Kind classifies a failure surfaced to callers of the proxy
type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindRateLimited         Kind = "rate_limited"
	KindQuotaExhausted      Kind = "quota_exhausted"
	KindMalformedResponse   Kind = "malformed_response"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
)

// Status returns the HTTP status used for this kind
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindQuotaExhausted:
		return http.StatusForbidden
	case KindMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}

// Retryable reports whether a user-initiated retry may succeed
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimited, KindMalformedResponse, KindUpstreamUnavailable:
		return true
	default:
		return false
	}
}

// Error is a classified failure with an HTTP-style status
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error using the default status for kind
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Status: kind.Status(), Message: message}
}

// WrapError creates a classified error that wraps cause
func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Status: kind.Status(), Message: message, Err: cause}
}

// KindOf returns the kind of err, or KindUpstreamUnavailable for
// unclassified errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstreamUnavailable
}

// IsKind reports whether err is classified as kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ErrorResponse is the JSON failure body returned by the proxy
type ErrorResponse struct {
	Kind  Kind   `json:"kind"`
	Error string `json:"error"`
}
