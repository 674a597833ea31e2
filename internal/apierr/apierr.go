package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error type mapped to HTTP status codes.
type Code int

const (
	CodeInternal        Code = iota // unexpected failure, surfaced as a generic 500
	CodeBadRequest                  // malformed client input
	CodePaymentRequired             // missing or unacceptable payment proof
	CodeUnauthorized                // upstream rejected credentials
	CodeRateLimited                 // upstream rate limited the request
	CodeUnavailable                 // upstream unreachable or returned 5xx
	CodeUnsupported                 // request shape is valid but not servable
)

// Error is a typed API error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// HTTPStatus maps an error to the status code the handler should write.
// Unknown errors map to 500 so internal detail is never leaked by accident.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	apiErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch apiErr.Code {
	case CodeBadRequest, CodeUnsupported:
		return http.StatusBadRequest
	case CodePaymentRequired:
		return http.StatusPaymentRequired
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Type returns the machine readable error type string used in response bodies.
func Type(err error) string {
	apiErr, ok := As(err)
	if !ok {
		return "internal_error"
	}
	switch apiErr.Code {
	case CodeBadRequest:
		return "bad_request"
	case CodePaymentRequired:
		return "payment_required"
	case CodeUnauthorized:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "provider_unavailable"
	case CodeUnsupported:
		return "unsupported"
	default:
		return "internal_error"
	}
}
