package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel error kinds. Every error crossing a service boundary wraps exactly
// one of these so handlers can map it to an HTTP status without inspecting
// message text.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrBadTransition = errors.New("bad transition")
	ErrValidation    = errors.New("validation failed")
	ErrInfra         = errors.New("infrastructure failure")
)

// NotFound wraps ErrNotFound with a formatted message.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Conflict wraps ErrConflict with a formatted message.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}

// Unauthorized wraps ErrUnauthorized with a formatted message.
func Unauthorized(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUnauthorized}, args...)...)
}

// BadTransition wraps ErrBadTransition with a formatted message.
func BadTransition(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrBadTransition}, args...)...)
}

// Validation wraps ErrValidation with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Infra wraps ErrInfra around a lower-level cause.
func Infra(cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrInfra, msg)
	}
	return fmt.Errorf("%w: %s: %v", ErrInfra, msg, cause)
}

// HTTPStatus maps a taxonomy error to its response code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrBadTransition), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrInfra):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
