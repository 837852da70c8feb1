package core

import (
	"errors"
	"net/http"
)

// Failure taxonomy shared by every boundary. Components wrap these with
// fmt.Errorf("...: %w", Err...) so callers classify with errors.Is.
var (
	// ErrInvalidInput marks bad amounts or malformed facts, rejected at the
	// boundary and never partially applied.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks an unknown service, user, or reward.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a duplicate application. Grant paths treat it as
	// success-no-op so idempotent retries stay harmless.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientFunds rejects a balance adjustment that would go
	// negative; the previous balance is left untouched.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUnauthorized marks a failed token verification.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable marks an unreachable upstream or bus.
	ErrUnavailable = errors.New("unavailable")
)

// HTTPStatus maps a classified error onto the gateway-level status taxonomy.
// Unclassified errors are internal: logged with context, generic to callers.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInsufficientFunds):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
