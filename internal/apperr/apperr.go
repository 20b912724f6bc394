// Package apperr holds the error taxonomy shared by the terminal engine,
// the remote store and the HTTP layer between them.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrInvalidState       = errors.New("invalid state")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrRemoteUnavailable  = errors.New("remote unavailable")
	ErrCredentialMismatch = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
)

// Validation wraps ErrValidation with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func InvalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// RemoteUnavailable wraps cause so both errors.Is checks keep working.
func RemoteUnavailable(cause error) error {
	return fmt.Errorf("%w: %w", ErrRemoteUnavailable, cause)
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrCredentialMismatch):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRemoteUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Message is the client-facing text for err. Credential failures are
// always generic so callers cannot tell which part was wrong.
func Message(err error) string {
	if errors.Is(err, ErrCredentialMismatch) {
		return "Invalid credentials"
	}
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "Internal server error"
	}
	return err.Error()
}

// FromStatus rebuilds a taxonomy error from an HTTP answer.
func FromStatus(code int, msg string) error {
	var base error
	switch code {
	case http.StatusBadRequest:
		base = ErrValidation
	case http.StatusUnauthorized:
		return ErrCredentialMismatch
	case http.StatusForbidden:
		base = ErrForbidden
	case http.StatusNotFound:
		base = ErrNotFound
	case http.StatusConflict:
		base = ErrConflict
	case http.StatusUnprocessableEntity:
		base = ErrInvalidState
	default:
		if code >= 500 {
			return RemoteUnavailable(fmt.Errorf("server answered %d: %s", code, msg))
		}
		return fmt.Errorf("unexpected status %d: %s", code, msg)
	}
	// the server already prefixed the sentinel text; don't repeat it
	msg = strings.TrimPrefix(msg, base.Error()+": ")
	return fmt.Errorf("%w: %s", base, msg)
}
