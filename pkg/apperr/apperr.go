// Package apperr defines the error kinds surfaced to chat clients. Business
// rejections (NotFound, Unauthorized, InvalidState) are returned synchronously
// to the requesting actor; PersistenceFailure aborts the whole operation
// before any push is issued.
package apperr

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
	ErrPersistence  = errors.New("persistence failure")
)

// NotFoundf wraps ErrNotFound with context.
func NotFoundf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}

// Unauthorizedf wraps ErrUnauthorized with context.
func Unauthorizedf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrUnauthorized, format, args...)
}

// InvalidStatef wraps ErrInvalidState with context.
func InvalidStatef(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidState, format, args...)
}

// Persistence wraps a store error as a PersistenceFailure.
func Persistence(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(errors.WithMessage(ErrPersistence, err.Error()), msg)
}

// Kind returns the wire name for an error's kind. Unclassified errors report
// as persistence failures: the caller only needs to know the operation did
// not take effect.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	default:
		return "persistence_failure"
	}
}

// HTTPStatus maps an error kind onto an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
