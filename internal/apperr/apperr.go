// Package apperr defines the error taxonomy shared by the session
// orchestration components and its mapping onto response codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed or missing required input.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a referenced entity that does not exist or has no resolvable match.
	ErrNotFound = errors.New("not found")
	// ErrStorage marks an unavailable store or a failed write.
	ErrStorage = errors.New("storage error")
	// ErrSubscription marks a broadcast subscription that dropped unexpectedly.
	ErrSubscription = errors.New("subscription error")
)

// Validation returns an error wrapping ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound returns an error wrapping ErrNotFound.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Storage wraps a store failure for operation op. NotFound errors pass through unchanged.
//
// Postcondition: Returns nil when err is nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// Subscription wraps a dropped subscription on topic.
func Subscription(topic string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s: stream closed", ErrSubscription, topic)
	}
	return fmt.Errorf("%w: %s: %w", ErrSubscription, topic, err)
}

// HTTPStatus maps err onto the status code surfaced to clients.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSubscription):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
