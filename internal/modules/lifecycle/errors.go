package lifecycle

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrStoreUnavailable = errors.New("record store unavailable")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrConflict         = errors.New("record changed concurrently")
	ErrInFlight         = errors.New("another operation is in progress for this record")
	ErrUnknownDomain    = errors.New("unknown domain")
)

// ValidationError names the field whose precondition failed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Kind returns the taxonomy label of err, or "internal" for unclassified errors.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, ErrInvalidStatus):
		return "invalid_status"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInFlight):
		return "in_flight"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrUnknownDomain):
		return "unknown_domain"
	}
	return "internal"
}

// Retryable reports whether the failed attempt committed nothing and may be repeated.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrConflict) || errors.Is(err, ErrInFlight)
}

func isClassified(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInFlight) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrUnknownDomain)
}

// unavailable folds timeouts and unknown backend faults into ErrStoreUnavailable.
func unavailable(err error) error {
	if err == nil || isClassified(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: timed out", ErrStoreUnavailable)
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
