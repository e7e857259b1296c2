package core

import (
	"errors"
	"fmt"
)

// Error categories shared by the scheduler, the service layer and the HTTP API.
var (
	// ErrValidation marks user input rejected before it reaches the scheduler.
	ErrValidation = errors.New("validation error")
	// ErrPermissionDenied means the notification subsystem was never granted permission.
	ErrPermissionDenied = errors.New("notification permission denied")
	// ErrPastDue means the computed notify instant has already elapsed. It is a
	// skip, not a failure.
	ErrPastDue = errors.New("notify instant already elapsed")
	// ErrStoreUnavailable wraps persistent store read/write failures.
	ErrStoreUnavailable = errors.New("subscription store unavailable")
	ErrNotFound         = errors.New("subscription not found")
)

// ValidationError reports which field of a subscription was rejected.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}

// Unavailable wraps a store failure so callers can match ErrStoreUnavailable
// while keeping the driver error in the chain.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
