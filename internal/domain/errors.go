package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the services wraps exactly one of them.
var (
	ErrValidation            = errors.New("validation failed")
	ErrUnauthenticated       = errors.New("authentication required")
	ErrPermission            = errors.New("permission denied")
	ErrNotFound              = errors.New("not found")
	ErrInsufficientInventory = errors.New("not enough tickets available")
	ErrInvalidState          = errors.New("invalid state")
)

var (
	ErrAlreadyPaid      = fmt.Errorf("%w: booking is already paid", ErrInvalidState)
	ErrPaymentNotMade   = fmt.Errorf("%w: payment has not been made", ErrInvalidState)
	ErrBookingCancelled = fmt.Errorf("%w: booking is cancelled", ErrInvalidState)
	ErrAlreadyCancelled = fmt.Errorf("%w: booking is already cancelled", ErrInvalidState)
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type InsufficientInventoryError struct {
	EventID   int64
	Requested int
	Available int
}

func (e InsufficientInventoryError) Error() string {
	return fmt.Sprintf(
		"event %d: requested %d tickets, %d available",
		e.EventID, e.Requested, e.Available,
	)
}

func (e InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}
