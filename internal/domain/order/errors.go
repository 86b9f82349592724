package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order operations.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotFound          = errors.New("order not found")
	ErrUnknownStatus     = errors.New("unknown order status")
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrEmptyItems is returned when a checkout carries no items.
	ErrEmptyItems = &InvalidFieldError{Field: "items", Reason: "at least one item is required"}
)

// InvalidFieldError describes a malformed checkout field.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidFieldError) Unwrap() error { return ErrInvalidRequest }

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	FoodID   int64
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for food %d, got %d", e.FoodID, e.Quantity)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidRequest }

// PricingError reports a failed catalog lookup. Err wraps catalog.ErrNotFound
// or catalog.ErrUnavailable.
type PricingError struct {
	FoodID int64
	Err    error
}

func (e *PricingError) Error() string {
	return fmt.Sprintf("price food %d: %v", e.FoodID, e.Err)
}

func (e *PricingError) Unwrap() error { return e.Err }

// PersistenceError reports a failed order commit. Nothing was stored.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist order: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }
