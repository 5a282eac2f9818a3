package usecase

import (
	"errors"
	"fmt"

	domain "github.com/aq2208/storefront-api/internal/entity"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrDuplicate           = errors.New("duplicate idempotency key")
	ErrInUse               = errors.New("resource in use")

	// ErrVersionConflict is returned by stores when a compare-and-swap write
	// finds a newer version. Lifecycle retries on it.
	ErrVersionConflict = errors.New("version conflict")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type NotFoundError struct {
	Kind string // product | order | notification
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Kind, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type InvalidTransitionError struct {
	From domain.Status
	To   domain.Status
}

func (e *InvalidTransitionError) Error() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("invalid status transition: %s is terminal", e.From)
	}
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

type ConcurrencyConflictError struct {
	OrderID  string
	Attempts int
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on order %q after %d attempts", e.OrderID, e.Attempts)
}

func (e *ConcurrencyConflictError) Unwrap() error { return ErrConcurrencyConflict }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
