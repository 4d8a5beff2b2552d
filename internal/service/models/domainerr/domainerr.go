// Package domainerr holds the error taxonomy shared by the service and transport layers.
package domainerr

import "errors"

var (
	// ErrEntityNotFound is returned when a referenced order or customer does not exist.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrInvalidEntity is returned when an aggregate invariant is violated.
	ErrInvalidEntity = errors.New("invalid entity")
	// ErrInvalidAction is returned when the current state does not permit the requested transition.
	ErrInvalidAction = errors.New("invalid action")
	// ErrInventoryUnavailable is returned when an item is missing or under-stocked.
	ErrInventoryUnavailable = errors.New("inventory unavailable")
	// ErrPriceUnavailable is returned when a price lookup fails while computing a total.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrConcurrentUpdate is returned when a stored aggregate changed since it was loaded.
	ErrConcurrentUpdate = errors.New("concurrent update")
)

// IsPermanent reports whether retrying the operation that produced err cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrEntityNotFound) ||
		errors.Is(err, ErrInvalidEntity) ||
		errors.Is(err, ErrInvalidAction) ||
		errors.Is(err, ErrInventoryUnavailable)
}
