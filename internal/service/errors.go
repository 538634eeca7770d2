package service

import (
	"errors"
	"fmt"
)

// InsufficientStockError rejects a reservation attempt that asks for more
// units than are available for a SKU. The whole multi-item call is aborted.
type InsufficientStockError struct {
	SKU string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for SKU: %s", e.SKU)
}

var (
	// ErrReservationInvalid means the reservation group has no active
	// lines: it expired, was released, or never existed.
	ErrReservationInvalid = errors.New("reservation expired or invalid")

	// ErrInsufficientCapacity rejects a booking that exceeds the
	// session's remaining seats.
	ErrInsufficientCapacity = errors.New("insufficient capacity for this session")

	// ErrNotFound means a referenced entity is absent.
	ErrNotFound = errors.New("not found")
)
