package repository

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrReservationExpired    = errors.New("reservation expired")
	ErrReservationLapsed     = errors.New("reservation no longer active")
	ErrNothingToRelease      = errors.New("nothing to release")
	ErrInsufficientInventory = errors.New("insufficient inventory")
)

// InsufficientInventoryError names the ticket type whose conditional
// reserve update matched no row, meaning the requested quantity does not
// fit into capacity - sold - reserved.
type InsufficientInventoryError struct {
	TicketTypeID int64
	Requested    int
}

func (e InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for ticket type %d (requested %d)", e.TicketTypeID, e.Requested)
}

func (e InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}
