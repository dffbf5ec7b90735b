package reservation

import (
	"errors"
	"fmt"
)

var (
	ErrEventNotFound         = errors.New("event not found")
	ErrEventNotActive        = errors.New("event is not active")
	ErrOutsideSaleWindow     = errors.New("outside sale window")
	ErrTicketTypeNotFound    = errors.New("ticket type not found")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrReservationNotFound   = errors.New("reservation not found")
	ErrRateLimited           = errors.New("rate limited")
)

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

type InvalidQuantityError struct {
	TicketTypeID int64
	Quantity     int
	Min          int
	Max          int
}

func (e InvalidQuantityError) Error() string {
	return fmt.Sprintf(
		"invalid quantity %d for ticket type %d (allowed %d..%d)",
		e.Quantity, e.TicketTypeID, e.Min, e.Max,
	)
}

func (e InvalidQuantityError) Is(target error) bool {
	return target == ErrInvalidQuantity
}
