package admin

import "errors"

var (
	ErrEventConflict      = errors.New("event already exists")
	ErrTicketTypeConflict = errors.New("ticket type already exists")
	ErrEventNotFound      = errors.New("event not found")
)
