package checkout

import "errors"

var (
	ErrReservationNotFound = errors.New("reservation not found")
	ErrReservationExpired  = errors.New("reservation is expired")
	ErrReservationLapsed   = errors.New("reservation already reached a terminal state")

	// ErrPaymentForLapsedReservation marks a confirmed payment whose
	// reservation lapsed before the confirmation arrived. The money was
	// taken, no tickets exist; the case needs a manual refund.
	ErrPaymentForLapsedReservation = errors.New("payment received for a lapsed reservation")
)
