package payment

import (
	"context"
	"time"
)

// SessionRequest describes the payment session to create with the provider.
type SessionRequest struct {
	ReservationID string    `json:"reservation_id"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Session is the provider's handle for a created payment session. The
// customer completes payment at RedirectURL; the provider reports the
// outcome back by webhook keyed on SessionID.
type Session struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// Gateway creates payment sessions with an external payment provider.
type Gateway interface {
	Provider() string
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}
