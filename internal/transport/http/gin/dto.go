package httpgin

import (
	"time"

	"github.com/ticketera/reserva/internal/domain"
)

type ReserveItemInput struct {
	TicketTypeID int64 `json:"ticket_type_id" binding:"required"`
	Quantity     int   `json:"quantity" binding:"required,gt=0"`
}

type ReserveRequest struct {
	UserID   int64              `json:"user_id" binding:"required"`
	EventID  int64              `json:"event_id" binding:"required"`
	Items    []ReserveItemInput `json:"items" binding:"required,min=1,dive"`
	Platform string             `json:"platform" binding:"omitempty,oneof=web app cash"`
	SellerID *int64             `json:"seller_id"`
}

type ReserveResponse struct {
	ReservationID string    `json:"reservation_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	TotalCents    int64     `json:"total_cents"`
	FeeCents      int64     `json:"fee_cents"`
	Currency      string    `json:"currency"`
}

type ReservationResponse struct {
	ReservationID string                   `json:"reservation_id"`
	Status        domain.ReservationStatus `json:"status"`
	ExpiresAt     time.Time                `json:"expires_at"`
	TotalCents    int64                    `json:"total_cents"`
	FeeCents      int64                    `json:"fee_cents"`
	Currency      string                   `json:"currency"`
	Items         []domain.ReservationItem `json:"items"`
}

type InitiatePaymentRequest struct {
	BillingName  string `json:"billing_name" binding:"required"`
	BillingEmail string `json:"billing_email" binding:"required,email"`
}

type InitiatePaymentResponse struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

type WebhookRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Result    string `json:"result" binding:"required,oneof=success failure"`
}

type WebhookResponse struct {
	OrderID string `json:"order_id,omitempty"`
	Status  string `json:"status"`
}

type TicketTypeInput struct {
	Name        string     `json:"name" binding:"required"`
	DayID       *int64     `json:"day_id"`
	PriceCents  int64      `json:"price_cents" binding:"required,gt=0"`
	Capacity    int        `json:"capacity" binding:"required,gt=0"`
	MinPerOrder int        `json:"min_per_order"`
	MaxPerOrder int        `json:"max_per_order"`
	SalesStart  *time.Time `json:"sales_start"`
	SalesEnd    *time.Time `json:"sales_end"`
	Active      *bool      `json:"active"`
}

type CreateEventRequest struct {
	OrganizationID int64             `json:"organization_id" binding:"required"`
	Title          string            `json:"title" binding:"required"`
	Status         string            `json:"status" binding:"omitempty,oneof=active inactive"`
	SalesStart     *time.Time        `json:"sales_start"`
	SalesEnd       *time.Time        `json:"sales_end"`
	TicketTypes    []TicketTypeInput `json:"ticket_types" binding:"omitempty,dive"`
}

type CreateEventResponse struct {
	EventID int64 `json:"event_id"`
}

type AddTicketTypesRequest struct {
	TicketTypes []TicketTypeInput `json:"ticket_types" binding:"required,min=1,dive"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (in TicketTypeInput) toDomain() domain.TicketType {
	t := domain.TicketType{
		DayID:       in.DayID,
		Name:        in.Name,
		PriceCents:  in.PriceCents,
		Capacity:    in.Capacity,
		MinPerOrder: in.MinPerOrder,
		MaxPerOrder: in.MaxPerOrder,
		SalesStart:  in.SalesStart,
		SalesEnd:    in.SalesEnd,
		Active:      true,
	}

	if t.MinPerOrder <= 0 {
		t.MinPerOrder = 1
	}

	if t.MaxPerOrder <= 0 {
		t.MaxPerOrder = 10
	}

	if in.Active != nil {
		t.Active = *in.Active
	}

	return t
}
