package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventActive   EventStatus = "active"
	EventInactive EventStatus = "inactive"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationExpired   ReservationStatus = "expired"
	ReservationConverted ReservationStatus = "converted"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationExpired || s == ReservationConverted || s == ReservationCancelled
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type TicketStatus string

const (
	TicketValid       TicketStatus = "valid"
	TicketUsed        TicketStatus = "used"
	TicketCancelled   TicketStatus = "cancelled"
	TicketTransferred TicketStatus = "transferred"
)

type Platform string

const (
	PlatformWeb  Platform = "web"
	PlatformApp  Platform = "app"
	PlatformCash Platform = "cash"
)

type Event struct {
	ID             int64       `json:"id"`
	OrganizationID int64       `json:"organization_id"`
	Title          string      `json:"title"`
	Status         EventStatus `json:"status"`
	SalesStart     *time.Time  `json:"sales_start,omitempty"`
	SalesEnd       *time.Time  `json:"sales_end,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// TicketType carries the inventory ledger counters. capacity is immutable
// after event activation; sold_count and reserved_count are mutated only
// through conditional updates that preserve
// sold_count + reserved_count <= capacity.
type TicketType struct {
	ID            int64      `json:"id"`
	EventID       int64      `json:"event_id"`
	DayID         *int64     `json:"day_id,omitempty"`
	Name          string     `json:"name"`
	PriceCents    int64      `json:"price_cents"`
	Capacity      int        `json:"capacity"`
	SoldCount     int        `json:"sold_count"`
	ReservedCount int        `json:"reserved_count"`
	MinPerOrder   int        `json:"min_per_order"`
	MaxPerOrder   int        `json:"max_per_order"`
	SalesStart    *time.Time `json:"sales_start,omitempty"`
	SalesEnd      *time.Time `json:"sales_end,omitempty"`
	Active        bool       `json:"active"`
}

func (t TicketType) Available() int {
	return t.Capacity - t.SoldCount - t.ReservedCount
}

// Reservation is a time-bound claim on inventory. It is the only writer of
// reserved_count increments; expiry, cancellation and conversion release the
// claim exactly once via a conditional status flip.
type Reservation struct {
	ID               uuid.UUID         `json:"id"`
	UserID           int64             `json:"user_id"`
	EventID          int64             `json:"event_id"`
	TotalCents       int64             `json:"total_cents"`
	FeeCents         int64             `json:"fee_cents"`
	Currency         string            `json:"currency"`
	Platform         Platform          `json:"platform"`
	SellerID         *int64            `json:"seller_id,omitempty"`
	Status           ReservationStatus `json:"status"`
	ExpiresAt        time.Time         `json:"expires_at"`
	PaymentProvider  *string           `json:"payment_provider,omitempty"`
	PaymentSessionID *string           `json:"payment_session_id,omitempty"`
	BillingName      *string           `json:"billing_name,omitempty"`
	BillingEmail     *string           `json:"billing_email,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

type ReservationItem struct {
	ReservationID  uuid.UUID `json:"reservation_id"`
	TicketTypeID   int64     `json:"ticket_type_id"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
}

type Order struct {
	ID               uuid.UUID     `json:"id"`
	ReservationID    *uuid.UUID    `json:"reservation_id,omitempty"`
	UserID           int64         `json:"user_id"`
	EventID          int64         `json:"event_id"`
	TotalCents       int64         `json:"total_cents"`
	FeeCents         int64         `json:"fee_cents"`
	Currency         string        `json:"currency"`
	Platform         Platform      `json:"platform"`
	SellerID         *int64        `json:"seller_id,omitempty"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	PaymentSessionID string        `json:"payment_session_id"`
	CreatedAt        time.Time     `json:"created_at"`
	PaidAt           *time.Time    `json:"paid_at,omitempty"`
}

// OrderItem snapshots the unit price at order creation, decoupling historical
// orders from later price changes.
type OrderItem struct {
	OrderID        uuid.UUID `json:"order_id"`
	TicketTypeID   int64     `json:"ticket_type_id"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	SubtotalCents  int64     `json:"subtotal_cents"`
}

// Ticket is one scannable unit of entry. Code is globally unique.
type Ticket struct {
	ID            uuid.UUID    `json:"id"`
	OrderID       uuid.UUID    `json:"order_id"`
	ReservationID *uuid.UUID   `json:"reservation_id,omitempty"`
	TicketTypeID  int64        `json:"ticket_type_id"`
	UserID        int64        `json:"user_id"`
	Code          string       `json:"code"`
	Status        TicketStatus `json:"status"`
	ScannedAt     *time.Time   `json:"scanned_at,omitempty"`
	ScannerID     *int64       `json:"scanner_id,omitempty"`
	Platform      Platform     `json:"platform"`
	CreatedAt     time.Time    `json:"created_at"`
}

type OrderWithTickets struct {
	Order   Order       `json:"order"`
	Items   []OrderItem `json:"items"`
	Tickets []Ticket    `json:"tickets"`
}

// TypeAvailability is the per-ticket-type view exposed to the storefront.
type TypeAvailability struct {
	TicketTypeID int64  `json:"ticket_type_id"`
	Name         string `json:"name"`
	PriceCents   int64  `json:"price_cents"`
	Available    int    `json:"available"`
	MinPerOrder  int    `json:"min_per_order"`
	MaxPerOrder  int    `json:"max_per_order"`
	OnSale       bool   `json:"on_sale"`
}

type EventAvailability struct {
	EventID int64              `json:"event_id"`
	Types   []TypeAvailability `json:"types"`
}
