package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ticketera/reserva/internal/clock"
	"github.com/ticketera/reserva/internal/domain"
	"github.com/ticketera/reserva/internal/monitoring"
	"github.com/ticketera/reserva/internal/payment"
	"github.com/ticketera/reserva/internal/repository"
	redisrepo "github.com/ticketera/reserva/internal/repository/redis"
)

// ReservationStore is the slice of reservation persistence checkout needs.
type ReservationStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Reservation, []domain.ReservationItem, error)
	ExpireIfDue(ctx context.Context, id uuid.UUID) (bool, error)
	AttachPaymentSession(ctx context.Context, id uuid.UUID, provider, sessionID, billingName, billingEmail string) error
}

// OrderStore finalizes paid reservations into orders and tickets.
type OrderStore interface {
	Convert(ctx context.Context, sessionID string, paidAt time.Time) (*domain.OrderWithTickets, bool, error)
}

type Service struct {
	reservations ReservationStore
	orders       OrderStore
	gateway      payment.Gateway
	cache        *redisrepo.Cache
	pubsub       *redisrepo.AvailabilityPubSub
	clock        clock.Clock
	logger       *slog.Logger
}

func New(
	reservations ReservationStore,
	orders OrderStore,
	gateway payment.Gateway,
	cache *redisrepo.Cache,
	pubsub *redisrepo.AvailabilityPubSub,
	clk clock.Clock,
	logger *slog.Logger,
) *Service {
	if clk == nil {
		clk = clock.System{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		reservations: reservations,
		orders:       orders,
		gateway:      gateway,
		cache:        cache,
		pubsub:       pubsub,
		clock:        clk,
		logger:       logger,
	}
}

type Billing struct {
	Name  string
	Email string
}

// InitiatePayment requests a hosted payment session for an active reservation
// and records the session on it. No database lock is held across the outbound
// gateway call; the attach is conditional on the reservation still being
// active, so a hold that lapses mid-call is never charged against.
//
// Returns:
//   - error: checkout.ErrReservationNotFound, ErrReservationExpired,
//     ErrReservationLapsed.
func (s *Service) InitiatePayment(
	ctx context.Context,
	reservationID uuid.UUID,
	billing Billing,
) (payment.Session, error) {
	const op = "service.checkout.InitiatePayment"

	done, err := s.reservations.ExpireIfDue(ctx, reservationID)
	if err != nil {
		return payment.Session{}, fmt.Errorf("%s:%w", op, err)
	}
	if done {
		monitoring.TrackReservationFinished("expired")
		return payment.Session{}, fmt.Errorf("%s:%w", op, ErrReservationExpired)
	}

	res, _, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return payment.Session{}, fmt.Errorf("%s:%w", op, ErrReservationNotFound)
		}

		return payment.Session{}, fmt.Errorf("%s:%w", op, err)
	}

	switch res.Status {
	case domain.ReservationActive:
	case domain.ReservationExpired:
		return payment.Session{}, fmt.Errorf("%s:%w", op, ErrReservationExpired)
	default:
		return payment.Session{}, fmt.Errorf("%s:%w", op, ErrReservationLapsed)
	}

	session, err := s.gateway.CreateSession(ctx, payment.SessionRequest{
		ReservationID: res.ID.String(),
		AmountCents:   res.TotalCents + res.FeeCents,
		Currency:      res.Currency,
		CustomerName:  billing.Name,
		CustomerEmail: billing.Email,
		ExpiresAt:     res.ExpiresAt,
	})
	if err != nil {
		return payment.Session{}, fmt.Errorf("%s:%w", op, err)
	}

	err = s.reservations.AttachPaymentSession(
		ctx, reservationID,
		s.gateway.Provider(), session.SessionID,
		billing.Name, billing.Email,
	)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrReservationExpired):
			monitoring.TrackReservationFinished("expired")
			return payment.Session{}, fmt.Errorf("%s:%w", op, ErrReservationExpired)
		case errors.Is(err, repository.ErrReservationLapsed):
			return payment.Session{}, fmt.Errorf("%s:%w", op, ErrReservationLapsed)
		case errors.Is(err, repository.ErrNotFound):
			return payment.Session{}, fmt.Errorf("%s:%w", op, ErrReservationNotFound)
		}

		return payment.Session{}, fmt.Errorf("%s:%w", op, err)
	}

	return session, nil
}

// ConfirmPayment applies a gateway webhook. The whole effect is idempotent:
// a duplicate success delivery returns the already-materialized order, a
// failure delivery changes nothing and leaves the reservation to run out its
// hold. A success for a lapsed reservation is the one case that cannot be
// resolved automatically; it is logged, counted and surfaced as
// ErrPaymentForLapsedReservation for manual refund handling.
//
// Returns:
//   - *domain.OrderWithTickets: the order, nil for failure results.
//   - error: checkout.ErrReservationNotFound, ErrPaymentForLapsedReservation.
func (s *Service) ConfirmPayment(
	ctx context.Context,
	sessionID string,
	succeeded bool,
) (*domain.OrderWithTickets, error) {
	const op = "service.checkout.ConfirmPayment"

	if !succeeded {
		s.logger.Info("payment failed, reservation left to expire",
			slog.String("session_id", sessionID),
		)
		return nil, nil
	}

	out, created, err := s.orders.Convert(ctx, sessionID, s.clock.Now())
	if err != nil {
		if errors.Is(err, repository.ErrReservationLapsed) {
			monitoring.TrackLapsedPayment()
			s.logger.Error("payment received for lapsed reservation, manual refund required",
				slog.String("session_id", sessionID),
			)
			return nil, fmt.Errorf("%s:%w", op, ErrPaymentForLapsedReservation)
		}

		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrReservationNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if created {
		monitoring.TrackOrderPaid(string(out.Order.Platform))
		monitoring.TrackReservationFinished("converted")
		s.notifyChanged(ctx, out.Order.EventID)
	}

	return out, nil
}

func (s *Service) notifyChanged(ctx context.Context, eventID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateEvent(ctx, eventID)
	}

	if s.pubsub != nil {
		_ = s.pubsub.PublishAvailabilityChanged(ctx, eventID)
	}
}
