package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ticketera/reserva/internal/clock"
	"github.com/ticketera/reserva/internal/domain"
	"github.com/ticketera/reserva/internal/monitoring"
	"github.com/ticketera/reserva/internal/repository"
	redisrepo "github.com/ticketera/reserva/internal/repository/redis"
)

// EventReader is the read side of the catalog the manager validates against.
type EventReader interface {
	GetEvent(ctx context.Context, id int64) (*domain.Event, error)
	EventTicketTypes(ctx context.Context, eventID int64) ([]domain.TicketType, error)
}

// ReservationStore is the persistence surface for holds. The conditional
// status flips and the all-or-nothing ledger take live behind it.
type ReservationStore interface {
	Create(ctx context.Context, res *domain.Reservation, items []domain.ReservationItem) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Reservation, []domain.ReservationItem, error)
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
	ExpireIfDue(ctx context.Context, id uuid.UUID) (bool, error)
	SweepExpired(ctx context.Context, limit int) (int64, error)
}

type Config struct {
	HoldTTL    time.Duration
	FeeBps     int64
	Currency   string
	SweepBatch int
}

type Service struct {
	events  EventReader
	repo    ReservationStore
	cache   *redisrepo.Cache
	pubsub  *redisrepo.AvailabilityPubSub
	limiter *redisrepo.SlidingWindowLimiter
	clock   clock.Clock
	cfg     Config
}

func New(
	events EventReader,
	repo ReservationStore,
	cache *redisrepo.Cache,
	pubsub *redisrepo.AvailabilityPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	clk clock.Clock,
	cfg Config,
) *Service {
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = 10 * time.Minute
	}

	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}

	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 500
	}

	if clk == nil {
		clk = clock.System{}
	}

	return &Service{
		events:  events,
		repo:    repo,
		cache:   cache,
		pubsub:  pubsub,
		limiter: limiter,
		clock:   clk,
		cfg:     cfg,
	}
}

// ItemRequest is one requested line of a reservation.
type ItemRequest struct {
	TicketTypeID int64
	Quantity     int
}

type ReserveParams struct {
	UserID   int64
	EventID  int64
	Items    []ItemRequest
	Platform domain.Platform
	SellerID *int64
	// RateKey identifies the caller for rate limiting; empty skips the check.
	RateKey string
}

// Reserve validates the request against the catalog and takes a time-bound
// hold on every requested line, all or nothing.
//
// Returns:
//   - error: reservation.ErrEventNotFound, ErrEventNotActive,
//     ErrOutsideSaleWindow, ErrTicketTypeNotFound, ErrInvalidQuantity,
//     ErrInsufficientInventory (typed, naming the offending ticket type),
//     ErrRateLimited.
func (s *Service) Reserve(
	ctx context.Context,
	p ReserveParams,
) (*domain.Reservation, []domain.ReservationItem, error) {
	const op = "service.reservation.Reserve"

	if len(p.Items) == 0 {
		return nil, nil, fmt.Errorf("%s:%w", op, ErrInvalidQuantity)
	}

	if s.limiter != nil && p.RateKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, p.RateKey)
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return nil, nil, fmt.Errorf("%s: retry in %s:%w", op, retry, ErrRateLimited)
		}
	}

	now := s.clock.Now()

	event, err := s.events.GetEvent(ctx, p.EventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}

		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	if event.Status != domain.EventActive {
		return nil, nil, fmt.Errorf("%s:%w", op, ErrEventNotActive)
	}

	if !withinWindow(now, event.SalesStart, event.SalesEnd) {
		return nil, nil, fmt.Errorf("%s:%w", op, ErrOutsideSaleWindow)
	}

	types, err := s.events.EventTicketTypes(ctx, p.EventID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	byID := make(map[int64]domain.TicketType, len(types))
	for _, t := range types {
		byID[t.ID] = t
	}

	items := make([]domain.ReservationItem, 0, len(p.Items))
	var total int64

	for _, req := range p.Items {
		t, ok := byID[req.TicketTypeID]
		if !ok {
			return nil, nil, fmt.Errorf("%s:%w", op, ErrTicketTypeNotFound)
		}

		if !t.Active || !withinWindow(now, t.SalesStart, t.SalesEnd) {
			return nil, nil, fmt.Errorf("%s:%w", op, ErrOutsideSaleWindow)
		}

		if req.Quantity < t.MinPerOrder || req.Quantity > t.MaxPerOrder {
			return nil, nil, fmt.Errorf("%s:%w", op, InvalidQuantityError{
				TicketTypeID: t.ID,
				Quantity:     req.Quantity,
				Min:          t.MinPerOrder,
				Max:          t.MaxPerOrder,
			})
		}

		items = append(items, domain.ReservationItem{
			TicketTypeID:   t.ID,
			Quantity:       req.Quantity,
			UnitPriceCents: t.PriceCents,
		})
		total += t.PriceCents * int64(req.Quantity)
	}

	platform := p.Platform
	if platform == "" {
		platform = domain.PlatformWeb
	}

	res := &domain.Reservation{
		ID:         uuid.New(),
		UserID:     p.UserID,
		EventID:    p.EventID,
		TotalCents: total,
		FeeCents:   total * s.cfg.FeeBps / 10000,
		Currency:   s.cfg.Currency,
		Platform:   platform,
		SellerID:   p.SellerID,
		Status:     domain.ReservationActive,
		ExpiresAt:  now.Add(s.cfg.HoldTTL),
	}

	for i := range items {
		items[i].ReservationID = res.ID
	}

	if err := s.repo.Create(ctx, res, items); err != nil {
		var insuff repository.InsufficientInventoryError
		if errors.As(err, &insuff) {
			monitoring.TrackReservationRejected()
			return nil, nil, fmt.Errorf("%s:%w", op, InsufficientInventoryError{
				TicketTypeID: insuff.TicketTypeID,
				Requested:    insuff.Requested,
			})
		}

		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	monitoring.TrackReservationCreated(string(platform))
	s.notifyChanged(ctx, p.EventID)

	return res, items, nil
}

// Get retrieves a reservation with its items, first applying the lazy expiry
// transition so callers never observe an active reservation past its deadline.
//
// Returns:
//   - error: reservation.ErrReservationNotFound.
func (s *Service) Get(
	ctx context.Context,
	id uuid.UUID,
) (*domain.Reservation, []domain.ReservationItem, error) {
	const op = "service.reservation.Get"

	if err := s.expireIfDue(ctx, id); err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	res, items, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s:%w", op, ErrReservationNotFound)
		}

		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	return res, items, nil
}

// Cancel releases the hold if the reservation is still active. Cancelling a
// reservation that already reached a terminal state is a no-op.
//
// Returns:
//   - error: reservation.ErrReservationNotFound.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	const op = "service.reservation.Cancel"

	res, _, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrReservationNotFound)
		}

		return fmt.Errorf("%s:%w", op, err)
	}

	done, err := s.repo.Cancel(ctx, id)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if done {
		monitoring.TrackReservationFinished("cancelled")
		s.notifyChanged(ctx, res.EventID)
	}

	return nil
}

// Expire runs one sweep pass over due reservations, releasing their holds.
// Safe to call from multiple instances concurrently.
func (s *Service) Expire(ctx context.Context) (int64, error) {
	const op = "service.reservation.Expire"

	released, err := s.repo.SweepExpired(ctx, s.cfg.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	if released > 0 {
		monitoring.TrackSweepReleased(int(released))
	}

	return released, nil
}

func (s *Service) expireIfDue(ctx context.Context, id uuid.UUID) error {
	done, err := s.repo.ExpireIfDue(ctx, id)
	if err != nil {
		return err
	}

	if done {
		monitoring.TrackReservationFinished("expired")
	}

	return nil
}

func (s *Service) notifyChanged(ctx context.Context, eventID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateEvent(ctx, eventID)
	}

	if s.pubsub != nil {
		_ = s.pubsub.PublishAvailabilityChanged(ctx, eventID)
	}
}

func withinWindow(now time.Time, start, end *time.Time) bool {
	if start != nil && now.Before(*start) {
		return false
	}

	if end != nil && now.After(*end) {
		return false
	}

	return true
}
