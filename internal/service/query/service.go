package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ticketera/reserva/internal/clock"
	"github.com/ticketera/reserva/internal/domain"
	"github.com/ticketera/reserva/internal/repository"
	postgresrepo "github.com/ticketera/reserva/internal/repository/postgres"
	redisrepo "github.com/ticketera/reserva/internal/repository/redis"
)

type Config struct {
	EventSummaryTTL time.Duration
	AvailabilityTTL time.Duration
}

type Service struct {
	store *postgresrepo.Store
	cache *redisrepo.Cache
	clock clock.Clock
	cfg   Config
}

func New(store *postgresrepo.Store, cache *redisrepo.Cache, clk clock.Clock, cfg Config) *Service {
	if cfg.EventSummaryTTL <= 0 {
		cfg.EventSummaryTTL = 60 * time.Second
	}

	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 5 * time.Second
	}

	if clk == nil {
		clk = clock.System{}
	}

	return &Service{
		store: store,
		cache: cache,
		clock: clk,
		cfg:   cfg,
	}
}

// GetEvent retrieves an event by its ID through the read-side cache.
//
// Returns:
//   - error: query.ErrEventNotFound.
func (s *Service) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "service.query.GetEvent"

	key := redisrepo.KeyEventSummary(id)

	event, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.EventSummaryTTL,
		func(ctx context.Context) (domain.Event, error) {
			e, err := s.store.Query().GetEvent(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Event{}, ErrEventNotFound
				}

				return domain.Event{}, err
			}

			return *e, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &event, nil
}

// Availability returns the per-ticket-type availability of an event. Counts
// are served through a short-TTL cache; they are a sales-page hint, the
// ledger's conditional update is what actually guards capacity.
//
// Returns:
//   - error: query.ErrEventNotFound.
func (s *Service) Availability(ctx context.Context, eventID int64) (*domain.EventAvailability, error) {
	const op = "service.query.Availability"

	key := redisrepo.KeyEventAvailability(eventID)

	avail, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.AvailabilityTTL,
		func(ctx context.Context) (domain.EventAvailability, error) {
			if _, err := s.store.Query().GetEvent(ctx, eventID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.EventAvailability{}, ErrEventNotFound
				}

				return domain.EventAvailability{}, err
			}

			types, err := s.store.Query().EventTicketTypes(ctx, eventID)
			if err != nil {
				return domain.EventAvailability{}, err
			}

			now := s.clock.Now()

			out := domain.EventAvailability{EventID: eventID}
			for _, t := range types {
				out.Types = append(out.Types, domain.TypeAvailability{
					TicketTypeID: t.ID,
					Name:         t.Name,
					PriceCents:   t.PriceCents,
					Available:    t.Available(),
					MinPerOrder:  t.MinPerOrder,
					MaxPerOrder:  t.MaxPerOrder,
					OnSale:       onSale(t, now),
				})
			}

			return out, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &avail, nil
}

func onSale(t domain.TicketType, now time.Time) bool {
	if !t.Active {
		return false
	}

	if t.SalesStart != nil && now.Before(*t.SalesStart) {
		return false
	}

	if t.SalesEnd != nil && now.After(*t.SalesEnd) {
		return false
	}

	return true
}
