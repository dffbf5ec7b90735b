package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/ticketera/reserva/internal/domain"
	"github.com/ticketera/reserva/internal/repository"
	postgresrepo "github.com/ticketera/reserva/internal/repository/postgres"
	redisrepo "github.com/ticketera/reserva/internal/repository/redis"
	"github.com/ticketera/reserva/internal/uow"
)

type Service struct {
	store  *postgresrepo.Store
	cache  *redisrepo.Cache
	pubsub *redisrepo.AvailabilityPubSub
	uow    *uow.UoW
}

func New(store *postgresrepo.Store, cache *redisrepo.Cache, pubsub *redisrepo.AvailabilityPubSub) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		pubsub: pubsub,
		uow:    uow.NewUoW(store),
	}
}

// CreateEvent creates an event, optionally together with its initial ticket
// types, in one transactional Unit of Work.
//
// Returns:
//   - int64: the created event ID.
//   - error: admin.ErrEventConflict, admin.ErrTicketTypeConflict.
func (s *Service) CreateEvent(
	ctx context.Context,
	event domain.Event,
	types []domain.TicketType,
) (int64, error) {
	const op = "service.admin.CreateEvent"

	var eventID int64

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		id, err := s.store.Admin().With(tx).CreateEvent(ctx, event)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%s: %w", op, ErrEventConflict)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		eventID = id

		if len(types) > 0 {
			if err := s.store.Admin().With(tx).BatchCreateTicketTypes(ctx, id, types); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					return fmt.Errorf("%s: %w", op, ErrTicketTypeConflict)
				}
				return fmt.Errorf("%s: %w", op, err)
			}
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateEvent(ctx, eventID)
			_ = s.pubsub.PublishAvailabilityChanged(ctx, eventID)
		})
		return nil
	})

	return eventID, err
}

// AddTicketTypes appends ticket types to an existing event.
//
// Returns:
//   - error: admin.ErrEventNotFound, admin.ErrTicketTypeConflict.
func (s *Service) AddTicketTypes(
	ctx context.Context,
	eventID int64,
	types []domain.TicketType,
) error {
	const op = "service.admin.AddTicketTypes"

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		if _, err := s.store.Query().With(tx).GetEvent(ctx, eventID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, ErrEventNotFound)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := s.store.Admin().With(tx).BatchCreateTicketTypes(ctx, eventID, types); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%s: %w", op, ErrTicketTypeConflict)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateEvent(ctx, eventID)
			_ = s.pubsub.PublishAvailabilityChanged(ctx, eventID)
		})
		return nil
	})

	return err
}
