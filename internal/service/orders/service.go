package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ticketera/reserva/internal/domain"
	"github.com/ticketera/reserva/internal/repository"
	postgresrepo "github.com/ticketera/reserva/internal/repository/postgres"
)

type Service struct {
	store *postgresrepo.Store
}

func New(store *postgresrepo.Store) *Service {
	return &Service{store: store}
}

// GetOrderWithTickets retrieves an order with its items and tickets.
//
// Returns:
//   - error: orders.ErrOrderNotFound if the order is not found.
func (s *Service) GetOrderWithTickets(ctx context.Context, orderID uuid.UUID) (*domain.OrderWithTickets, error) {
	const op = "service.orders.GetOrderWithTickets"

	o, err := s.store.Orders().GetWithTickets(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return o, nil
}
