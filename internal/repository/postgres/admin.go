package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ticketera/reserva/internal/domain"
)

type AdminRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *AdminRepo) With(db DB) *AdminRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *AdminRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// CreateEvent inserts an event and returns its ID.
//
// Returns:
//   - error: repository.ErrConflict on a uniqueness violation.
func (r *AdminRepo) CreateEvent(ctx context.Context, e domain.Event) (int64, error) {
	const op = "postgres.AdminRepo.CreateEvent"

	db := r.handle()

	var id int64
	err := db.QueryRow(ctx,
		`INSERT INTO events (organization_id, title, status, sales_start, sales_end)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING id`,
		e.OrganizationID, e.Title, e.Status, e.SalesStart, e.SalesEnd,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return id, nil
}

// BatchCreateTicketTypes inserts the ticket types for an event with zeroed
// counters.
//
// Returns:
//   - error: repository.ErrConflict if a type with the same identifying data
//     already exists.
func (r *AdminRepo) BatchCreateTicketTypes(
	ctx context.Context,
	eventID int64,
	types []domain.TicketType,
) error {
	const op = "postgres.AdminRepo.BatchCreateTicketTypes"

	db := r.handle()

	batch := &pgx.Batch{}
	for _, t := range types {
		batch.Queue(
			`INSERT INTO ticket_types
                (event_id, day_id, name, price_cents, capacity,
                 min_per_order, max_per_order, sales_start, sales_end, active)
             VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			eventID, t.DayID, t.Name, t.PriceCents, t.Capacity,
			t.MinPerOrder, t.MaxPerOrder, t.SalesStart, t.SalesEnd, t.Active,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}
