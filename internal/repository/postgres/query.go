package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ticketera/reserva/internal/domain"
)

type QueryRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *QueryRepo) With(db DB) *QueryRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *QueryRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetEvent retrieves an event by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if the event is not found.
func (r *QueryRepo) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgres.QueryRepo.GetEvent"

	db := r.handle()

	var e domain.Event
	err := db.QueryRow(ctx,
		`SELECT id, organization_id, title, status, sales_start, sales_end, created_at
           FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.OrganizationID, &e.Title, &e.Status, &e.SalesStart, &e.SalesEnd, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &e, nil
}

// EventTicketTypes lists the ticket types of an event with their current
// ledger counters. Inactive types are included so callers can tell "not for
// sale" apart from "does not exist".
func (r *QueryRepo) EventTicketTypes(ctx context.Context, eventID int64) ([]domain.TicketType, error) {
	const op = "postgres.QueryRepo.EventTicketTypes"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, event_id, day_id, name, price_cents, capacity,
                sold_count, reserved_count, min_per_order, max_per_order,
                sales_start, sales_end, active
           FROM ticket_types
          WHERE event_id = $1
          ORDER BY id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.TicketType
	for rows.Next() {
		var t domain.TicketType
		if err := rows.Scan(
			&t.ID, &t.EventID, &t.DayID, &t.Name, &t.PriceCents, &t.Capacity,
			&t.SoldCount, &t.ReservedCount, &t.MinPerOrder, &t.MaxPerOrder,
			&t.SalesStart, &t.SalesEnd, &t.Active,
		); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
