package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ticketera/reserva/internal/repository"
)

// The inventory ledger is the pair of counters (sold_count, reserved_count)
// on ticket_types. Every mutation below is a conditional UPDATE so that the
// invariant sold_count + reserved_count <= capacity is checked and applied in
// one statement; the database, not the process, is the serialization point.

// ledgerReserve increments reserved_count for one ticket type, refusing the
// increment when the requested quantity does not fit into the remaining
// availability. A zero-row update means insufficient inventory (or an
// inactive/unknown type) and aborts the caller's transaction.
func ledgerReserve(ctx context.Context, db DB, ticketTypeID int64, qty int) error {
	tag, err := db.Exec(ctx,
		`UPDATE ticket_types
            SET reserved_count = reserved_count + $2
          WHERE id = $1
            AND active
            AND sold_count + reserved_count + $2 <= capacity`,
		ticketTypeID, qty,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return repository.InsufficientInventoryError{
			TicketTypeID: ticketTypeID,
			Requested:    qty,
		}
	}

	return nil
}

// ledgerRelease gives the reservation's quantities back to availability.
// Callers must hold the conditional status flip for the reservation in the
// same transaction so the release runs exactly once.
func ledgerRelease(ctx context.Context, db DB, reservationID uuid.UUID) error {
	_, err := db.Exec(ctx,
		`UPDATE ticket_types tt
            SET reserved_count = tt.reserved_count - agg.qty
           FROM (
                SELECT ticket_type_id, SUM(quantity)::int AS qty
                  FROM reservation_items
                 WHERE reservation_id = $1
                 GROUP BY ticket_type_id
                ) agg
          WHERE tt.id = agg.ticket_type_id`,
		reservationID,
	)

	return err
}

// ledgerCommit converts the reservation's hold into sold units. The CHECK
// constraints on ticket_types abort the transaction if the counters would go
// negative, which can only happen if the status-flip guard was bypassed.
func ledgerCommit(ctx context.Context, db DB, reservationID uuid.UUID) error {
	_, err := db.Exec(ctx,
		`UPDATE ticket_types tt
            SET reserved_count = tt.reserved_count - agg.qty,
                sold_count     = tt.sold_count + agg.qty
           FROM (
                SELECT ticket_type_id, SUM(quantity)::int AS qty
                  FROM reservation_items
                 WHERE reservation_id = $1
                 GROUP BY ticket_type_id
                ) agg
          WHERE tt.id = agg.ticket_type_id`,
		reservationID,
	)

	return err
}

// sweepExpired flips due reservations to expired and releases their
// quantities in one statement. eventID = 0 sweeps every event. SKIP LOCKED
// keeps concurrent sweepers (and the lazy read-path sweeps) from serializing
// on each other; the status guard makes the transition run exactly once.
func sweepExpired(ctx context.Context, db DB, eventID int64, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}

	const sweepSQL = `
        WITH due AS (
            SELECT id FROM reservations
             WHERE status = 'active'
               AND expires_at <= now()
               AND ($1 = 0 OR event_id = $1)
             ORDER BY expires_at
             LIMIT $2
             FOR UPDATE SKIP LOCKED
        ),
        flipped AS (
            UPDATE reservations r
               SET status = 'expired'
              FROM due
             WHERE r.id = due.id AND r.status = 'active'
            RETURNING r.id
        ),
        agg AS (
            SELECT ri.ticket_type_id, SUM(ri.quantity)::int AS qty
              FROM reservation_items ri
              JOIN flipped f ON f.id = ri.reservation_id
             GROUP BY ri.ticket_type_id
        ),
        released AS (
            UPDATE ticket_types tt
               SET reserved_count = tt.reserved_count - agg.qty
              FROM agg
             WHERE tt.id = agg.ticket_type_id
            RETURNING tt.id
        )
        SELECT count(*) FROM flipped`

	var expired int64
	if err := db.QueryRow(ctx, sweepSQL, eventID, limit).Scan(&expired); err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}

	return expired, nil
}
