package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ticketera/reserva/internal/domain"
	"github.com/ticketera/reserva/internal/repository"
)

type ReservationRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ReservationRepo) With(db DB) *ReservationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ReservationRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create persists the reservation and its items after atomically taking the
// hold against the ledger. All lines succeed or none do.
//
// Returns:
//   - error: repository.InsufficientInventoryError naming the first ticket
//     type whose availability cannot cover the requested quantity.
func (r *ReservationRepo) Create(
	ctx context.Context,
	res *domain.Reservation,
	items []domain.ReservationItem,
) error {
	const op = "postgres.ReservationRepo.Create"

	if r.db != nil {
		if err := r.createCore(ctx, r.db, res, items); err != nil {
			return fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	if err := r.createCore(ctx, tx, res, items); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// Get retrieves a reservation with its items.
func (r *ReservationRepo) Get(
	ctx context.Context,
	id uuid.UUID,
) (*domain.Reservation, []domain.ReservationItem, error) {
	const op = "postgres.ReservationRepo.Get"

	db := r.handle()

	res, err := scanReservation(db.QueryRow(ctx, selectReservationSQL+` WHERE id = $1`, id))
	if err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	items, err := r.itemsFor(ctx, db, id)
	if err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return res, items, nil
}

// BySession retrieves a reservation by its payment session identifier.
func (r *ReservationRepo) BySession(ctx context.Context, sessionID string) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.BySession"

	db := r.handle()

	res, err := scanReservation(db.QueryRow(ctx,
		selectReservationSQL+` WHERE payment_session_id = $1`, sessionID))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return res, nil
}

// Cancel flips an active reservation to cancelled and releases its hold.
// Idempotent: cancelling a reservation that is no longer active reports
// done=false and touches nothing.
func (r *ReservationRepo) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "postgres.ReservationRepo.Cancel"

	done, err := r.finish(ctx, id, domain.ReservationCancelled, false)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, err)
	}

	return done, nil
}

// ExpireIfDue flips the reservation to expired if its deadline has passed,
// releasing the hold. Exactly one of any concurrent callers performs the
// release; the rest see done=false.
func (r *ReservationRepo) ExpireIfDue(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "postgres.ReservationRepo.ExpireIfDue"

	done, err := r.finish(ctx, id, domain.ReservationExpired, true)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, err)
	}

	return done, nil
}

// SweepExpired bulk-expires due reservations across all events, for the
// background reclaimer. Safe to run from multiple instances concurrently.
func (r *ReservationRepo) SweepExpired(ctx context.Context, limit int) (int64, error) {
	const op = "postgres.ReservationRepo.SweepExpired"

	if r.db != nil {
		n, err := sweepExpired(ctx, r.db, 0, limit)
		if err != nil {
			return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return n, nil
	}

	var released int64
	err := r.runTx(ctx, func(tx DB) error {
		n, err := sweepExpired(ctx, tx, 0, limit)
		released = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return released, nil
}

// AttachPaymentSession records the external payment session on an active,
// unexpired reservation. A due reservation is lazily expired first.
//
// Returns:
//   - error: repository.ErrReservationExpired when the hold window has closed.
//   - error: repository.ErrReservationLapsed when the reservation reached a
//     terminal state by other means.
//   - error: repository.ErrNotFound when the reservation does not exist.
func (r *ReservationRepo) AttachPaymentSession(
	ctx context.Context,
	id uuid.UUID,
	provider, sessionID string,
	billingName, billingEmail string,
) error {
	const op = "postgres.ReservationRepo.AttachPaymentSession"

	core := func(db DB) error {
		if _, err := finishReservation(ctx, db, id, domain.ReservationExpired, true); err != nil {
			return err
		}

		tag, err := db.Exec(ctx,
			`UPDATE reservations
                SET payment_provider = $2,
                    payment_session_id = $3,
                    billing_name = $4,
                    billing_email = $5
              WHERE id = $1
                AND status = 'active'
                AND expires_at > now()`,
			id, provider, sessionID, billingName, billingEmail,
		)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			var status domain.ReservationStatus
			err := db.QueryRow(ctx,
				`SELECT status FROM reservations WHERE id = $1`, id,
			).Scan(&status)
			if errors.Is(err, pgx.ErrNoRows) {
				return repository.ErrNotFound
			}
			if err != nil {
				return err
			}
			if status == domain.ReservationExpired {
				return repository.ErrReservationExpired
			}
			return repository.ErrReservationLapsed
		}

		return nil
	}

	if r.db != nil {
		if err := core(r.db); err != nil {
			return fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return nil
	}

	if err := r.runTx(ctx, core); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *ReservationRepo) runTx(ctx context.Context, fn func(tx DB) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *ReservationRepo) finish(
	ctx context.Context,
	id uuid.UUID,
	to domain.ReservationStatus,
	onlyDue bool,
) (bool, error) {
	if r.db != nil {
		done, err := finishReservation(ctx, r.db, id, to, onlyDue)
		if err != nil {
			return false, translateDBErr(err)
		}
		return done, nil
	}

	var done bool
	err := r.runTx(ctx, func(tx DB) error {
		var err error
		done, err = finishReservation(ctx, tx, id, to, onlyDue)
		return err
	})
	if err != nil {
		return false, translateDBErr(err)
	}

	return done, nil
}

// finishReservation performs the one-way conditional status flip plus
// ledger release. The WHERE status = 'active' guard is what makes every
// terminal transition run exactly once under concurrency.
func finishReservation(
	ctx context.Context,
	db DB,
	id uuid.UUID,
	to domain.ReservationStatus,
	onlyDue bool,
) (bool, error) {
	sql := `UPDATE reservations SET status = $2 WHERE id = $1 AND status = 'active'`
	if onlyDue {
		sql += ` AND expires_at <= now()`
	}

	tag, err := db.Exec(ctx, sql, id, to)
	if err != nil {
		return false, err
	}

	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := ledgerRelease(ctx, db, id); err != nil {
		return false, err
	}

	return true, nil
}

func (r *ReservationRepo) createCore(
	ctx context.Context,
	db DB,
	res *domain.Reservation,
	items []domain.ReservationItem,
) error {
	// Opportunistically free holds that lapsed on this event so their
	// inventory counts toward the availability check below.
	if _, err := sweepExpired(ctx, db, res.EventID, 0); err != nil {
		return err
	}

	for _, it := range items {
		if err := ledgerReserve(ctx, db, it.TicketTypeID, it.Quantity); err != nil {
			return err
		}
	}

	if _, err := db.Exec(ctx,
		`INSERT INTO reservations
            (id, user_id, event_id, total_cents, fee_cents, currency,
             platform, seller_id, status, expires_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'active', $9)`,
		res.ID, res.UserID, res.EventID, res.TotalCents, res.FeeCents,
		res.Currency, res.Platform, res.SellerID, res.ExpiresAt,
	); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(
			`INSERT INTO reservation_items
                (reservation_id, ticket_type_id, quantity, unit_price_cents)
             VALUES ($1, $2, $3, $4)`,
			res.ID, it.TicketTypeID, it.Quantity, it.UnitPriceCents,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	return nil
}

func (r *ReservationRepo) itemsFor(
	ctx context.Context,
	db DB,
	id uuid.UUID,
) ([]domain.ReservationItem, error) {
	rows, err := db.Query(ctx,
		`SELECT reservation_id, ticket_type_id, quantity, unit_price_cents
           FROM reservation_items
          WHERE reservation_id = $1
          ORDER BY ticket_type_id`,
		id,
	)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var out []domain.ReservationItem
	for rows.Next() {
		var it domain.ReservationItem
		if err := rows.Scan(&it.ReservationID, &it.TicketTypeID, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

const selectReservationSQL = `
    SELECT id, user_id, event_id, total_cents, fee_cents, currency,
           platform, seller_id, status, expires_at,
           payment_provider, payment_session_id,
           billing_name, billing_email, created_at
      FROM reservations`

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var res domain.Reservation
	err := row.Scan(
		&res.ID, &res.UserID, &res.EventID, &res.TotalCents, &res.FeeCents,
		&res.Currency, &res.Platform, &res.SellerID, &res.Status,
		&res.ExpiresAt, &res.PaymentProvider, &res.PaymentSessionID,
		&res.BillingName, &res.BillingEmail, &res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &res, nil
}
