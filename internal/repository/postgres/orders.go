package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ticketera/reserva/internal/domain"
	"github.com/ticketera/reserva/internal/repository"
)

type OrderRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *OrderRepo) With(db DB) *OrderRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *OrderRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Convert finalizes the reservation identified by the payment session:
// ledger commit, order + item snapshots, one ticket per purchased unit and
// the converted status flip, all in one transaction. Calling it again for an
// already-converted session returns the existing order with created=false,
// which is what makes duplicate webhook deliveries harmless.
//
// Returns:
//   - error: repository.ErrNotFound when no reservation carries the session.
//   - error: repository.ErrReservationLapsed when the reservation expired or
//     was cancelled before the confirmation arrived.
func (r *OrderRepo) Convert(
	ctx context.Context,
	sessionID string,
	paidAt time.Time,
) (*domain.OrderWithTickets, bool, error) {
	const op = "postgres.OrderRepo.Convert"

	if r.db != nil {
		out, created, err := r.convertCore(ctx, r.db, sessionID, paidAt)
		if err != nil {
			return nil, false, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return out, created, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	out, created, err := r.convertCore(ctx, tx, sessionID, paidAt)
	if err != nil {
		return nil, false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, created, nil
}

// GetWithTickets retrieves an order along with its items and tickets.
func (r *OrderRepo) GetWithTickets(ctx context.Context, orderID uuid.UUID) (*domain.OrderWithTickets, error) {
	const op = "postgres.OrderRepo.GetWithTickets"

	out, err := r.getWithTicketsCore(ctx, r.handle(), `o.id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

func (r *OrderRepo) convertCore(
	ctx context.Context,
	db DB,
	sessionID string,
	paidAt time.Time,
) (*domain.OrderWithTickets, bool, error) {
	var (
		resID      uuid.UUID
		userID     int64
		eventID    int64
		totalCents int64
		feeCents   int64
		currency   string
		platform   domain.Platform
		sellerID   *int64
		status     domain.ReservationStatus
		expiresAt  time.Time
	)

	err := db.QueryRow(ctx,
		`SELECT id, user_id, event_id, total_cents, fee_cents, currency,
                platform, seller_id, status, expires_at
           FROM reservations
          WHERE payment_session_id = $1
            FOR UPDATE`,
		sessionID,
	).Scan(&resID, &userID, &eventID, &totalCents, &feeCents, &currency,
		&platform, &sellerID, &status, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, repository.ErrNotFound
		}
		return nil, false, err
	}

	switch status {
	case domain.ReservationConverted:
		out, err := r.getWithTicketsCore(ctx, db, `o.reservation_id = $1`, resID)
		if err != nil {
			return nil, false, err
		}
		return out, false, nil
	case domain.ReservationExpired, domain.ReservationCancelled:
		return nil, false, repository.ErrReservationLapsed
	}

	// Still marked active: the hold may have lapsed by time without anyone
	// observing it yet. Expire it now rather than selling released inventory.
	if !expiresAt.After(paidAt) {
		if _, err := finishReservation(ctx, db, resID, domain.ReservationExpired, true); err != nil {
			return nil, false, err
		}
		return nil, false, repository.ErrReservationLapsed
	}

	if err := ledgerCommit(ctx, db, resID); err != nil {
		return nil, false, err
	}

	items, err := r.reservationItems(ctx, db, resID)
	if err != nil {
		return nil, false, err
	}
	if len(items) == 0 {
		return nil, false, repository.ErrNothingToRelease
	}

	orderID := uuid.New()
	if _, err := db.Exec(ctx,
		`INSERT INTO orders
            (id, reservation_id, user_id, event_id, total_cents, fee_cents,
             currency, platform, seller_id, payment_status,
             payment_session_id, paid_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'paid', $10, $11)`,
		orderID, resID, userID, eventID, totalCents, feeCents,
		currency, platform, sellerID, sessionID, paidAt,
	); err != nil {
		return nil, false, err
	}

	orderItems := make([]domain.OrderItem, 0, len(items))
	itemBatch := &pgx.Batch{}
	for _, it := range items {
		oi := domain.OrderItem{
			OrderID:        orderID,
			TicketTypeID:   it.TicketTypeID,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			SubtotalCents:  it.UnitPriceCents * int64(it.Quantity),
		}
		orderItems = append(orderItems, oi)
		itemBatch.Queue(
			`INSERT INTO order_items
                (order_id, ticket_type_id, quantity, unit_price_cents, subtotal_cents)
             VALUES ($1, $2, $3, $4, $5)`,
			oi.OrderID, oi.TicketTypeID, oi.Quantity, oi.UnitPriceCents, oi.SubtotalCents,
		)
	}
	if err := db.SendBatch(ctx, itemBatch).Close(); err != nil {
		return nil, false, err
	}

	tickets, err := r.materializeTickets(ctx, db, orderID, resID, userID, platform, items)
	if err != nil {
		return nil, false, err
	}

	if _, err := db.Exec(ctx,
		`UPDATE reservations SET status = 'converted' WHERE id = $1 AND status = 'active'`,
		resID,
	); err != nil {
		return nil, false, err
	}

	return &domain.OrderWithTickets{
		Order: domain.Order{
			ID:               orderID,
			ReservationID:    &resID,
			UserID:           userID,
			EventID:          eventID,
			TotalCents:       totalCents,
			FeeCents:         feeCents,
			Currency:         currency,
			Platform:         platform,
			SellerID:         sellerID,
			PaymentStatus:    domain.PaymentPaid,
			PaymentSessionID: sessionID,
			PaidAt:           &paidAt,
		},
		Items:   orderItems,
		Tickets: tickets,
	}, true, nil
}

// materializeTickets creates one ticket row per purchased unit. Codes are
// random UUIDs backed by a unique constraint; on the (vanishingly unlikely)
// collision the whole batch is regenerated and retried once.
func (r *OrderRepo) materializeTickets(
	ctx context.Context,
	db DB,
	orderID, reservationID uuid.UUID,
	userID int64,
	platform domain.Platform,
	items []domain.ReservationItem,
) ([]domain.Ticket, error) {
	for attempt := 0; ; attempt++ {
		var tickets []domain.Ticket
		batch := &pgx.Batch{}

		for _, it := range items {
			for i := 0; i < it.Quantity; i++ {
				t := domain.Ticket{
					ID:            uuid.New(),
					OrderID:       orderID,
					ReservationID: &reservationID,
					TicketTypeID:  it.TicketTypeID,
					UserID:        userID,
					Code:          uuid.NewString(),
					Status:        domain.TicketValid,
					Platform:      platform,
				}
				tickets = append(tickets, t)
				batch.Queue(
					`INSERT INTO tickets
                        (id, order_id, reservation_id, ticket_type_id,
                         user_id, code, status, platform)
                     VALUES ($1, $2, $3, $4, $5, $6, 'valid', $7)`,
					t.ID, t.OrderID, t.ReservationID, t.TicketTypeID,
					t.UserID, t.Code, t.Platform,
				)
			}
		}

		err := db.SendBatch(ctx, batch).Close()
		if err == nil {
			return tickets, nil
		}
		if attempt == 0 && isUniqueViolation(err, "tickets_code_key") {
			continue
		}
		return nil, err
	}
}

func (r *OrderRepo) reservationItems(
	ctx context.Context,
	db DB,
	reservationID uuid.UUID,
) ([]domain.ReservationItem, error) {
	rows, err := db.Query(ctx,
		`SELECT reservation_id, ticket_type_id, quantity, unit_price_cents
           FROM reservation_items
          WHERE reservation_id = $1
          ORDER BY ticket_type_id`,
		reservationID,
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

func (r *OrderRepo) getWithTicketsCore(
	ctx context.Context,
	db DB,
	where string,
	arg any,
) (*domain.OrderWithTickets, error) {
	var out domain.OrderWithTickets

	err := db.QueryRow(ctx,
		`SELECT o.id, o.reservation_id, o.user_id, o.event_id, o.total_cents,
                o.fee_cents, o.currency, o.platform, o.seller_id,
                o.payment_status, o.payment_session_id, o.created_at, o.paid_at
           FROM orders o
          WHERE `+where,
		arg,
	).Scan(
		&out.Order.ID, &out.Order.ReservationID, &out.Order.UserID,
		&out.Order.EventID, &out.Order.TotalCents, &out.Order.FeeCents,
		&out.Order.Currency, &out.Order.Platform, &out.Order.SellerID,
		&out.Order.PaymentStatus, &out.Order.PaymentSessionID,
		&out.Order.CreatedAt, &out.Order.PaidAt,
	)
	if err != nil {
		return nil, err
	}

	itemRows, err := db.Query(ctx,
		`SELECT order_id, ticket_type_id, quantity, unit_price_cents, subtotal_cents
           FROM order_items
          WHERE order_id = $1
          ORDER BY ticket_type_id`,
		out.Order.ID,
	)
	if err != nil {
		return nil, err
	}

	defer itemRows.Close()

	for itemRows.Next() {
		var it domain.OrderItem
		if err := itemRows.Scan(&it.OrderID, &it.TicketTypeID, &it.Quantity, &it.UnitPriceCents, &it.SubtotalCents); err != nil {
			return nil, err
		}
		out.Items = append(out.Items, it)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	ticketRows, err := db.Query(ctx,
		`SELECT id, order_id, reservation_id, ticket_type_id, user_id, code,
                status, scanned_at, scanner_id, platform, created_at
           FROM tickets
          WHERE order_id = $1
          ORDER BY created_at, id`,
		out.Order.ID,
	)
	if err != nil {
		return nil, err
	}

	defer ticketRows.Close()

	for ticketRows.Next() {
		var t domain.Ticket
		if err := ticketRows.Scan(
			&t.ID, &t.OrderID, &t.ReservationID, &t.TicketTypeID, &t.UserID,
			&t.Code, &t.Status, &t.ScannedAt, &t.ScannerID, &t.Platform, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		out.Tickets = append(out.Tickets, t)
	}
	if err := ticketRows.Err(); err != nil {
		return nil, err
	}

	return &out, nil
}
