package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ticketera/reserva/internal/domain"
	"github.com/ticketera/reserva/internal/payment"
	"github.com/ticketera/reserva/internal/repository"
)

// fakeState backs both store fakes with one ledger so conversion effects
// (reserved to sold, release on expiry) are observable across them.
type fakeState struct {
	mu     sync.Mutex
	types  map[int64]*domain.TicketType
	res    map[uuid.UUID]*domain.Reservation
	items  map[uuid.UUID][]domain.ReservationItem
	orders map[uuid.UUID]*domain.OrderWithTickets
	now    func() time.Time
}

func newFakeState(now func() time.Time, types []domain.TicketType) *fakeState {
	s := &fakeState{
		types:  make(map[int64]*domain.TicketType),
		res:    make(map[uuid.UUID]*domain.Reservation),
		items:  make(map[uuid.UUID][]domain.ReservationItem),
		orders: make(map[uuid.UUID]*domain.OrderWithTickets),
		now:    now,
	}

	for i := range types {
		t := types[i]
		s.types[t.ID] = &t
	}

	return s
}

// addReservation seeds an active hold and takes its quantities on the ledger.
func (s *fakeState) addReservation(res domain.Reservation, items []domain.ReservationItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range items {
		items[i].ReservationID = res.ID
		s.types[items[i].TicketTypeID].ReservedCount += items[i].Quantity
	}

	s.res[res.ID] = &res
	s.items[res.ID] = items
}

func (s *fakeState) Get(_ context.Context, id uuid.UUID) (*domain.Reservation, []domain.ReservationItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.res[id]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}

	cp := *r
	return &cp, append([]domain.ReservationItem(nil), s.items[id]...), nil
}

func (s *fakeState) ExpireIfDue(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.res[id]
	if !ok || r.Status != domain.ReservationActive || r.ExpiresAt.After(s.now()) {
		return false, nil
	}

	r.Status = domain.ReservationExpired
	s.releaseLocked(id)

	return true, nil
}

func (s *fakeState) AttachPaymentSession(
	_ context.Context,
	id uuid.UUID,
	provider, sessionID, billingName, billingEmail string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.res[id]
	if !ok {
		return repository.ErrNotFound
	}

	if r.Status == domain.ReservationActive && !r.ExpiresAt.After(s.now()) {
		r.Status = domain.ReservationExpired
		s.releaseLocked(id)
	}

	switch r.Status {
	case domain.ReservationActive:
	case domain.ReservationExpired:
		return repository.ErrReservationExpired
	default:
		return repository.ErrReservationLapsed
	}

	r.PaymentProvider = &provider
	r.PaymentSessionID = &sessionID
	r.BillingName = &billingName
	r.BillingEmail = &billingEmail

	return nil
}

func (s *fakeState) Convert(
	_ context.Context,
	sessionID string,
	paidAt time.Time,
) (*domain.OrderWithTickets, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r *domain.Reservation
	for _, cand := range s.res {
		if cand.PaymentSessionID != nil && *cand.PaymentSessionID == sessionID {
			r = cand
			break
		}
	}
	if r == nil {
		return nil, false, repository.ErrNotFound
	}

	if r.Status == domain.ReservationConverted {
		for _, o := range s.orders {
			if o.Order.ReservationID != nil && *o.Order.ReservationID == r.ID {
				cp := *o
				return &cp, false, nil
			}
		}
		return nil, false, repository.ErrNotFound
	}

	if r.Status != domain.ReservationActive {
		return nil, false, repository.ErrReservationLapsed
	}

	if !r.ExpiresAt.After(s.now()) {
		r.Status = domain.ReservationExpired
		s.releaseLocked(r.ID)
		return nil, false, repository.ErrReservationLapsed
	}

	for _, it := range s.items[r.ID] {
		t := s.types[it.TicketTypeID]
		t.ReservedCount -= it.Quantity
		t.SoldCount += it.Quantity
	}

	resID := r.ID
	out := &domain.OrderWithTickets{
		Order: domain.Order{
			ID:               uuid.New(),
			ReservationID:    &resID,
			UserID:           r.UserID,
			EventID:          r.EventID,
			TotalCents:       r.TotalCents,
			FeeCents:         r.FeeCents,
			Currency:         r.Currency,
			Platform:         r.Platform,
			SellerID:         r.SellerID,
			PaymentStatus:    domain.PaymentPaid,
			PaymentSessionID: sessionID,
			PaidAt:           &paidAt,
		},
	}

	for _, it := range s.items[r.ID] {
		out.Items = append(out.Items, domain.OrderItem{
			OrderID:        out.Order.ID,
			TicketTypeID:   it.TicketTypeID,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			SubtotalCents:  it.UnitPriceCents * int64(it.Quantity),
		})
		for i := 0; i < it.Quantity; i++ {
			out.Tickets = append(out.Tickets, domain.Ticket{
				ID:            uuid.New(),
				OrderID:       out.Order.ID,
				ReservationID: &resID,
				TicketTypeID:  it.TicketTypeID,
				UserID:        r.UserID,
				Code:          uuid.NewString(),
				Status:        domain.TicketValid,
				Platform:      r.Platform,
			})
		}
	}

	r.Status = domain.ReservationConverted
	s.orders[out.Order.ID] = out

	cp := *out
	return &cp, true, nil
}

func (s *fakeState) releaseLocked(id uuid.UUID) {
	for _, it := range s.items[id] {
		s.types[it.TicketTypeID].ReservedCount -= it.Quantity
	}
}

func (s *fakeState) ticketType(id int64) domain.TicketType {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.types[id]
}

func (s *fakeState) reservation(id uuid.UUID) domain.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.res[id]
}

type fakeGateway struct {
	mu       sync.Mutex
	calls    int
	err      error
	lastReq  payment.SessionRequest
	sessions int
}

func (g *fakeGateway) Provider() string { return "fakepay" }

func (g *fakeGateway) CreateSession(_ context.Context, req payment.SessionRequest) (payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return payment.Session{}, g.err
	}

	g.calls++
	g.sessions++
	g.lastReq = req

	id := fmt.Sprintf("sess-%d", g.sessions)
	return payment.Session{
		SessionID:   id,
		RedirectURL: "https://pay.fakepay.test/" + id,
	}, nil
}
