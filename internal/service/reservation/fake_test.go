package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ticketera/reserva/internal/domain"
	"github.com/ticketera/reserva/internal/repository"
)

// fakeStore is an in-memory EventReader + ReservationStore with the same
// conditional semantics as the SQL layer: capacity checks are all-or-nothing
// and every terminal transition releases the hold exactly once.
type fakeStore struct {
	mu     sync.Mutex
	events map[int64]domain.Event
	types  map[int64]*domain.TicketType
	res    map[uuid.UUID]*domain.Reservation
	items  map[uuid.UUID][]domain.ReservationItem
	now    func() time.Time
}

func newFakeStore(now func() time.Time, events []domain.Event, types []domain.TicketType) *fakeStore {
	s := &fakeStore{
		events: make(map[int64]domain.Event),
		types:  make(map[int64]*domain.TicketType),
		res:    make(map[uuid.UUID]*domain.Reservation),
		items:  make(map[uuid.UUID][]domain.ReservationItem),
		now:    now,
	}

	for _, e := range events {
		s.events[e.ID] = e
	}

	for i := range types {
		t := types[i]
		s.types[t.ID] = &t
	}

	return s
}

func (s *fakeStore) GetEvent(_ context.Context, id int64) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	return &e, nil
}

func (s *fakeStore) EventTicketTypes(_ context.Context, eventID int64) ([]domain.TicketType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.TicketType
	for _, t := range s.types {
		if t.EventID == eventID {
			out = append(out, *t)
		}
	}

	return out, nil
}

func (s *fakeStore) Create(_ context.Context, res *domain.Reservation, items []domain.ReservationItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range items {
		t, ok := s.types[it.TicketTypeID]
		if !ok || !t.Active {
			return repository.InsufficientInventoryError{
				TicketTypeID: it.TicketTypeID,
				Requested:    it.Quantity,
			}
		}
		if t.SoldCount+t.ReservedCount+it.Quantity > t.Capacity {
			return repository.InsufficientInventoryError{
				TicketTypeID: it.TicketTypeID,
				Requested:    it.Quantity,
			}
		}
	}

	for _, it := range items {
		s.types[it.TicketTypeID].ReservedCount += it.Quantity
	}

	cp := *res
	s.res[res.ID] = &cp
	s.items[res.ID] = append([]domain.ReservationItem(nil), items...)

	return nil
}

func (s *fakeStore) Get(_ context.Context, id uuid.UUID) (*domain.Reservation, []domain.ReservationItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.res[id]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}

	cp := *r
	return &cp, append([]domain.ReservationItem(nil), s.items[id]...), nil
}

func (s *fakeStore) Cancel(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.finishLocked(id, domain.ReservationCancelled, false), nil
}

func (s *fakeStore) ExpireIfDue(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.finishLocked(id, domain.ReservationExpired, true), nil
}

func (s *fakeStore) SweepExpired(_ context.Context, _ int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var released int64
	for id := range s.res {
		if s.finishLocked(id, domain.ReservationExpired, true) {
			released++
		}
	}

	return released, nil
}

func (s *fakeStore) finishLocked(id uuid.UUID, to domain.ReservationStatus, onlyDue bool) bool {
	r, ok := s.res[id]
	if !ok || r.Status != domain.ReservationActive {
		return false
	}

	if onlyDue && r.ExpiresAt.After(s.now()) {
		return false
	}

	r.Status = to
	for _, it := range s.items[id] {
		s.types[it.TicketTypeID].ReservedCount -= it.Quantity
	}

	return true
}

func (s *fakeStore) ticketType(id int64) domain.TicketType {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.types[id]
}

func (s *fakeStore) setPrice(id int64, priceCents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.types[id].PriceCents = priceCents
}
