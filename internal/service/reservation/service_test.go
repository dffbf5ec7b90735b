package reservation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketera/reserva/internal/clock"
	"github.com/ticketera/reserva/internal/domain"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func testEvent() domain.Event {
	return domain.Event{ID: 1, OrganizationID: 7, Title: "Summer Fest", Status: domain.EventActive}
}

func testTypes() []domain.TicketType {
	return []domain.TicketType{
		{
			ID: 10, EventID: 1, Name: "General", PriceCents: 5000,
			Capacity: 10, MinPerOrder: 1, MaxPerOrder: 4, Active: true,
		},
		{
			ID: 11, EventID: 1, Name: "VIP", PriceCents: 12000,
			Capacity: 2, MinPerOrder: 1, MaxPerOrder: 2, Active: true,
		},
	}
}

func newTestService(t *testing.T, events []domain.Event, types []domain.TicketType) (*Service, *fakeStore, *clock.Fixed) {
	t.Helper()

	clk := clock.NewFixed(testNow)
	store := newFakeStore(clk.Now, events, types)
	svc := New(store, store, nil, nil, nil, clk, Config{
		HoldTTL:  10 * time.Minute,
		Currency: "EUR",
	})

	return svc, store, clk
}

func TestReserve(t *testing.T) {
	t.Parallel()

	t.Run("creates hold with snapshot prices and deadline", func(t *testing.T) {
		svc, store, _ := newTestService(t, []domain.Event{testEvent()}, testTypes())

		res, items, err := svc.Reserve(context.Background(), ReserveParams{
			UserID:  42,
			EventID: 1,
			Items: []ItemRequest{
				{TicketTypeID: 10, Quantity: 2},
				{TicketTypeID: 11, Quantity: 1},
			},
		})
		require.NoError(t, err)

		assert.Equal(t, domain.ReservationActive, res.Status)
		assert.Equal(t, testNow.Add(10*time.Minute), res.ExpiresAt)
		assert.Equal(t, int64(2*5000+12000), res.TotalCents)
		assert.Equal(t, "EUR", res.Currency)
		assert.Equal(t, domain.PlatformWeb, res.Platform)

		require.Len(t, items, 2)
		assert.Equal(t, int64(5000), items[0].UnitPriceCents)
		assert.Equal(t, int64(12000), items[1].UnitPriceCents)

		assert.Equal(t, 2, store.ticketType(10).ReservedCount)
		assert.Equal(t, 1, store.ticketType(11).ReservedCount)
	})

	t.Run("price snapshot survives later price change", func(t *testing.T) {
		svc, store, _ := newTestService(t, []domain.Event{testEvent()}, testTypes())

		res, _, err := svc.Reserve(context.Background(), ReserveParams{
			UserID:  42,
			EventID: 1,
			Items:   []ItemRequest{{TicketTypeID: 10, Quantity: 1}},
		})
		require.NoError(t, err)

		store.setPrice(10, 9900)

		_, items, err := svc.Get(context.Background(), res.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(5000), items[0].UnitPriceCents)
		assert.Equal(t, int64(5000), res.TotalCents)
	})

	t.Run("insufficient inventory names the ticket type", func(t *testing.T) {
		svc, _, _ := newTestService(t, []domain.Event{testEvent()}, testTypes())

		_, _, err := svc.Reserve(context.Background(), ReserveParams{
			UserID:  42,
			EventID: 1,
			Items:   []ItemRequest{{TicketTypeID: 11, Quantity: 2}},
		})
		require.NoError(t, err)

		_, _, err = svc.Reserve(context.Background(), ReserveParams{
			UserID:  43,
			EventID: 1,
			Items:   []ItemRequest{{TicketTypeID: 11, Quantity: 1}},
		})
		require.ErrorIs(t, err, ErrInsufficientInventory)

		var typed InsufficientInventoryError
		require.ErrorAs(t, err, &typed)
		assert.Equal(t, int64(11), typed.TicketTypeID)
	})

	t.Run("multi line reservation is all or nothing", func(t *testing.T) {
		svc, store, _ := newTestService(t, []domain.Event{testEvent()}, testTypes())

		// VIP line exceeds capacity, so the General line must not be held.
		_, _, err := svc.Reserve(context.Background(), ReserveParams{
			UserID:  42,
			EventID: 1,
			Items: []ItemRequest{
				{TicketTypeID: 10, Quantity: 2},
				{TicketTypeID: 11, Quantity: 2},
			},
		})
		require.NoError(t, err)

		_, _, err = svc.Reserve(context.Background(), ReserveParams{
			UserID:  43,
			EventID: 1,
			Items: []ItemRequest{
				{TicketTypeID: 10, Quantity: 3},
				{TicketTypeID: 11, Quantity: 1},
			},
		})
		require.ErrorIs(t, err, ErrInsufficientInventory)

		assert.Equal(t, 2, store.ticketType(10).ReservedCount)
		assert.Equal(t, 2, store.ticketType(11).ReservedCount)
	})

	t.Run("validation failures", func(t *testing.T) {
		past := testNow.Add(-time.Hour)
		future := testNow.Add(time.Hour)

		inactiveEvent := testEvent()
		inactiveEvent.ID = 2
		inactiveEvent.Status = domain.EventInactive

		closedEvent := testEvent()
		closedEvent.ID = 3
		closedEvent.SalesEnd = &past

		notYetType := domain.TicketType{
			ID: 12, EventID: 1, Name: "Late release", PriceCents: 3000,
			Capacity: 5, MinPerOrder: 1, MaxPerOrder: 5, Active: true,
			SalesStart: &future,
		}

		inactiveType := domain.TicketType{
			ID: 13, EventID: 1, Name: "Paused", PriceCents: 3000,
			Capacity: 5, MinPerOrder: 1, MaxPerOrder: 5, Active: false,
		}

		events := []domain.Event{testEvent(), inactiveEvent, closedEvent}
		types := append(testTypes(), notYetType, inactiveType)

		tests := []struct {
			name    string
			eventID int64
			items   []ItemRequest
			wantErr error
		}{
			{
				name:    "event not found",
				eventID: 99,
				items:   []ItemRequest{{TicketTypeID: 10, Quantity: 1}},
				wantErr: ErrEventNotFound,
			},
			{
				name:    "event not active",
				eventID: 2,
				items:   []ItemRequest{{TicketTypeID: 10, Quantity: 1}},
				wantErr: ErrEventNotActive,
			},
			{
				name:    "event sales window closed",
				eventID: 3,
				items:   []ItemRequest{{TicketTypeID: 10, Quantity: 1}},
				wantErr: ErrOutsideSaleWindow,
			},
			{
				name:    "ticket type of another event",
				eventID: 1,
				items:   []ItemRequest{{TicketTypeID: 999, Quantity: 1}},
				wantErr: ErrTicketTypeNotFound,
			},
			{
				name:    "ticket type not yet on sale",
				eventID: 1,
				items:   []ItemRequest{{TicketTypeID: 12, Quantity: 1}},
				wantErr: ErrOutsideSaleWindow,
			},
			{
				name:    "ticket type inactive",
				eventID: 1,
				items:   []ItemRequest{{TicketTypeID: 13, Quantity: 1}},
				wantErr: ErrOutsideSaleWindow,
			},
			{
				name:    "quantity above max per order",
				eventID: 1,
				items:   []ItemRequest{{TicketTypeID: 10, Quantity: 5}},
				wantErr: ErrInvalidQuantity,
			},
			{
				name:    "no items",
				eventID: 1,
				items:   nil,
				wantErr: ErrInvalidQuantity,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc, store, _ := newTestService(t, events, types)

				_, _, err := svc.Reserve(context.Background(), ReserveParams{
					UserID:  42,
					EventID: tt.eventID,
					Items:   tt.items,
				})
				require.ErrorIs(t, err, tt.wantErr)

				assert.Zero(t, store.ticketType(10).ReservedCount)
			})
		}
	})

	t.Run("no oversell under concurrent reserves", func(t *testing.T) {
		svc, store, _ := newTestService(t, []domain.Event{testEvent()}, testTypes())

		const attempts = 25

		var wg sync.WaitGroup
		results := make(chan error, attempts)

		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(user int64) {
				defer wg.Done()
				_, _, err := svc.Reserve(context.Background(), ReserveParams{
					UserID:  user,
					EventID: 1,
					Items:   []ItemRequest{{TicketTypeID: 10, Quantity: 1}},
				})
				results <- err
			}(int64(i + 1))
		}

		wg.Wait()
		close(results)

		var ok, rejected int
		for err := range results {
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, ErrInsufficientInventory):
				rejected++
			}
		}

		assert.Equal(t, 10, ok)
		assert.Equal(t, attempts-10, rejected)

		tt := store.ticketType(10)
		assert.Equal(t, 10, tt.ReservedCount)
		assert.LessOrEqual(t, tt.SoldCount+tt.ReservedCount, tt.Capacity)
	})
}

func TestCancel(t *testing.T) {
	t.Parallel()

	svc, store, _ := newTestService(t, []domain.Event{testEvent()}, testTypes())

	res, _, err := svc.Reserve(context.Background(), ReserveParams{
		UserID:  42,
		EventID: 1,
		Items:   []ItemRequest{{TicketTypeID: 10, Quantity: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, 3, store.ticketType(10).ReservedCount)

	require.NoError(t, svc.Cancel(context.Background(), res.ID))
	assert.Zero(t, store.ticketType(10).ReservedCount)

	// second cancel is a no-op, nothing released twice
	require.NoError(t, svc.Cancel(context.Background(), res.ID))
	assert.Zero(t, store.ticketType(10).ReservedCount)

	got, _, err := svc.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, got.Status)
}

func TestGet_LazilyExpiresDueReservation(t *testing.T) {
	t.Parallel()

	svc, store, clk := newTestService(t, []domain.Event{testEvent()}, testTypes())

	res, _, err := svc.Reserve(context.Background(), ReserveParams{
		UserID:  42,
		EventID: 1,
		Items:   []ItemRequest{{TicketTypeID: 10, Quantity: 2}},
	})
	require.NoError(t, err)

	clk.Advance(11 * time.Minute)

	got, _, err := svc.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationExpired, got.Status)
	assert.Zero(t, store.ticketType(10).ReservedCount)
}

func TestExpire_SweepReleasesExactlyOnce(t *testing.T) {
	t.Parallel()

	svc, store, clk := newTestService(t, []domain.Event{testEvent()}, testTypes())

	for _, qty := range []int{2, 3, 1} {
		_, _, err := svc.Reserve(context.Background(), ReserveParams{
			UserID:  42,
			EventID: 1,
			Items:   []ItemRequest{{TicketTypeID: 10, Quantity: qty}},
		})
		require.NoError(t, err)
	}
	require.Equal(t, 6, store.ticketType(10).ReservedCount)

	clk.Advance(11 * time.Minute)

	released, err := svc.Expire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), released)
	assert.Zero(t, store.ticketType(10).ReservedCount)

	// a second sweep finds nothing left to release
	released, err = svc.Expire(context.Background())
	require.NoError(t, err)
	assert.Zero(t, released)
	assert.Zero(t, store.ticketType(10).ReservedCount)
}

func TestExpiredInventoryBecomesReservableAgain(t *testing.T) {
	t.Parallel()

	svc, _, clk := newTestService(t, []domain.Event{testEvent()}, testTypes())

	// fill General completely
	for _, qty := range []int{4, 4, 2} {
		_, _, err := svc.Reserve(context.Background(), ReserveParams{
			UserID:  42,
			EventID: 1,
			Items:   []ItemRequest{{TicketTypeID: 10, Quantity: qty}},
		})
		require.NoError(t, err)
	}

	_, _, err := svc.Reserve(context.Background(), ReserveParams{
		UserID:  43,
		EventID: 1,
		Items:   []ItemRequest{{TicketTypeID: 10, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrInsufficientInventory)

	clk.Advance(11 * time.Minute)

	_, err = svc.Expire(context.Background())
	require.NoError(t, err)

	_, _, err = svc.Reserve(context.Background(), ReserveParams{
		UserID:  43,
		EventID: 1,
		Items:   []ItemRequest{{TicketTypeID: 10, Quantity: 1}},
	})
	require.NoError(t, err)
}
