package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketera/reserva/internal/domain"
)

func TestGetOrSetJSON_MissLoadsAndStores(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	c := New(rdb)
	key := KeyEventSummary(1)
	ttl := 60 * time.Second

	event := domain.Event{ID: 1, OrganizationID: 7, Title: "Summer Fest", Status: domain.EventActive}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	// first read outside singleflight, second inside, then the write-back
	mock.ExpectGet(key).RedisNil()
	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, string(payload), ttl).SetVal("OK")

	loads := 0
	got, err := GetOrSetJSON(context.Background(), c, key, ttl, func(ctx context.Context) (domain.Event, error) {
		loads++
		return event, nil
	})
	require.NoError(t, err)
	assert.Equal(t, event, got)
	assert.Equal(t, 1, loads)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrSetJSON_HitSkipsLoader(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	c := New(rdb)
	key := KeyEventSummary(2)

	event := domain.Event{ID: 2, Title: "Cached"}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	mock.ExpectGet(key).SetVal(string(payload))

	got, err := GetOrSetJSON(context.Background(), c, key, time.Minute, func(ctx context.Context) (domain.Event, error) {
		t.Fatal("loader must not run on cache hit")
		return domain.Event{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, event, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidateEvent_DropsBothKeys(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	c := New(rdb)

	mock.ExpectDel(KeyEventSummary(5), KeyEventAvailability(5)).SetVal(2)

	require.NoError(t, c.InvalidateEvent(context.Background(), 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}
