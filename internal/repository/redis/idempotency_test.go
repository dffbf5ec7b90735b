package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStore(t *testing.T) {
	key := KeyIdemReserve(42, "abc-123")

	t.Run("acquire lock", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		defer mock.ClearExpect()

		s := NewIdempotencyStore(rdb, 2*time.Hour)

		mock.ExpectSetNX(key, "LOCK", 60*time.Second).SetVal(true)

		ok, err := s.AcquireLock(context.Background(), key, 60*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("save and read back result", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		defer mock.ClearExpect()

		s := NewIdempotencyStore(rdb, 2*time.Hour)
		payload := `{"reservation_id":"r-1"}`

		mock.ExpectSet(key, "RES:"+payload, 2*time.Hour).SetVal("OK")
		mock.ExpectGet(key).SetVal("RES:" + payload)

		require.NoError(t, s.SaveResult(context.Background(), key, payload))

		got, ok, err := s.GetResult(context.Background(), key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, payload, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock marker is not a result", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		defer mock.ClearExpect()

		s := NewIdempotencyStore(rdb, 2*time.Hour)

		mock.ExpectGet(key).SetVal("LOCK")

		_, ok, err := s.GetResult(context.Background(), key)
		require.NoError(t, err)
		assert.False(t, ok)

		mock.ExpectGet(key).SetVal("LOCK")

		locked, err := s.IsLocked(context.Background(), key)
		require.NoError(t, err)
		assert.True(t, locked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing key", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		defer mock.ClearExpect()

		s := NewIdempotencyStore(rdb, 2*time.Hour)

		mock.ExpectGet(key).RedisNil()

		_, ok, err := s.GetResult(context.Background(), key)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("release", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		defer mock.ClearExpect()

		s := NewIdempotencyStore(rdb, 2*time.Hour)

		mock.ExpectDel(key).SetVal(1)

		require.NoError(t, s.Release(context.Background(), key))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
