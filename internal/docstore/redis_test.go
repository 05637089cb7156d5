package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	st := NewRedisStore(client, opts...)
	t.Cleanup(func() { _ = st.Close() })
	return st, mr
}

func TestRedisStore_CRUD(t *testing.T) {
	t.Run("Should insert, merge and delete JSON records", func(t *testing.T) {
		ctx := t.Context()
		st, mr := newTestRedisStore(t, WithKeyPrefix("test"))
		id, err := st.Insert(ctx, "members", "m1", map[string]any{"name": "Sari", "role": "Ketua"})
		require.NoError(t, err)
		assert.Equal(t, "m1", id)
		assert.True(t, mr.Exists("test:members:doc:m1"))

		require.NoError(t, st.UpdateFields(ctx, "members", "m1", map[string]any{"status": "active"}))
		rec, err := st.GetOne(ctx, "members", "m1")
		require.NoError(t, err)
		assert.Equal(t, "Sari", rec.Fields["name"])
		assert.Equal(t, "active", rec.Fields["status"])

		require.NoError(t, st.Delete(ctx, "members", "m1"))
		_, err = st.GetOne(ctx, "members", "m1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.False(t, mr.Exists("test:members:doc:m1"))
	})
	t.Run("Should map missing and duplicate records to sentinel errors", func(t *testing.T) {
		ctx := t.Context()
		st, _ := newTestRedisStore(t)
		_, err := st.Insert(ctx, "members", "m1", map[string]any{})
		require.NoError(t, err)
		_, err = st.Insert(ctx, "members", "m1", map[string]any{})
		assert.ErrorIs(t, err, ErrAlreadyExists)
		assert.ErrorIs(t, st.UpdateFields(ctx, "members", "missing", map[string]any{"a": "b"}), ErrNotFound)
		assert.ErrorIs(t, st.Delete(ctx, "members", "missing"), ErrNotFound)
	})
	t.Run("Should generate ids when none is given", func(t *testing.T) {
		st, _ := newTestRedisStore(t)
		id, err := st.Insert(t.Context(), "reports", "", map[string]any{"name": "LPJ"})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	})
}

func TestRedisStore_Find(t *testing.T) {
	t.Run("Should keep arrival order and apply filters", func(t *testing.T) {
		ctx := t.Context()
		st, _ := newTestRedisStore(t)
		for _, id := range []string{"z", "a", "m"} {
			_, err := st.Insert(ctx, "members", id, map[string]any{"status": "pending"})
			require.NoError(t, err)
		}
		require.NoError(t, st.UpdateFields(ctx, "members", "a", map[string]any{"status": "active"}))

		recs, err := st.Find(ctx, Query{Collection: "members"})
		require.NoError(t, err)
		assert.Equal(t, []string{"z", "a", "m"}, ids(recs))

		recs, err = st.Find(ctx, Query{Collection: "members", Where: []Condition{Eq("status", "pending")}, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"z"}, ids(recs))
	})
}

func TestRedisStore_Subscribe(t *testing.T) {
	t.Run("Should deliver the full set after each published change", func(t *testing.T) {
		ctx := t.Context()
		st, _ := newTestRedisStore(t, WithReconcileInterval(time.Hour))
		_, err := st.Insert(ctx, "members", "m1", map[string]any{"status": "pending"})
		require.NoError(t, err)

		ch, err := st.Subscribe(ctx, Query{Collection: "members"})
		require.NoError(t, err)
		assert.Equal(t, []string{"m1"}, ids(recvSet(t, ch)))

		_, err = st.Insert(ctx, "members", "m2", map[string]any{"status": "pending"})
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			select {
			case recs := <-ch:
				return len(recs) == 2
			default:
				return false
			}
		}, 2*time.Second, 10*time.Millisecond)
	})
	t.Run("Should keep the subscription through a transient server error", func(t *testing.T) {
		ctx := t.Context()
		st, mr := newTestRedisStore(t, WithReconcileInterval(20*time.Millisecond))
		ch, err := st.Subscribe(ctx, Query{Collection: "members"})
		require.NoError(t, err)
		assert.Empty(t, recvSet(t, ch))

		mr.SetError("ERR transient blip")
		time.Sleep(60 * time.Millisecond)
		mr.SetError("")

		_, err = st.Insert(ctx, "members", "m1", map[string]any{"status": "pending"})
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			select {
			case recs, ok := <-ch:
				require.True(t, ok, "subscription closed")
				return len(recs) == 1
			default:
				return false
			}
		}, 2*time.Second, 10*time.Millisecond)
	})
	t.Run("Should close the channel on context cancel and store close", func(t *testing.T) {
		st, _ := newTestRedisStore(t)
		ctx, cancel := context.WithCancel(t.Context())
		ch, err := st.Subscribe(ctx, Query{Collection: "members"})
		require.NoError(t, err)
		cancel()
		require.Eventually(t, func() bool {
			select {
			case _, ok := <-ch:
				return !ok
			default:
				return false
			}
		}, 2*time.Second, 10*time.Millisecond)

		ch2, err := st.Subscribe(t.Context(), Query{Collection: "members"})
		require.NoError(t, err)
		require.NoError(t, st.Close())
		require.Eventually(t, func() bool {
			select {
			case _, ok := <-ch2:
				return !ok
			default:
				return false
			}
		}, 2*time.Second, 10*time.Millisecond)
		_, err = st.Subscribe(t.Context(), Query{Collection: "members"})
		assert.ErrorIs(t, err, ErrClosed)
	})
}
