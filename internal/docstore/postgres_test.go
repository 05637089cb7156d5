package docstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	notes  chan *pgconn.Notification
	closed chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{notes: make(chan *pgconn.Notification, 4), closed: make(chan struct{})}
}

func (f *fakeNotifier) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	select {
	case n := <-f.notes:
		return n, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeNotifier) Close(context.Context) error {
	close(f.closed)
	return nil
}

func TestBuildFindSQL(t *testing.T) {
	t.Run("Should parameterize filters, ordering and fall back to arrival order", func(t *testing.T) {
		sql, args, err := buildFindSQL(Query{
			Collection: "members",
			Where:      []Condition{Eq("status", "pending"), Eq("verified", true)},
			OrderBy:    []Order{{Field: "joinedAt", Desc: true}},
			Limit:      5,
		})
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT id, fields FROM documents WHERE collection = $1"+
				" AND fields ->> $2::text = $3::text AND fields ->> $4::text = $5::text"+
				" ORDER BY fields -> $6::text DESC, seq ASC LIMIT 5",
			sql)
		assert.Equal(t, []any{"members", "status", "pending", "verified", "true", "joinedAt"}, args)
	})
}

func TestPostgresStore_CRUD(t *testing.T) {
	t.Run("Should insert JSON fields and map unique violations", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		st := NewPostgresStore(mock, nil, nil)
		insert := regexp.QuoteMeta("INSERT INTO documents (collection, id, fields) VALUES ($1, $2, $3::jsonb)")
		mock.ExpectExec(insert).
			WithArgs("members", "m1", `{"name":"Sari"}`).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(insert).
			WithArgs("members", "m1", `{"name":"Sari"}`).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		id, err := st.Insert(t.Context(), "members", "m1", map[string]any{"name": "Sari"})
		require.NoError(t, err)
		assert.Equal(t, "m1", id)
		_, err = st.Insert(t.Context(), "members", "m1", map[string]any{"name": "Sari"})
		assert.ErrorIs(t, err, ErrAlreadyExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("Should merge updates and report missing rows", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		st := NewPostgresStore(mock, nil, nil)
		update := regexp.QuoteMeta("UPDATE documents SET fields = fields || $3::jsonb")
		mock.ExpectExec(update).
			WithArgs("members", "m1", `{"status":"active"}`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(update).
			WithArgs("members", "gone", `{"status":"active"}`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		require.NoError(t, st.UpdateFields(t.Context(), "members", "m1", map[string]any{"status": "active"}))
		assert.ErrorIs(t, st.UpdateFields(t.Context(), "members", "gone", map[string]any{"status": "active"}), ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("Should delete and read single records", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		st := NewPostgresStore(mock, nil, nil)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT fields FROM documents WHERE collection = $1 AND id = $2")).
			WithArgs("members", "m1").
			WillReturnRows(mock.NewRows([]string{"fields"}).AddRow([]byte(`{"role":"Anggota"}`)))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT fields FROM documents WHERE collection = $1 AND id = $2")).
			WithArgs("members", "m2").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE collection = $1 AND id = $2")).
			WithArgs("members", "m1").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE collection = $1 AND id = $2")).
			WithArgs("members", "m1").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		rec, err := st.GetOne(t.Context(), "members", "m1")
		require.NoError(t, err)
		assert.Equal(t, "Anggota", rec.Fields["role"])
		_, err = st.GetOne(t.Context(), "members", "m2")
		assert.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, st.Delete(t.Context(), "members", "m1"))
		assert.ErrorIs(t, st.Delete(t.Context(), "members", "m1"), ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("Should surface driver errors untouched", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		st := NewPostgresStore(mock, nil, nil)
		boom := errors.New("connection reset")
		mock.ExpectQuery("SELECT id, fields FROM documents").WillReturnError(boom)
		_, err = st.Find(t.Context(), Query{Collection: "members"})
		assert.ErrorIs(t, err, boom)
	})
}

func TestPostgresStore_Subscribe(t *testing.T) {
	t.Run("Should re-query on notifications for its collection only", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		notifier := newFakeNotifier()
		listen := func(_ context.Context, channel string) (Notifier, error) {
			assert.Equal(t, ChangeChannel, channel)
			return notifier, nil
		}
		st := NewPostgresStore(mock, listen, nil)
		find := regexp.QuoteMeta("SELECT id, fields FROM documents WHERE collection = $1 ORDER BY seq ASC")
		mock.ExpectQuery(find).WithArgs("members").
			WillReturnRows(mock.NewRows([]string{"id", "fields"}).
				AddRow("m1", []byte(`{"status":"pending"}`)))
		mock.ExpectQuery(find).WithArgs("members").
			WillReturnRows(mock.NewRows([]string{"id", "fields"}).
				AddRow("m1", []byte(`{"status":"pending"}`)).
				AddRow("m2", []byte(`{"status":"pending"}`)))

		ctx, cancel := context.WithCancel(t.Context())
		ch, err := st.Subscribe(ctx, Query{Collection: "members"})
		require.NoError(t, err)
		assert.Equal(t, []string{"m1"}, ids(recvSet(t, ch)))

		notifier.notes <- &pgconn.Notification{Channel: ChangeChannel, Payload: "reports"}
		notifier.notes <- &pgconn.Notification{Channel: ChangeChannel, Payload: "members"}
		assert.Equal(t, []string{"m1", "m2"}, ids(recvSet(t, ch)))

		cancel()
		select {
		case <-notifier.closed:
		case <-time.After(time.Second):
			t.Fatal("listen session was not released")
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("Should retry a failed refresh instead of ending the subscription", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		notifier := newFakeNotifier()
		st := NewPostgresStore(mock, func(context.Context, string) (Notifier, error) { return notifier, nil }, nil)
		find := regexp.QuoteMeta("SELECT id, fields FROM documents WHERE collection = $1 ORDER BY seq ASC")
		mock.ExpectQuery(find).WithArgs("members").
			WillReturnRows(mock.NewRows([]string{"id", "fields"}).AddRow("m1", []byte(`{}`)))
		mock.ExpectQuery(find).WithArgs("members").WillReturnError(errors.New("connection reset"))
		mock.ExpectQuery(find).WithArgs("members").
			WillReturnRows(mock.NewRows([]string{"id", "fields"}).
				AddRow("m1", []byte(`{}`)).
				AddRow("m2", []byte(`{}`)))

		ch, err := st.Subscribe(t.Context(), Query{Collection: "members"})
		require.NoError(t, err)
		assert.Equal(t, []string{"m1"}, ids(recvSet(t, ch)))

		notifier.notes <- &pgconn.Notification{Channel: ChangeChannel, Payload: "members"}
		assert.Equal(t, []string{"m1", "m2"}, ids(recvSet(t, ch)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("Should refuse to subscribe without a listener", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		st := NewPostgresStore(mock, nil, nil)
		_, err = st.Subscribe(t.Context(), Query{Collection: "members"})
		assert.Error(t, err)
	})
}
