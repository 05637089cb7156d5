package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ChangeChannel is the LISTEN/NOTIFY channel the documents trigger publishes to.
// The payload is the collection name.
const ChangeChannel = "document_changes"

const uniqueViolation = "23505"

// DBInterface is the subset of pgxpool.Pool the store needs; pgxmock pools satisfy it too.
type DBInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Notifier yields notifications from a LISTEN session.
type Notifier interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// ListenFunc opens a LISTEN session on channel.
type ListenFunc func(ctx context.Context, channel string) (Notifier, error)

// PostgresStore keeps every collection in one JSONB table and watches it through a trigger.
type PostgresStore struct {
	db     DBInterface
	listen ListenFunc
	logger *zap.Logger

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewPostgresStore builds a store. listen may be nil, in which case Subscribe is unavailable.
func NewPostgresStore(db DBInterface, listen ListenFunc, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{db: db, listen: listen, logger: logger, done: make(chan struct{})}
}

// PoolListener dedicates one pooled connection to each LISTEN session.
func PoolListener(pool *pgxpool.Pool) ListenFunc {
	return func(ctx context.Context, channel string) (Notifier, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire listen connection: %w", err)
		}
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			conn.Release()
			return nil, fmt.Errorf("listen %s: %w", channel, err)
		}
		return &poolNotifier{conn: conn}, nil
	}
}

type poolNotifier struct {
	conn *pgxpool.Conn
}

func (n *poolNotifier) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return n.conn.Conn().WaitForNotification(ctx)
}

func (n *poolNotifier) Close(ctx context.Context) error {
	_, err := n.conn.Exec(ctx, "UNLISTEN *")
	if err != nil {
		// the session state is unknown, drop the connection instead of returning it
		_ = n.conn.Conn().Close(ctx)
	}
	n.conn.Release()
	return err
}

func (s *PostgresStore) Subscribe(ctx context.Context, q Query) (<-chan []Record, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if s.listen == nil {
		return nil, errors.New("postgres store has no listener configured")
	}
	subCtx, cancel := context.WithCancel(ctx)
	notifier, err := s.listen(subCtx, ChangeChannel)
	if err != nil {
		cancel()
		return nil, err
	}
	initial, err := s.Find(subCtx, q)
	if err != nil {
		_ = notifier.Close(context.Background())
		cancel()
		return nil, err
	}
	ch := make(chan []Record, 1)
	offerLatest(ch, initial)
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-subCtx.Done():
		}
	}()
	go func() {
		defer close(ch)
		defer cancel()
		defer func() { _ = notifier.Close(context.Background()) }()
		for {
			n, err := notifier.WaitForNotification(subCtx)
			if err != nil {
				if subCtx.Err() == nil {
					s.logger.Warn("listen session lost", zap.String("collection", q.Collection), zap.Error(err))
				}
				return
			}
			if n.Payload != q.Collection {
				continue
			}
			recs, ok := findWithRetry(subCtx, s.Find, q, func(err error) {
				s.logger.Warn("subscription refresh failed", zap.String("collection", q.Collection), zap.Error(err))
			})
			if !ok {
				return
			}
			offerLatest(ch, recs)
		}
	}()
	return ch, nil
}

func (s *PostgresStore) GetOne(ctx context.Context, collection, id string) (Record, error) {
	if err := s.ready(ctx); err != nil {
		return Record{}, err
	}
	var raw []byte
	err := s.db.QueryRow(ctx,
		"SELECT fields FROM documents WHERE collection = $1 AND id = $2",
		collection, id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return Record{}, err
	}
	return Record{ID: id, Fields: fields}, nil
}

func (s *PostgresStore) Find(ctx context.Context, q Query) ([]Record, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	sql, args, err := buildFindSQL(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := make([]Record, 0)
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, fmt.Errorf("record %s/%s: %w", q.Collection, id, err)
		}
		records = append(records, Record{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *PostgresStore) Insert(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	_, err = s.db.Exec(ctx,
		"INSERT INTO documents (collection, id, fields) VALUES ($1, $2, $3::jsonb)",
		collection, id, string(payload),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", ErrAlreadyExists
		}
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		"UPDATE documents SET fields = fields || $3::jsonb, updated_at = NOW() WHERE collection = $1 AND id = $2",
		collection, id, string(payload),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		"DELETE FROM documents WHERE collection = $1 AND id = $2",
		collection, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Ping(ctx)
}

// Close ends every subscription. The pool stays open.
func (s *PostgresStore) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})
	return nil
}

func (s *PostgresStore) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// buildFindSQL renders q against the documents table. Field names travel as parameters.
func buildFindSQL(q Query) (string, []any, error) {
	args := []any{q.Collection}
	b := strings.Builder{}
	b.WriteString("SELECT id, fields FROM documents WHERE collection = $1")
	for _, c := range q.Where {
		text, err := conditionText(c.Value)
		if err != nil {
			return "", nil, err
		}
		args = append(args, c.Field, text)
		fmt.Fprintf(&b, " AND fields ->> $%d::text = $%d::text", len(args)-1, len(args))
	}
	b.WriteString(" ORDER BY ")
	for _, o := range q.OrderBy {
		args = append(args, o.Field)
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, "fields -> $%d::text %s, ", len(args), dir)
	}
	b.WriteString("seq ASC")
	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.Limit))
	}
	return b.String(), args, nil
}

// conditionText matches the text form ->> produces for a JSON value.
func conditionText(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode condition: %w", err)
	}
	return string(raw), nil
}
