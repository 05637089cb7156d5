package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultRedisPrefix    = "karteji"
	defaultReconcileEvery = 30 * time.Second
	maxWatchRetries       = 5
)

var (
	insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('SET', KEYS[1], ARGV[1])
local seq = redis.call('INCR', KEYS[3])
redis.call('ZADD', KEYS[2], seq, ARGV[2])
return 1`)

	deleteScript = redis.NewScript(`
if redis.call('DEL', KEYS[1]) == 0 then return 0 end
redis.call('ZREM', KEYS[2], ARGV[1])
return 1`)
)

// RedisStore keeps each record as a JSON string and publishes a change event per write.
// Arrival order lives in a sorted set scored by a per-collection sequence.
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	reconcile time.Duration
	logger    *zap.Logger

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the key prefix (default "karteji").
func WithKeyPrefix(p string) RedisOption {
	return func(s *RedisStore) {
		if p != "" {
			s.prefix = p
		}
	}
}

// WithReconcileInterval sets how often subscriptions re-read their result set without an event.
func WithReconcileInterval(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.reconcile = d
		}
	}
}

// WithRedisLogger attaches a logger.
func WithRedisLogger(l *zap.Logger) RedisOption {
	return func(s *RedisStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewRedisStore builds a store on an existing client. The client stays owned by the caller.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		prefix:    defaultRedisPrefix,
		reconcile: defaultReconcileEvery,
		logger:    zap.NewNop(),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe listens on the collection's event channel and re-reads q after every event
// and on every reconcile tick.
func (s *RedisStore) Subscribe(ctx context.Context, q Query) (<-chan []Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}
	ps := s.client.Subscribe(ctx, s.eventsChannel(q.Collection))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe failed: %w", err)
	}
	initial, err := s.Find(ctx, q)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}
	ch := make(chan []Record, 1)
	offerLatest(ch, initial)
	go func() {
		defer close(ch)
		defer func() { _ = ps.Close() }()
		ticker := time.NewTicker(s.reconcile)
		defer ticker.Stop()
		msgs := ps.Channel()
		// A failed re-read keeps the subscription; the next event or tick retries it.
		refresh := func() {
			recs, err := s.Find(ctx, q)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("subscription refresh failed",
						zap.String("collection", q.Collection), zap.Error(err))
				}
				return
			}
			offerLatest(ch, recs)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
				refresh()
			case _, ok := <-msgs:
				if !ok {
					return
				}
				refresh()
			}
		}
	}()
	return ch, nil
}

func (s *RedisStore) GetOne(ctx context.Context, collection, id string) (Record, error) {
	if err := s.ready(ctx); err != nil {
		return Record{}, err
	}
	raw, err := s.client.Get(ctx, s.docKey(collection, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
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

func (s *RedisStore) Find(ctx context.Context, q Query) ([]Record, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	ids, err := s.client.ZRange(ctx, s.indexKey(q.Collection), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Record{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(q.Collection, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(ids))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		fields, err := decodeFields([]byte(str))
		if err != nil {
			return nil, fmt.Errorf("record %s/%s: %w", q.Collection, ids[i], err)
		}
		records = append(records, Record{ID: ids[i], Fields: fields})
	}
	return applyQuery(records, q), nil
}

func (s *RedisStore) Insert(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
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
	keys := []string{s.docKey(collection, id), s.indexKey(collection), s.seqKey(collection)}
	created, err := insertScript.Run(ctx, s.client, keys, payload, id).Int()
	if err != nil {
		return "", err
	}
	if created == 0 {
		return "", ErrAlreadyExists
	}
	s.publish(ctx, collection, "insert", id)
	return id, nil
}

// UpdateFields merges fields under WATCH so concurrent merges never drop each other's keys.
func (s *RedisStore) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	patch, err := normalizeFields(fields)
	if err != nil {
		return err
	}
	key := s.docKey(collection, id)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		doc, err := decodeFields(raw)
		if err != nil {
			return err
		}
		for k, v := range patch {
			doc[k] = v
		}
		payload, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode fields: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}
	for range maxWatchRetries {
		err = s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return err
		}
		s.publish(ctx, collection, "update", id)
		return nil
	}
	return fmt.Errorf("update %s/%s: %w", collection, id, err)
}

func (s *RedisStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	keys := []string{s.docKey(collection, id), s.indexKey(collection)}
	removed, err := deleteScript.Run(ctx, s.client, keys, id).Int()
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrNotFound
	}
	s.publish(ctx, collection, "delete", id)
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.client.Ping(ctx).Err()
}

// Close ends every subscription. The underlying client is left open.
func (s *RedisStore) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})
	return nil
}

func (s *RedisStore) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (s *RedisStore) publish(ctx context.Context, collection, op, id string) {
	if err := s.client.Publish(ctx, s.eventsChannel(collection), op+":"+id).Err(); err != nil {
		// subscribers still converge on the next reconcile tick
		s.logger.Warn("publish change failed",
			zap.String("collection", collection), zap.String("op", op), zap.Error(err))
	}
}

func (s *RedisStore) docKey(collection, id string) string {
	return s.join(collection, "doc", id)
}

func (s *RedisStore) indexKey(collection string) string {
	return s.join(collection, "index")
}

func (s *RedisStore) seqKey(collection string) string {
	return s.join(collection, "seq")
}

func (s *RedisStore) eventsChannel(collection string) string {
	return s.prefix + ":events:" + collection
}

func (s *RedisStore) join(parts ...string) string {
	b := strings.Builder{}
	b.WriteString(s.prefix)
	for _, p := range parts {
		b.WriteString(":")
		b.WriteString(p)
	}
	return b.String()
}
