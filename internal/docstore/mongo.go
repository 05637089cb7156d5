package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
)

// arrivalField orders documents by insertion; ObjectIDs grow monotonically per process.
const arrivalField = "_arrival"

// mongoDriver is the slice of the driver MongoStore talks to. Lookups report ErrNotFound and
// duplicate ids ErrAlreadyExists, so the store never inspects driver errors itself.
type mongoDriver interface {
	FindOne(ctx context.Context, collection string, filter bson.D) (bson.M, error)
	Find(ctx context.Context, collection string, filter, sort bson.D, limit int64) ([]bson.M, error)
	InsertOne(ctx context.Context, collection string, doc bson.M) error
	UpdateOne(ctx context.Context, collection string, filter, update bson.D) (matched int64, err error)
	DeleteOne(ctx context.Context, collection string, filter bson.D) (deleted int64, err error)
	Watch(ctx context.Context, collection string) (changeStream, error)
	Ping(ctx context.Context) error
}

// changeStream is satisfied by *mongo.ChangeStream.
type changeStream interface {
	Next(ctx context.Context) bool
	Err() error
	Close(ctx context.Context) error
}

// MongoStore maps each collection onto a Mongo collection and watches it with change streams.
// Change streams need a replica set or sharded cluster.
type MongoStore struct {
	driver mongoDriver
	logger *zap.Logger

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewMongoStore builds a store on db. The client stays owned by the caller.
func NewMongoStore(db *mongo.Database, logger *zap.Logger) *MongoStore {
	return newMongoStore(databaseDriver{db: db}, logger)
}

func newMongoStore(driver mongoDriver, logger *zap.Logger) *MongoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoStore{driver: driver, logger: logger, done: make(chan struct{})}
}

func (s *MongoStore) Subscribe(ctx context.Context, q Query) (<-chan []Record, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	subCtx, cancel := context.WithCancel(ctx)
	cs, err := s.driver.Watch(subCtx, q.Collection)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open change stream: %w", err)
	}
	initial, err := s.Find(subCtx, q)
	if err != nil {
		_ = cs.Close(context.Background())
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
		defer func() { _ = cs.Close(context.Background()) }()
		for cs.Next(subCtx) {
			recs, ok := findWithRetry(subCtx, s.Find, q, func(err error) {
				s.logger.Warn("subscription refresh failed", zap.String("collection", q.Collection), zap.Error(err))
			})
			if !ok {
				return
			}
			offerLatest(ch, recs)
		}
		if err := cs.Err(); err != nil && subCtx.Err() == nil {
			s.logger.Warn("change stream lost", zap.String("collection", q.Collection), zap.Error(err))
		}
	}()
	return ch, nil
}

func (s *MongoStore) GetOne(ctx context.Context, collection, id string) (Record, error) {
	if err := s.ready(ctx); err != nil {
		return Record{}, err
	}
	doc, err := s.driver.FindOne(ctx, collection, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return Record{}, err
	}
	return toRecord(doc), nil
}

func (s *MongoStore) Find(ctx context.Context, q Query) ([]Record, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	docs, err := s.driver.Find(ctx, q.Collection, mongoFilter(q.Where), mongoSort(q.OrderBy), int64(max(q.Limit, 0)))
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, toRecord(doc))
	}
	return records, nil
}

func (s *MongoStore) Insert(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	doc, err := normalizeFields(fields)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}
	stored := bson.M{"_id": id, arrivalField: bson.NewObjectID()}
	for k, v := range doc {
		if strings.HasPrefix(k, "_") {
			continue
		}
		stored[k] = v
	}
	if err := s.driver.InsertOne(ctx, collection, stored); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MongoStore) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	patch, err := normalizeFields(fields)
	if err != nil {
		return err
	}
	set := bson.M{}
	for k, v := range patch {
		if strings.HasPrefix(k, "_") {
			continue
		}
		set[k] = v
	}
	if len(set) == 0 {
		_, err := s.GetOne(ctx, collection, id)
		return err
	}
	matched, err := s.driver.UpdateOne(ctx, collection,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: set}},
	)
	if err != nil {
		return err
	}
	if matched == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	deleted, err := s.driver.DeleteOne(ctx, collection, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.driver.Ping(ctx)
}

// Close ends every subscription. The client stays connected.
func (s *MongoStore) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})
	return nil
}

func (s *MongoStore) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// databaseDriver runs mongoDriver calls against a live database.
type databaseDriver struct {
	db *mongo.Database
}

func (d databaseDriver) FindOne(ctx context.Context, collection string, filter bson.D) (bson.M, error) {
	var doc bson.M
	if err := d.db.Collection(collection).FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (d databaseDriver) Find(ctx context.Context, collection string, filter, sort bson.D, limit int64) ([]bson.M, error) {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := d.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (d databaseDriver) InsertOne(ctx context.Context, collection string, doc bson.M) error {
	if _, err := d.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (d databaseDriver) UpdateOne(ctx context.Context, collection string, filter, update bson.D) (int64, error) {
	res, err := d.db.Collection(collection).UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (d databaseDriver) DeleteOne(ctx context.Context, collection string, filter bson.D) (int64, error) {
	res, err := d.db.Collection(collection).DeleteOne(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (d databaseDriver) Watch(ctx context.Context, collection string) (changeStream, error) {
	return d.db.Collection(collection).Watch(ctx, mongo.Pipeline{})
}

func (d databaseDriver) Ping(ctx context.Context) error {
	return d.db.Client().Ping(ctx, readpref.Primary())
}

func mongoFilter(where []Condition) bson.D {
	filter := bson.D{}
	for _, c := range where {
		filter = append(filter, bson.E{Key: c.Field, Value: c.Value})
	}
	return filter
}

func mongoSort(orders []Order) bson.D {
	sort := bson.D{}
	for _, o := range orders {
		dir := 1
		if o.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: o.Field, Value: dir})
	}
	return append(sort, bson.E{Key: arrivalField, Value: 1})
}

// toRecord strips driver-owned fields and turns BSON containers into plain maps and slices.
func toRecord(doc bson.M) Record {
	rec := Record{Fields: make(map[string]any, len(doc))}
	for k, v := range doc {
		if k == "_id" {
			rec.ID = fmt.Sprint(v)
			continue
		}
		if strings.HasPrefix(k, "_") {
			continue
		}
		rec.Fields[k] = plainValue(v)
	}
	return rec
}

func plainValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = plainValue(inner)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = plainValue(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i := range t {
			out[i] = plainValue(t[i])
		}
		return out
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}
