// Package docstore defines the schemaless document store the directory is built on,
// together with its memory, Redis, Postgres and Mongo backends.
package docstore

import (
	"context"
	"errors"
)

// Record is one document as it travels on the wire: an id plus schemaless fields.
type Record struct {
	ID     string
	Fields map[string]any
}

// Condition is an equality filter on a top-level field.
type Condition struct {
	Field string
	Value any
}

// Eq builds an equality condition.
func Eq(field string, value any) Condition {
	return Condition{Field: field, Value: value}
}

// Order sorts results by a top-level field.
type Order struct {
	Field string
	Desc  bool
}

// Query selects records from one collection.
// Results follow OrderBy and then arrival order; Limit <= 0 means unbounded.
type Query struct {
	Collection string
	Where      []Condition
	OrderBy    []Order
	Limit      int
}

// Store is the contract every backend implements. Implementations must be safe for concurrent use.
type Store interface {
	// Subscribe delivers the full result set of q now and again after every change to the collection.
	// Slow readers only ever observe the most recent set. The channel closes when ctx ends,
	// the store closes, or the backend connection is lost.
	Subscribe(ctx context.Context, q Query) (<-chan []Record, error)

	// GetOne returns ErrNotFound when id does not exist.
	GetOne(ctx context.Context, collection, id string) (Record, error)

	// Find runs q once.
	Find(ctx context.Context, q Query) ([]Record, error)

	// Insert stores a new record. An empty id asks the store to generate one.
	Insert(ctx context.Context, collection, id string, fields map[string]any) (string, error)

	// UpdateFields merges fields into an existing record.
	UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete permanently removes a record.
	Delete(ctx context.Context, collection, id string) error

	Ping(ctx context.Context) error
	Close() error
}

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	ErrClosed        = errors.New("store is closed")
)
