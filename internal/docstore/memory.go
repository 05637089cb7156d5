package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store. It is safe for concurrent use and intended for dev/tests.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
	subscribers map[string][]*memorySubscriber
	closed      bool
}

type memoryCollection struct {
	order []string
	docs  map[string]map[string]any
}

type memorySubscriber struct {
	query  Query
	ch     chan []Record
	closed bool
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
		subscribers: make(map[string][]*memorySubscriber),
	}
}

// Subscribe primes the subscriber with the current result set.
func (s *MemoryStore) Subscribe(ctx context.Context, q Query) (<-chan []Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	sub := &memorySubscriber{query: q, ch: make(chan []Record, 1)}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.subscribers[q.Collection] = append(s.subscribers[q.Collection], sub)
	offerLatest(sub.ch, s.resultLocked(q))
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
		s.removeSubscriber(q.Collection, sub)
	}()
	return sub.ch, nil
}

// GetOne returns a copy of the stored record.
func (s *MemoryStore) GetOne(ctx context.Context, collection, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, fmt.Errorf("context canceled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, ErrClosed
	}
	col, ok := s.collections[collection]
	if !ok {
		return Record{}, ErrNotFound
	}
	doc, ok := col.docs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return Record{ID: id, Fields: copyFields(doc)}, nil
}

// Find runs q against the current contents.
func (s *MemoryStore) Find(ctx context.Context, q Query) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.resultLocked(q), nil
}

// Insert adds a record and notifies subscribers of the collection.
func (s *MemoryStore) Insert(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}
	doc, err := normalizeFields(fields)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	col := s.collectionLocked(collection)
	if _, exists := col.docs[id]; exists {
		return "", ErrAlreadyExists
	}
	col.docs[id] = doc
	col.order = append(col.order, id)
	s.broadcastLocked(collection)
	return id, nil
}

// UpdateFields merges fields into an existing record.
func (s *MemoryStore) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	patch, err := normalizeFields(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	col, ok := s.collections[collection]
	if !ok {
		return ErrNotFound
	}
	doc, ok := col.docs[id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range patch {
		doc[k] = v
	}
	s.broadcastLocked(collection)
	return nil
}

// Delete removes a record permanently.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	col, ok := s.collections[collection]
	if !ok {
		return ErrNotFound
	}
	if _, ok := col.docs[id]; !ok {
		return ErrNotFound
	}
	delete(col.docs, id)
	for i, existing := range col.order {
		if existing == id {
			col.order = append(col.order[:i:i], col.order[i+1:]...)
			break
		}
	}
	s.broadcastLocked(collection)
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close releases resources and closes every subscription channel.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, list := range s.subscribers {
		for _, sub := range list {
			if !sub.closed {
				close(sub.ch)
				sub.closed = true
			}
		}
	}
	s.subscribers = make(map[string][]*memorySubscriber)
	return nil
}

func (s *MemoryStore) collectionLocked(name string) *memoryCollection {
	col, ok := s.collections[name]
	if !ok {
		col = &memoryCollection{docs: make(map[string]map[string]any)}
		s.collections[name] = col
	}
	return col
}

func (s *MemoryStore) resultLocked(q Query) []Record {
	col, ok := s.collections[q.Collection]
	if !ok {
		return []Record{}
	}
	records := make([]Record, 0, len(col.order))
	for _, id := range col.order {
		records = append(records, Record{ID: id, Fields: copyFields(col.docs[id])})
	}
	return applyQuery(records, q)
}

// broadcastLocked runs while holding the store lock so channels cannot be closed mid-send.
func (s *MemoryStore) broadcastLocked(collection string) {
	for _, sub := range s.subscribers[collection] {
		if sub.closed {
			continue
		}
		offerLatest(sub.ch, s.resultLocked(sub.query))
	}
}

func (s *MemoryStore) removeSubscriber(collection string, target *memorySubscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.subscribers[collection]
	kept := list[:0:0]
	for _, sub := range list {
		if sub != target {
			kept = append(kept, sub)
		}
	}
	if len(kept) == 0 {
		delete(s.subscribers, collection)
	} else {
		s.subscribers[collection] = kept
	}
	if !target.closed {
		close(target.ch)
		target.closed = true
	}
}
