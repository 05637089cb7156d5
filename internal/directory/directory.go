// Package directory keeps a live, rank-sorted view of every member record.
//
// One goroutine owns the store subscription and is the only writer: each result set the store
// pushes is decoded into a new Snapshot and published with a single pointer swap. Readers call
// Current or Watch and never see a partially applied change.
package directory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/karteji/internal/docstore"
	"github.com/spec-kit/karteji/internal/observability"
	"github.com/spec-kit/karteji/internal/repository"
	apperrors "github.com/spec-kit/karteji/pkg/errorutil"
)

var (
	errNotStarted       = errors.New("member directory is not running")
	errSubscriptionLost = errors.New("member subscription closed by the store")
)

// Backoff bounds between attempts to restore a lost member subscription.
const (
	resubscribeMin = 100 * time.Millisecond
	resubscribeMax = 10 * time.Second
)

// Directory is safe for concurrent use.
type Directory struct {
	store   docstore.Store
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time

	retryMin, retryMax time.Duration

	current atomic.Pointer[Snapshot]

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	lost     error
	version  uint64
	watchers map[*watcher]struct{}
}

type watcher struct {
	ch chan *Snapshot
}

// New builds a stopped directory.
func New(store docstore.Store, logger *zap.Logger, metrics *observability.Metrics) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		store:    store,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		retryMin: resubscribeMin,
		retryMax: resubscribeMax,
		watchers: make(map[*watcher]struct{}),
	}
}

// Start subscribes to the member collection and blocks until the first result set is
// published or ctx ends. Calling Start on a running directory is a no-op.
func (d *Directory) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	subCtx, cancel := context.WithCancel(context.Background())
	updates, err := d.store.Subscribe(subCtx, repository.MembersQuery())
	if err != nil {
		cancel()
		return apperrors.NewStoreFailure("subscribe members", err)
	}

	var first []docstore.Record
	select {
	case recs, ok := <-updates:
		if !ok {
			cancel()
			return apperrors.NewStoreFailure("subscribe members", errSubscriptionLost)
		}
		first = recs
	case <-ctx.Done():
		cancel()
		return apperrors.NewStoreFailure("subscribe members", ctx.Err())
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		cancel()
		return nil
	}
	d.running = true
	d.lost = nil
	d.cancel = cancel
	d.done = make(chan struct{})
	done := d.done
	d.mu.Unlock()

	d.publish(first)
	go d.run(subCtx, updates, done)
	d.logger.Info("member directory started", zap.Int("members", d.Current().Len()))
	return nil
}

// Stop releases the subscription and closes every watch channel. The next Start fetches afresh.
func (d *Directory) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	cancel()
	<-done

	d.mu.Lock()
	for w := range d.watchers {
		close(w.ch)
		delete(d.watchers, w)
	}
	d.mu.Unlock()
	d.current.Store(nil)
	d.logger.Info("member directory stopped")
}

// Err is nil while the directory holds a live snapshot. Otherwise it is a STORE_FAILURE
// describing why: not running, or the store ended the subscription and it is being restored.
func (d *Directory) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost != nil {
		return d.lost
	}
	if !d.running {
		return apperrors.NewStoreFailure("read directory", errNotStarted)
	}
	return nil
}

// Current returns the latest snapshot; an empty one before the first result set.
func (d *Directory) Current() *Snapshot {
	if s := d.current.Load(); s != nil {
		return s
	}
	return emptySnapshot
}

// Watchers reports how many watch channels are open.
func (d *Directory) Watchers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.watchers)
}

// Watch delivers the current snapshot and then every replacement. A slow reader only sees the
// newest one. The channel closes when ctx ends or the directory stops.
func (d *Directory) Watch(ctx context.Context) <-chan *Snapshot {
	w := &watcher{ch: make(chan *Snapshot, 1)}
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		close(w.ch)
		return w.ch
	}
	d.watchers[w] = struct{}{}
	if s := d.current.Load(); s != nil {
		offerSnapshot(w.ch, s)
	}
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.watchers[w]; ok {
			delete(d.watchers, w)
			close(w.ch)
		}
	}()
	return w.ch
}

func (d *Directory) run(ctx context.Context, updates <-chan []docstore.Record, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case recs, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				d.setLost(apperrors.NewStoreFailure("subscribe members", errSubscriptionLost))
				d.logger.Error("member subscription lost; serving the last snapshot until it is restored")
				if updates = d.resubscribe(ctx); updates == nil {
					return
				}
				continue
			}
			d.publish(recs)
			d.setLost(nil)
		}
	}
}

// resubscribe retries the member subscription with exponential backoff. It returns nil once
// ctx ends. The caller clears the lost state when the fresh result set arrives.
func (d *Directory) resubscribe(ctx context.Context) <-chan []docstore.Record {
	wait := d.retryMin
	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		updates, err := d.store.Subscribe(ctx, repository.MembersQuery())
		if err == nil {
			d.logger.Info("member subscription restored")
			return updates
		}
		wait = min(wait*2, d.retryMax)
		d.logger.Warn("member resubscribe failed", zap.Duration("retry_in", wait), zap.Error(err))
	}
}

func (d *Directory) setLost(err error) {
	d.mu.Lock()
	d.lost = err
	d.mu.Unlock()
}

func (d *Directory) publish(recs []docstore.Record) {
	d.mu.Lock()
	d.version++
	version := d.version
	d.mu.Unlock()

	snap := newSnapshot(version, recs, d.now())
	d.current.Store(snap)

	for _, q := range snap.Quarantined() {
		d.logger.Warn("quarantined malformed member record", zap.String("member_id", q.ID), zap.Error(q.Err))
	}
	counts := snap.CountByStatus()
	byStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
	}
	d.metrics.RecordSnapshot(byStatus)
	d.logger.Debug("member snapshot replaced",
		zap.Uint64("version", version),
		zap.Int("members", snap.Len()),
		zap.Int("quarantined", len(snap.order)))

	d.mu.Lock()
	for w := range d.watchers {
		offerSnapshot(w.ch, snap)
	}
	d.mu.Unlock()
}

// offerSnapshot replaces any undelivered snapshot in a one-slot channel. Callers hold d.mu.
func offerSnapshot(ch chan *Snapshot, s *Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
