package failover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/GOTO-OBS/gtecs-common/lib/store"
	"github.com/GOTO-OBS/gtecs-common/lib/store/memstore"
	"github.com/GOTO-OBS/gtecs-common/lib/store/sqlstore"
)

// --------------------------------------------------------------------------
// State Machine
// --------------------------------------------------------------------------

// State is the connectivity state of the failover store.
type State int32

const (
	// StateConnected: reads and writes go to the database, the cache
	// mirrors confirmed state.
	StateConnected State = iota
	// StateDegraded: the database is unreachable. Reads are served from
	// the cache without blocking; writes are queued or rejected depending
	// on configuration.
	StateDegraded
	// StateReconciling: connectivity returned and the pending-write queue
	// is being drained against the live store.
	StateReconciling
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateDegraded:
		return "Degraded"
	case StateReconciling:
		return "Reconciling"
	default:
		return "Unknown"
	}
}

// errSuperseded marks a queued Put whose target record was changed by
// another writer while this process was degraded.
var errSuperseded = errors.New("queued write superseded by a newer record")

var (
	degradedTotal         = metrics.GetOrCreateCounter(`gtecs_failover_degraded_total`)
	queuedWritesTotal     = metrics.GetOrCreateCounter(`gtecs_failover_queued_writes_total`)
	reconciledWritesTotal = metrics.GetOrCreateCounter(`gtecs_failover_reconciled_writes_total`)
	reconcileConflicts    = metrics.GetOrCreateCounter(`gtecs_failover_reconcile_conflicts_total`)
	cacheReadsTotal       = metrics.GetOrCreateCounter(`gtecs_failover_cache_reads_total`)
)

// --------------------------------------------------------------------------
// Core failover store structure
// --------------------------------------------------------------------------

// failoverStore wraps a database-backed store together with an in-process
// cache mirror and degrades gracefully when the database is unreachable.
type failoverStore struct {
	cfg    store.Config
	db     store.IRecordStore
	cache  *memstore.Store
	logger *slog.Logger

	state atomic.Int32
	queue *writeQueue

	// reconcileMu serializes drains so that the queue order is preserved
	// even when a health probe and an operation trigger reconciliation at
	// the same time.
	reconcileMu sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates the shared-state entry point for a control daemon. With a
// database configured it returns a failover store that mirrors confirmed
// state into an in-process cache and survives outages; without one it
// returns a plain memstore, permanently serving from process memory.
func New(cfg store.Config) (store.IRecordStore, error) {
	cfg = cfg.WithDefaults()

	if !cfg.Database.Enabled() {
		slog.Default().With("component", "failover").
			Info("no database configured, serving from process memory only")
		return memstore.New(), nil
	}

	db, err := sqlstore.New(cfg)
	if err != nil {
		return nil, err
	}
	return Wrap(cfg, db), nil
}

// Wrap builds a failover store around an existing backend. Split out from
// New so that tests can substitute the database store.
func Wrap(cfg store.Config, db store.IRecordStore) store.IRecordStore {
	cfg = cfg.WithDefaults()

	f := &failoverStore{
		cfg:    cfg,
		db:     db,
		cache:  memstore.New(),
		logger: slog.Default().With("component", "failover"),
		queue:  newWriteQueue(),
		stopCh: make(chan struct{}),
	}

	// Initial state depends on whether the database answers right now.
	if err := db.HealthCheck(context.Background()); err != nil {
		f.state.Store(int32(StateDegraded))
		f.logger.Warn("starting degraded, database unreachable", "error", err)
	} else {
		f.state.Store(int32(StateConnected))
	}

	f.wg.Add(1)
	go f.healthLoop()

	return f
}

// CurrentState returns the connectivity state. Exposed for monitoring and
// tests; callers must not base correctness decisions on it, the state can
// change between the read and any following operation.
func (f *failoverStore) CurrentState() State {
	return State(f.state.Load())
}

func (f *failoverStore) setState(s State) {
	old := State(f.state.Swap(int32(s)))
	if old != s {
		f.logger.Info("state changed", "from", old.String(), "to", s.String(),
			"queued_writes", f.queue.Len())
	}
}

// markDegraded records a lost connection, triggered either by a failed
// health probe or by an operation hitting an unreachable database.
func (f *failoverStore) markDegraded() {
	if State(f.state.Swap(int32(StateDegraded))) != StateDegraded {
		degradedTotal.Inc()
		f.logger.Warn("database unreachable, entering degraded mode",
			"offline_writes", f.cfg.Degraded.AllowOfflineWrites)
	}
}

// --------------------------------------------------------------------------
// Health Loop and Reconciliation
// --------------------------------------------------------------------------

func (f *failoverStore) healthLoop() {
	defer f.wg.Done()

	interval := time.Duration(f.cfg.Degraded.HealthIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.probe()
		}
	}
}

func (f *failoverStore) probe() {
	ctx := context.Background()
	err := f.db.HealthCheck(ctx)

	switch f.CurrentState() {
	case StateConnected:
		if err != nil {
			f.markDegraded()
		}
	case StateDegraded:
		if err == nil {
			f.reconcile(ctx)
		}
	case StateReconciling:
		// A drain is already in progress.
	}
}

// reconcile drains the pending-write queue against the live store in the
// order the writes were made. Each entry is re-run through the optimistic
// update coordinator: applied writes refresh the cache, exhausted
// conflicts are reported and dropped, and a connectivity loss mid-drain
// puts the entry back and returns to Degraded.
func (f *failoverStore) reconcile(ctx context.Context) {
	f.reconcileMu.Lock()
	defer f.reconcileMu.Unlock()

	f.setState(StateReconciling)

	for {
		w, ok := f.queue.PopFront()
		if !ok {
			break
		}

		mutate := w.mutate
		if w.exact {
			// A Put was issued against a specific record state. If the
			// live version moved past it, another daemon wrote in the
			// meantime and this Put must not clobber that.
			base := w.baseVersion
			mutate = func(current store.Record) (store.Payload, error) {
				if current.Version != base {
					return nil, errSuperseded
				}
				return w.mutate(current)
			}
		}

		rec, err := f.db.Update(ctx, w.collection, w.key, mutate)
		switch {
		case err == nil:
			f.cache.SetRecordIfNewer(rec)
			reconciledWritesTotal.Inc()
		case errors.Is(err, errSuperseded):
			reconcileConflicts.Inc()
			f.logger.Warn("queued write superseded by a newer record",
				"collection", w.collection, "key", w.key, "queued_at", w.queuedAt)
		case store.IsConflict(err):
			reconcileConflicts.Inc()
			f.logger.Warn("queued write lost to a conflicting update",
				"collection", w.collection, "key", w.key, "queued_at", w.queuedAt)
		case store.IsUnavailable(err):
			f.queue.PushFront(w)
			f.setState(StateDegraded)
			return
		default:
			f.logger.Error("queued write failed during reconciliation",
				"collection", w.collection, "key", w.key, "error", err)
		}
	}

	f.setState(StateConnected)
	f.logger.Info("reconciliation complete")
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (f *failoverStore) Get(ctx context.Context, collection, key string) (store.Record, error) {
	if f.CurrentState() != StateDegraded {
		rec, err := f.db.Get(ctx, collection, key)
		switch {
		case err == nil:
			f.cache.SetRecordIfNewer(rec)
			return rec, nil
		case store.IsNotFound(err):
			return store.Record{}, err
		case store.IsUnavailable(err):
			f.markDegraded()
			// fall through to the cache
		default:
			return store.Record{}, err
		}
	}

	// Degraded reads never block on the database: last known value,
	// possibly stale.
	cacheReadsTotal.Inc()
	return f.cache.Get(ctx, collection, key)
}

func (f *failoverStore) Put(ctx context.Context, collection, key string, payload store.Payload) (store.Record, error) {
	if err := store.ValidatePayload(payload); err != nil {
		return store.Record{}, err
	}

	if f.CurrentState() != StateDegraded {
		rec, err := f.db.Put(ctx, collection, key, payload)
		if err == nil {
			f.cache.SetRecord(rec)
			return rec, nil
		}
		if !store.IsUnavailable(err) {
			return store.Record{}, err
		}
		f.markDegraded()
	}

	return f.queueWrite(ctx, collection, key, func(store.Record) (store.Payload, error) {
		return store.ClonePayload(payload), nil
	}, true)
}

func (f *failoverStore) Update(ctx context.Context, collection, key string, mutate store.Mutator) (store.Record, error) {
	if f.CurrentState() != StateDegraded {
		rec, err := f.db.Update(ctx, collection, key, mutate)
		if err == nil {
			f.cache.SetRecordIfNewer(rec)
			return rec, nil
		}
		if !store.IsUnavailable(err) {
			return store.Record{}, err
		}
		f.markDegraded()
	}

	return f.queueWrite(ctx, collection, key, mutate, false)
}

// queueWrite accepts a write while degraded: it is applied to the cache so
// subsequent reads observe it, and queued for reconciliation once
// connectivity returns. With offline writes disabled the write is rejected
// outright. For exact writes (queued Puts) the cached version at queue
// time is recorded: earlier queued writes to the same key replay ahead of
// this one in FIFO order, so the cache-local version tracks exactly where
// the live record will be when this entry's turn comes - unless another
// daemon wrote in between, which the replay then detects.
func (f *failoverStore) queueWrite(ctx context.Context, collection, key string, mutate store.Mutator, exact bool) (store.Record, error) {
	if !f.cfg.Degraded.AllowOfflineWrites {
		return store.Record{}, store.NewError(store.RetCStoreUnavailable,
			fmt.Sprintf("database unreachable and offline writes are disabled, rejecting write to %s/%s", collection, key))
	}

	var base int64
	if exact {
		if cached, err := f.cache.Get(ctx, collection, key); err == nil {
			base = cached.Version
		}
	}

	rec, err := f.cache.Update(ctx, collection, key, mutate)
	if err != nil {
		return store.Record{}, err
	}

	f.queue.Push(&pendingWrite{
		collection:  collection,
		key:         key,
		mutate:      mutate,
		queuedAt:    time.Now().UTC(),
		exact:       exact,
		baseVersion: base,
	})
	queuedWritesTotal.Inc()

	return rec, nil
}

func (f *failoverStore) List(ctx context.Context, collection string, filter store.Filter, fn func(store.Record) bool) error {
	if f.CurrentState() != StateDegraded {
		delivered := 0
		err := f.db.List(ctx, collection, filter, func(rec store.Record) bool {
			f.cache.SetRecordIfNewer(rec)
			delivered++
			return fn(rec)
		})
		if err == nil {
			return nil
		}
		if !store.IsUnavailable(err) {
			return err
		}
		f.markDegraded()
		if delivered > 0 {
			// The caller already saw part of the live sequence; switching
			// to the cache now would replay records. Surface the error and
			// let the caller restart the iteration.
			return err
		}
	}

	cacheReadsTotal.Inc()
	return f.cache.List(ctx, collection, filter, fn)
}

func (f *failoverStore) Verify(ctx context.Context, expected store.SchemaDescriptor) error {
	return f.db.Verify(ctx, expected)
}

func (f *failoverStore) Declare(ctx context.Context, desc store.SchemaDescriptor) error {
	return f.db.Declare(ctx, desc)
}

func (f *failoverStore) HealthCheck(ctx context.Context) error {
	return f.db.HealthCheck(ctx)
}

// Close stops the health loop, attempts one final drain of the pending
// queue and releases the database pool. Queued writes that cannot be
// applied are reported and lost: a mutator is a closure and cannot be
// persisted across process restarts.
func (f *failoverStore) Close() error {
	f.stopOnce.Do(func() {
		close(f.stopCh)
	})
	f.wg.Wait()

	if f.queue.Len() > 0 {
		ctx := context.Background()
		if err := f.db.HealthCheck(ctx); err == nil {
			f.reconcile(ctx)
		}
		if dropped := f.queue.Len(); dropped > 0 {
			f.logger.Error("closing with unreconciled pending writes", "dropped", dropped)
		}
	}

	return f.db.Close()
}
