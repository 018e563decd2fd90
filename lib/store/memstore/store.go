package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/GOTO-OBS/gtecs-common/lib/store"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// --------------------------------------------------------------------------
// Core memory store structure
// --------------------------------------------------------------------------

// Store implements store.IRecordStore entirely in process memory. It is the
// backend used when database support is not enabled, and the cache mirror
// inside the failover store. The concrete type is exported because the
// failover store needs the mirror operations (SetRecord, DropRecord) that
// are not part of the IRecordStore interface.
type Store struct {
	collections *xsync.MapOf[string, *xsync.MapOf[string, store.Record]]

	// declared guards the schema descriptor recorded by Declare.
	declaredMu sync.Mutex
	declared   *store.SchemaDescriptor
}

// New creates an empty in-process record store.
func New() *Store {
	return &Store{
		collections: xsync.NewMapOf[string, *xsync.MapOf[string, store.Record]](),
	}
}

// collection returns the map backing one collection, creating it on first
// access.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) collection(name string) *xsync.MapOf[string, store.Record] {
	c, _ := s.collections.LoadOrCompute(name, func() *xsync.MapOf[string, store.Record] {
		return xsync.NewMapOf[string, store.Record]()
	})
	return c
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *Store) Get(_ context.Context, collection, key string) (store.Record, error) {
	rec, ok := s.collection(collection).Load(key)
	if !ok {
		return store.Record{}, store.NewError(store.RetCNotFound,
			fmt.Sprintf("no record %s/%s", collection, key))
	}
	return rec.Clone(), nil
}

func (s *Store) Put(_ context.Context, collection, key string, payload store.Payload) (store.Record, error) {
	if err := store.ValidatePayload(payload); err != nil {
		return store.Record{}, err
	}

	var result store.Record
	s.collection(collection).Compute(key, func(old store.Record, loaded bool) (store.Record, bool) {
		version := int64(1)
		if loaded {
			version = old.Version + 1
		}
		result = store.Record{
			Collection: collection,
			Key:        key,
			Payload:    store.ClonePayload(payload),
			Version:    version,
			UpdatedAt:  nowUTC(),
		}
		return result, false
	})

	return result.Clone(), nil
}

func (s *Store) Update(_ context.Context, collection, key string, mutate store.Mutator) (store.Record, error) {
	var (
		result store.Record
		outErr error
	)

	// The whole read-mutate-write cycle runs inside Compute, which is
	// atomic per key, so in-process updates can never lose a race. The
	// mutator contract (side-effect free) still holds: cross-process
	// implementations do retry it.
	s.collection(collection).Compute(key, func(old store.Record, loaded bool) (store.Record, bool) {
		current := store.Record{Collection: collection, Key: key}
		if loaded {
			current = old.Clone()
		}

		payload, err := mutate(current)
		if err != nil {
			outErr = store.WrapError(store.RetCInternalError, "mutator failed", err)
			return old, !loaded
		}
		if err := store.ValidatePayload(payload); err != nil {
			outErr = err
			return old, !loaded
		}

		result = store.Record{
			Collection: collection,
			Key:        key,
			Payload:    store.ClonePayload(payload),
			Version:    current.Version + 1,
			UpdatedAt:  nowUTC(),
		}
		return result, false
	})

	if outErr != nil {
		return store.Record{}, outErr
	}
	return result.Clone(), nil
}

func (s *Store) List(_ context.Context, collection string, filter store.Filter, fn func(store.Record) bool) error {
	c := s.collection(collection)

	// Range order is unspecified, so collect and sort the keys to give the
	// deterministic key-ascending sequence the interface promises.
	var keys []string
	c.Range(func(key string, _ store.Record) bool {
		if filter.KeyPrefix == "" || strings.HasPrefix(key, filter.KeyPrefix) {
			keys = append(keys, key)
		}
		return true
	})
	sort.Strings(keys)

	for _, key := range keys {
		rec, ok := c.Load(key)
		if !ok {
			continue // deleted between Range and Load
		}
		if !fn(rec.Clone()) {
			return nil
		}
	}
	return nil
}

func (s *Store) Verify(_ context.Context, _ store.SchemaDescriptor) error {
	// All state lives in this process, so the schema always matches the
	// running code.
	return nil
}

func (s *Store) Declare(_ context.Context, desc store.SchemaDescriptor) error {
	s.declaredMu.Lock()
	defer s.declaredMu.Unlock()

	if s.declared != nil && s.declared.Version != desc.Version {
		return store.NewError(store.RetCAlreadyInitialized,
			fmt.Sprintf("store already declares schema version %d (requested %d)", s.declared.Version, desc.Version))
	}
	s.declared = &desc
	return nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Mirror Operations (used by the failover store)
// --------------------------------------------------------------------------

// SetRecord stores a record exactly as given, without touching its version.
// The failover store uses this to mirror confirmed database state into the
// cache.
func (s *Store) SetRecord(rec store.Record) {
	s.collection(rec.Collection).Store(rec.Key, rec.Clone())
}

// SetRecordIfNewer stores the record only if the cached version is older.
// Used during reconciliation, where the live store's version wins over a
// stale cache entry.
func (s *Store) SetRecordIfNewer(rec store.Record) {
	s.collection(rec.Collection).Compute(rec.Key, func(old store.Record, loaded bool) (store.Record, bool) {
		if loaded && old.Version >= rec.Version {
			return old, false
		}
		return rec.Clone(), false
	})
}

// DropRecord removes a cached record.
func (s *Store) DropRecord(collection, key string) {
	s.collection(collection).Delete(key)
}
