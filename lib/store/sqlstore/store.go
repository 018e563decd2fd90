package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver, imported for registration
	_ "github.com/mattn/go-sqlite3" // SQLite driver for embedded deployments

	"github.com/GOTO-OBS/gtecs-common/lib/store"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	connMaxLifetime = 5 * time.Minute // Maximum lifetime of a pooled connection
	connMaxIdleTime = 5 * time.Minute // Maximum idle time of a pooled connection

	// Initial backoff duration for acquire retries in milliseconds
	acquireBackoffMs = 50

	// healthCheckTimeout bounds the liveness probe so that a hung server
	// never blocks the degraded-mode state machine.
	healthCheckTimeout = 2 * time.Second
)

// collectionPattern restricts collection names to shapes that are safe to
// interpolate as SQL table identifiers.
var collectionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// --------------------------------------------------------------------------
// Core store structure
// --------------------------------------------------------------------------

// sqlStore implements store.IRecordStore on top of a relational database.
// The sqlx pool is the only mutable shared resource within the process and
// is internally synchronized; all cross-process mutual exclusion happens
// through the version-conditional writes in update.go.
type sqlStore struct {
	cfg    store.Config
	db     *sqlx.DB
	logger *slog.Logger

	// Schema verification runs at most once per process lifetime. Only a
	// check that reached the database is cached; a connectivity failure
	// leaves the gate open so a later Verify can run the check for real.
	verifyMu   sync.Mutex
	verifyDone bool
	verifyErr  error
}

// New creates a database-backed record store from the given configuration.
// The physical connections are opened lazily: construction succeeds even
// while the database is unreachable, and the first operation (or a
// HealthCheck) reports RetCConnectionUnavailable instead.
func New(cfg store.Config) (store.IRecordStore, error) {
	cfg = cfg.WithDefaults()

	if !cfg.Database.Enabled() {
		return nil, store.NewError(store.RetCInternalError, "no database driver configured")
	}

	db, err := sqlx.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, store.WrapError(store.RetCInternalError,
			fmt.Sprintf("failed to open %s database", cfg.Database.Driver), err)
	}

	// Bound the pool
	db.SetMaxOpenConns(cfg.Pool.MaxSize)
	db.SetMaxIdleConns(cfg.Pool.MaxSize)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	logger := slog.Default().With("component", "sqlstore", "driver", cfg.Database.Driver)
	logger.Info("opened record store", "pool_max_size", cfg.Pool.MaxSize)

	return &sqlStore{
		cfg:    cfg,
		db:     db,
		logger: logger,
	}, nil
}

// --------------------------------------------------------------------------
// Connection Management
// --------------------------------------------------------------------------

// withConn runs fn with one leased connection. The lease is bounded by the
// configured acquire timeout and retried with exponential backoff and a
// small random jitter (+-10%) while the database is unreachable. The
// connection is returned to the pool on every exit path.
func (s *sqlStore) withConn(ctx context.Context, fn func(ctx context.Context, conn *sqlx.Conn) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx,
		time.Duration(s.cfg.Pool.AcquireTimeoutSeconds)*time.Second)
	defer cancel()

	var lastErr error
	backoffMs := acquireBackoffMs

	maxRetries := s.cfg.Pool.RetryCount
	if maxRetries < 1 {
		maxRetries = 1
	}

	for i := 0; i < maxRetries; i++ {
		conn, err := s.db.Connx(acquireCtx)
		if err == nil {
			// The round trip itself runs under the caller's context; only
			// the acquire is bounded by the pool timeout.
			opErr := fn(ctx, conn)
			if closeErr := conn.Close(); closeErr != nil && opErr == nil {
				opErr = store.WrapError(store.RetCInternalError, "failed to release connection", closeErr)
			}
			return opErr
		}
		lastErr = err

		// An elapsed acquire timeout or caller cancellation abandons the
		// pending acquire immediately.
		if acquireCtx.Err() != nil {
			break
		}

		s.logger.Debug("connection acquire failed", "attempt", i+1, "max", maxRetries, "error", err)

		if i < maxRetries-1 {
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter) * time.Millisecond)
			backoffMs *= 2
		}
	}

	return store.WrapError(store.RetCConnectionUnavailable,
		fmt.Sprintf("database unreachable after %d attempts", maxRetries), lastErr)
}

// HealthCheck performs a cheap liveness probe. It is used by the failover
// store to decide whether to attempt reconciliation.
func (s *sqlStore) HealthCheck(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := s.db.PingContext(probeCtx); err != nil {
		return store.WrapError(store.RetCConnectionUnavailable, "health check failed", err)
	}
	return nil
}

// Close releases the connection pool. The store is invalid for use
// afterwards.
func (s *sqlStore) Close() error {
	s.logger.Info("closing record store")
	if err := s.db.Close(); err != nil {
		return store.WrapError(store.RetCInternalError, "failed to close connection pool", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// checkCollection validates that a collection name is safe to use as a
// table identifier.
func checkCollection(collection string) error {
	if !collectionPattern.MatchString(collection) {
		return store.NewError(store.RetCInternalError,
			fmt.Sprintf("invalid collection name %q", collection))
	}
	return nil
}
