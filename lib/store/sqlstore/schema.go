package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/GOTO-OBS/gtecs-common/lib/store"
)

// --------------------------------------------------------------------------
// Persisted schema layout
// --------------------------------------------------------------------------

// One metadata row records the current schema version. Independently
// deployed daemon versions share one database, so schema drift must be
// caught explicitly at startup rather than causing corrupted reads.
const schemaTableDDL = `
CREATE TABLE IF NOT EXISTS _schema (
	id INTEGER PRIMARY KEY,
	version INTEGER NOT NULL,
	declared_at TIMESTAMP NOT NULL
)`

const selectSchemaVersionSQL = `SELECT version FROM _schema WHERE id = 1`

const selectSchemaRowSQL = `SELECT version, declared_at FROM _schema WHERE id = 1`

const insertSchemaVersionSQL = `
INSERT INTO _schema (id, version, declared_at) VALUES (1, $1, $2)`

// collectionDDL is the table shape backing one collection: a unique key,
// a serialized payload, the version column driving conditional writes, and
// the time of the last write.
const collectionDDL = `
CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	version INTEGER NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// --------------------------------------------------------------------------
// Schema Registry
// --------------------------------------------------------------------------

// Verify checks the stored schema version against the expected descriptor.
// The check runs at most once per process lifetime; the result is cached
// for all later calls. A check that never reached the database is not a
// check: RetCConnectionUnavailable is surfaced but not cached, so a daemon
// whose startup raced a connectivity blip can verify again later. Verify
// performs no writes and never migrates.
func (s *sqlStore) Verify(ctx context.Context, expected store.SchemaDescriptor) error {
	s.verifyMu.Lock()
	defer s.verifyMu.Unlock()

	if s.verifyDone {
		return s.verifyErr
	}

	err := s.verify(ctx, expected)
	if store.CodeOf(err) == store.RetCConnectionUnavailable {
		return err
	}

	s.verifyDone = true
	s.verifyErr = err
	if err == nil {
		s.logger.Info("schema verified", "minimum_version", expected.Version)
	}
	return err
}

func (s *sqlStore) verify(ctx context.Context, expected store.SchemaDescriptor) error {
	for _, collection := range expected.Collections {
		if err := checkCollection(collection); err != nil {
			return err
		}
	}

	return s.withConn(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		// Separate "unreachable" from "not initialized": a failing probe
		// here is a connectivity problem, not a schema problem.
		if err := conn.PingContext(ctx); err != nil {
			return store.WrapError(store.RetCConnectionUnavailable, "database unreachable during schema check", err)
		}

		var stored int
		err := conn.GetContext(ctx, &stored, selectSchemaVersionSQL)
		if errors.Is(err, sql.ErrNoRows) {
			return store.NewError(store.RetCSchemaMismatch,
				"no schema version declared - initialize the database with Declare (gtecs schema declare)")
		}
		if err != nil {
			return store.WrapError(store.RetCSchemaMismatch,
				"schema metadata missing - initialize the database with Declare (gtecs schema declare)", err)
		}

		if stored < expected.Version {
			return store.NewError(store.RetCSchemaMismatch,
				fmt.Sprintf("stored schema version %d is below the minimum supported version %d - upgrade the database before starting this daemon", stored, expected.Version))
		}

		// Every declared collection must be present with a readable table.
		for _, collection := range expected.Collections {
			probe := fmt.Sprintf(`SELECT count(*) FROM %s WHERE 1=0`, collection)
			var n int
			if err := conn.GetContext(ctx, &n, probe); err != nil {
				return store.WrapError(store.RetCSchemaMismatch,
					fmt.Sprintf("collection %q is not present in the database", collection), err)
			}
		}

		return nil
	})
}

// SchemaInfo is the stored schema metadata as read by SchemaVersion.
type SchemaInfo struct {
	Version    int       `db:"version"`
	DeclaredAt time.Time `db:"declared_at"`
}

// SchemaVersion reads the declared schema version from the database
// described by cfg. Used by admin tooling to inspect a database without
// committing to an expected descriptor.
func SchemaVersion(ctx context.Context, cfg store.Config) (SchemaInfo, error) {
	s, err := New(cfg)
	if err != nil {
		return SchemaInfo{}, err
	}
	defer s.Close()

	var info SchemaInfo
	err = s.(*sqlStore).withConn(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		err := conn.GetContext(ctx, &info, selectSchemaRowSQL)
		if errors.Is(err, sql.ErrNoRows) {
			return store.NewError(store.RetCSchemaMismatch, "no schema version declared")
		}
		if err != nil {
			return store.WrapError(store.RetCSchemaMismatch, "schema metadata missing", err)
		}
		return nil
	})
	if err != nil {
		return SchemaInfo{}, err
	}
	return info, nil
}

// Declare initializes a fresh, empty database with the given descriptor.
// Declaring the same version again is a no-op (missing collection tables
// are still created); a different stored version fails with
// RetCAlreadyInitialized.
func (s *sqlStore) Declare(ctx context.Context, desc store.SchemaDescriptor) error {
	for _, collection := range desc.Collections {
		if err := checkCollection(collection); err != nil {
			return err
		}
	}

	return s.withConn(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		tx, err := conn.BeginTxx(ctx, nil)
		if err != nil {
			return store.WrapError(store.RetCConnectionUnavailable, "failed to begin transaction", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, schemaTableDDL); err != nil {
			return store.WrapError(store.RetCInternalError, "failed to create schema metadata table", err)
		}

		var stored int
		err = tx.GetContext(ctx, &stored, selectSchemaVersionSQL)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, insertSchemaVersionSQL, desc.Version, nowUTC()); err != nil {
				return store.WrapError(store.RetCInternalError, "failed to record schema version", err)
			}
			s.logger.Info("declared schema", "version", desc.Version, "collections", len(desc.Collections))
		case err != nil:
			return store.WrapError(store.RetCConnectionUnavailable, "failed to read schema version", err)
		case stored != desc.Version:
			return store.NewError(store.RetCAlreadyInitialized,
				fmt.Sprintf("database already declares schema version %d (requested %d)", stored, desc.Version))
		}

		for _, collection := range desc.Collections {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(collectionDDL, collection)); err != nil {
				return store.WrapError(store.RetCInternalError,
					fmt.Sprintf("failed to create collection %q", collection), err)
			}
		}

		if err := tx.Commit(); err != nil {
			return store.WrapError(store.RetCConnectionUnavailable, "failed to commit schema declaration", err)
		}
		return nil
	})
}
