package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/GOTO-OBS/gtecs-common/lib/store"
)

// defaultPageSize is the number of records fetched per round trip during
// List when the filter does not specify one.
const defaultPageSize = 200

// recordRow is the persisted shape of one record.
type recordRow struct {
	Key       string    `db:"key"`
	Payload   []byte    `db:"payload"`
	Version   int64     `db:"version"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r recordRow) toRecord(collection string) (store.Record, error) {
	var payload store.Payload
	if err := json.Unmarshal(r.Payload, &payload); err != nil {
		return store.Record{}, store.WrapError(store.RetCInternalError,
			fmt.Sprintf("corrupt payload for %s/%s", collection, r.Key), err)
	}
	return store.Record{
		Collection: collection,
		Key:        r.Key,
		Payload:    payload,
		Version:    r.Version,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *sqlStore) Get(ctx context.Context, collection, key string) (store.Record, error) {
	if err := checkCollection(collection); err != nil {
		return store.Record{}, err
	}

	var row recordRow
	query := fmt.Sprintf(`SELECT key, payload, version, updated_at FROM %s WHERE key = $1`, collection)

	err := s.withConn(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		return conn.GetContext(ctx, &row, query, key)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, store.NewError(store.RetCNotFound,
			fmt.Sprintf("no record %s/%s", collection, key))
	}
	if err != nil {
		if store.CodeOf(err) == store.RetCConnectionUnavailable {
			return store.Record{}, err
		}
		return store.Record{}, store.WrapError(store.RetCInternalError,
			fmt.Sprintf("failed to read %s/%s", collection, key), err)
	}

	return row.toRecord(collection)
}

func (s *sqlStore) Put(ctx context.Context, collection, key string, payload store.Payload) (store.Record, error) {
	if err := checkCollection(collection); err != nil {
		return store.Record{}, err
	}
	if err := store.ValidatePayload(payload); err != nil {
		return store.Record{}, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return store.Record{}, store.WrapError(store.RetCInvalidPayload, "payload is not serializable", err)
	}

	// Unconditional upsert: creates at version 1, otherwise overwrites
	// and increments. No protection against concurrent writers - that is
	// Update's job.
	query := fmt.Sprintf(`
INSERT INTO %s (key, payload, version, updated_at) VALUES ($1, $2, 1, $3)
ON CONFLICT (key) DO UPDATE SET payload = $2, version = version + 1, updated_at = $3
RETURNING version`, collection)

	now := nowUTC()
	var version int64

	err = s.withConn(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		return conn.GetContext(ctx, &version, query, key, string(data), now)
	})
	if err != nil {
		if store.CodeOf(err) == store.RetCConnectionUnavailable {
			return store.Record{}, err
		}
		return store.Record{}, store.WrapError(store.RetCInternalError,
			fmt.Sprintf("failed to write %s/%s", collection, key), err)
	}

	return store.Record{
		Collection: collection,
		Key:        key,
		Payload:    store.ClonePayload(payload),
		Version:    version,
		UpdatedAt:  now,
	}, nil
}

func (s *sqlStore) List(ctx context.Context, collection string, filter store.Filter, fn func(store.Record) bool) error {
	if err := checkCollection(collection); err != nil {
		return err
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	// Keyset pagination: each page starts after the last key of the
	// previous one, so the sequence is deterministic and restartable
	// without holding a cursor open across round trips.
	query := fmt.Sprintf(`
SELECT key, payload, version, updated_at FROM %s
WHERE key > $1 AND key >= $2
ORDER BY key ASC
LIMIT $3`, collection)

	afterKey := ""
	for {
		var rows []recordRow
		err := s.withConn(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
			return conn.SelectContext(ctx, &rows, query, afterKey, filter.KeyPrefix, pageSize)
		})
		if err != nil {
			if store.CodeOf(err) == store.RetCConnectionUnavailable {
				return err
			}
			return store.WrapError(store.RetCInternalError,
				fmt.Sprintf("failed to list collection %q", collection), err)
		}

		for _, row := range rows {
			// Keys are ordered, so the first key past the prefix range
			// ends the iteration.
			if filter.KeyPrefix != "" && !strings.HasPrefix(row.Key, filter.KeyPrefix) {
				return nil
			}
			rec, err := row.toRecord(collection)
			if err != nil {
				return err
			}
			if !fn(rec) {
				return nil
			}
			afterKey = row.Key
		}

		if len(rows) < pageSize {
			return nil
		}
	}
}
