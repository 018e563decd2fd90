package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/jmoiron/sqlx"

	"github.com/GOTO-OBS/gtecs-common/lib/store"
)

// --------------------------------------------------------------------------
// Optimistic Update Coordinator
// --------------------------------------------------------------------------

const (
	// updateMaxRetries bounds the read-mutate-write cycles before a
	// conflict is surfaced to the caller.
	updateMaxRetries = 5

	// Initial backoff duration between conflict retries in milliseconds
	updateBackoffMs = 25
)

var (
	updateConflictsTotal = metrics.GetOrCreateCounter(`gtecs_store_update_conflicts_total`)
	updateRetriesTotal   = metrics.GetOrCreateCounter(`gtecs_store_update_retries_total`)
)

// Update reads the current record, applies the mutator and writes the
// result conditional on the stored version still matching the one that was
// read. When two updates race, the writer whose conditional write lands
// first (as serialized by the database) wins; the loser re-reads and
// retries the full cycle. No update is ever silently dropped - it either
// lands with a fresh version or is reported as RetCUpdateConflict after
// the retry budget is exhausted.
func (s *sqlStore) Update(ctx context.Context, collection, key string, mutate store.Mutator) (store.Record, error) {
	if err := checkCollection(collection); err != nil {
		return store.Record{}, err
	}

	backoffMs := updateBackoffMs

	for attempt := 0; attempt < updateMaxRetries; attempt++ {
		if attempt > 0 {
			updateRetriesTotal.Inc()
			// Jittered exponential backoff so that racing daemons do not
			// retry in lockstep.
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			select {
			case <-time.After(time.Duration(jitter) * time.Millisecond):
			case <-ctx.Done():
				return store.Record{}, store.WrapError(store.RetCConnectionUnavailable,
					"update abandoned before write started", ctx.Err())
			}
			backoffMs *= 2
		}

		current, err := s.Get(ctx, collection, key)
		if err != nil && !store.IsNotFound(err) {
			return store.Record{}, err
		}
		if store.IsNotFound(err) {
			// Zero-value placeholder: the mutator sees Version 0 and the
			// subsequent write creates the record at version 1.
			current = store.Record{Collection: collection, Key: key}
		}

		payload, err := mutate(current)
		if err != nil {
			return store.Record{}, store.WrapError(store.RetCInternalError, "mutator failed", err)
		}
		if err := store.ValidatePayload(payload); err != nil {
			return store.Record{}, err
		}

		rec, conflict, err := s.writeConditional(ctx, collection, key, payload, current.Version)
		if err != nil {
			return store.Record{}, err
		}
		if !conflict {
			return rec, nil
		}

		updateConflictsTotal.Inc()
		s.logger.Debug("conditional write lost race", "collection", collection, "key", key,
			"read_version", current.Version, "attempt", attempt+1)
	}

	return store.Record{}, store.NewError(store.RetCUpdateConflict,
		fmt.Sprintf("update of %s/%s conflicted %d times", collection, key, updateMaxRetries))
}

// writeConditional attempts the version-conditional write. The conflict
// return value is true when the stored version no longer matches
// readVersion and the caller must re-read and retry.
func (s *sqlStore) writeConditional(ctx context.Context, collection, key string, payload store.Payload, readVersion int64) (store.Record, bool, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return store.Record{}, false, store.WrapError(store.RetCInvalidPayload, "payload is not serializable", err)
	}

	now := nowUTC()
	newVersion := readVersion + 1
	conflict := false

	err = s.withConn(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		if readVersion == 0 {
			// Creation race: a concurrent creator makes the insert fail on
			// the primary key. Any insert error where the key turns out to
			// exist is a conflict, everything else is a real failure.
			insert := fmt.Sprintf(
				`INSERT INTO %s (key, payload, version, updated_at) VALUES ($1, $2, 1, $3)`, collection)
			if _, err := conn.ExecContext(ctx, insert, key, string(data), now); err != nil {
				exists := fmt.Sprintf(`SELECT count(*) FROM %s WHERE key = $1`, collection)
				var n int
				if probeErr := conn.GetContext(ctx, &n, exists, key); probeErr == nil && n > 0 {
					conflict = true
					return nil
				}
				return store.WrapError(store.RetCInternalError,
					fmt.Sprintf("failed to create %s/%s", collection, key), err)
			}
			return nil
		}

		update := fmt.Sprintf(
			`UPDATE %s SET payload = $1, version = $2, updated_at = $3 WHERE key = $4 AND version = $5`, collection)
		res, err := conn.ExecContext(ctx, update, string(data), newVersion, now, key, readVersion)
		if err != nil {
			return store.WrapError(store.RetCInternalError,
				fmt.Sprintf("failed to update %s/%s", collection, key), err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return store.WrapError(store.RetCInternalError, "failed to read affected row count", err)
		}
		conflict = affected == 0
		return nil
	})
	if err != nil {
		return store.Record{}, false, err
	}
	if conflict {
		return store.Record{}, true, nil
	}

	return store.Record{
		Collection: collection,
		Key:        key,
		Payload:    store.ClonePayload(payload),
		Version:    newVersion,
		UpdatedAt:  now,
	}, false, nil
}
