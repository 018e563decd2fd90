// Package sqlstore implements store.IRecordStore on top of a relational
// database accessed through sqlx. This is the durable backend shared by all
// control daemons: the database is the cross-process shared resource, and
// all cross-process mutual exclusion is achieved through the
// version-conditional writes of the update coordinator, never through
// locks.
//
// The implementation is organized by concern:
//
//   - store.go: connection pool lifecycle, scoped connection leasing with
//     bounded acquire timeout and backoff, health checks.
//   - schema.go: schema registry - explicit declaration of the expected
//     collections and schema version, verification once per process
//     lifetime, no automatic migration ever.
//   - records.go: plain record operations (Get, Put, List with transparent
//     keyset paging).
//   - update.go: the optimistic read-mutate-write coordinator with bounded,
//     jittered conflict retries.
//
// Two drivers are supported: "postgres" (lib/pq) for shared site databases
// and "sqlite3" (mattn/go-sqlite3) for embedded single-host deployments and
// tests. All SQL in this package is written against the intersection of the
// two dialects ($N placeholders, RETURNING, ON CONFLICT upserts).
package sqlstore
