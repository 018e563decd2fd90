// Package store defines the shared-state access layer used by every control
// daemon in the observatory control system. Many independently running
// processes read and write common persisted records through this interface
// without corrupting each other's updates.
//
// The package focuses on:
//   - A unified interface (IRecordStore) for versioned record access across
//     different backends
//   - A typed error system distinguishing transient failures from
//     programming and schema errors
//   - Configuration structs shared by all implementations
//
// Key Components:
//
//   - Record / Payload: A record is a named, versioned structured value
//     stored under a unique key within a collection. The version strictly
//     increases on every successful write, which is what makes the
//     optimistic concurrency scheme work: a write conditional on the
//     version it read can never silently clobber a concurrent update.
//
//   - IRecordStore Interface: The core abstraction defining Get, Put,
//     Update, List, schema verification and lifecycle operations. All
//     implementations share this interface, so a daemon can switch between
//     a database-backed deployment and a cache-only one without code
//     changes.
//
//   - Error System: A structured error reporting mechanism using typed
//     error codes (RetCode) and descriptive messages. Callers always
//     receive an error distinguishing "retry later" from "fix your code or
//     schema" from "record does not exist".
//
// Implementations:
//
//	The module includes three implementations of the IRecordStore interface:
//
//	- SQL Store (sqlstore): Backed by a relational database via sqlx. This
//	  is the durable, cross-process backend; all mutual exclusion between
//	  daemons happens through its version-conditional writes.
//	  Available in the "github.com/GOTO-OBS/gtecs-common/lib/store/sqlstore" package.
//
//	- Memory Store (memstore): A process-local implementation serving
//	  entirely from memory. Used directly when database support is not
//	  enabled, and as the cache mirror inside the failover store.
//	  Available in the "github.com/GOTO-OBS/gtecs-common/lib/store/memstore" package.
//
//	- Failover Store (failover): Wraps a sqlstore together with a memstore
//	  mirror and degrades gracefully when the database is unreachable,
//	  queueing writes for later reconciliation.
//	  Available in the "github.com/GOTO-OBS/gtecs-common/lib/store/failover" package.
package store
