// Package failover provides the degraded-mode wrapper around the
// database-backed record store. Database support is an optional add-on for
// the control system, and even where it is enabled the database can drop
// out mid-night; the control daemons must keep running on last-known state
// either way.
//
// The store moves between three states:
//
//	Connected   -> Degraded:    a health check fails, or an operation finds
//	                            the database unreachable.
//	Degraded    -> Reconciling: a later health check succeeds; the queued
//	                            pending writes are drained in order against
//	                            the live store, each re-run through the
//	                            optimistic update coordinator.
//	Reconciling -> Connected:   the queue is empty, every write applied or
//	                            explicitly reported as a conflict.
//	Reconciling -> Degraded:    connectivity lost again mid-drain; the
//	                            undrained entries stay queued.
//
// While Degraded, reads are served from the in-process cache mirror and
// never block on the database. Writes are accepted into the cache plus the
// pending queue when offline writes are enabled in the configuration, and
// rejected with RetCStoreUnavailable otherwise.
//
// New is the configure() entry point for daemons: given a configuration
// without a database it returns a plain memstore (permanently degraded by
// design, no reconciliation ever), otherwise a failover-wrapped sqlstore.
package failover
