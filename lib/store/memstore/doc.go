// Package memstore implements store.IRecordStore entirely in process
// memory. Database support is an optional add-on for the control system, so
// the shared-state library must remain useful to daemons that never enabled
// it: those daemons run on a memstore directly, permanently serving from
// the in-process cache and never attempting reconciliation.
//
// The same implementation doubles as the cache mirror inside the failover
// store, which is why the concrete Store type is exported together with a
// small set of mirror operations (SetRecord, SetRecordIfNewer, DropRecord)
// that bypass the usual version-increment semantics.
//
// Records are held in xsync maps and all read-modify-write cycles run
// through the map's atomic Compute, so in-process updates never lose a
// race. The versioning semantics match the database backend: version 1 on
// creation, strictly increasing on every write. What memstore cannot offer
// is durability or cross-process visibility.
package memstore
