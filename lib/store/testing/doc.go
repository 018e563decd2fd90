// Package testing provides a standardized conformance test suite for
// store.IRecordStore implementations.
//
//   - RunRecordStoreTests: Runs the shared test suite to validate an
//     implementation against the interface contract - versioning,
//     optimistic update semantics (no lost updates under concurrency),
//     ordered restartable listing with transparent paging, and payload
//     round-trip fidelity.
//
// Every backend (sqlstore, memstore, failover) runs this suite from its own
// package tests via a factory function, so a new implementation only needs
// a factory to get full contract coverage.
package testing
