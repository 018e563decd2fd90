package store

import (
	"context"
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Data Model
// --------------------------------------------------------------------------

// Payload is the structured value stored in a Record. It must be a JSON
// object of primitive values, nested objects or arrays thereof - see
// ValidatePayload.
type Payload = map[string]any

// Record is a named, versioned value stored under a unique key within a
// collection. Version starts at 1 on creation and strictly increases on
// every successful write to the same key.
type Record struct {
	Collection string    `db:"-" json:"collection"`
	Key        string    `db:"key" json:"key"`
	Payload    Payload   `db:"-" json:"payload"`
	Version    int64     `db:"version" json:"version"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// SchemaDescriptor declares the set of collections and the integer schema
// version the running code was built against.
type SchemaDescriptor struct {
	Collections []string `json:"collections"`
	Version     int      `json:"version"`
}

// Filter restricts a List operation. The zero value matches every record
// in the collection.
type Filter struct {
	// KeyPrefix limits the result to keys starting with the given prefix.
	KeyPrefix string
	// PageSize is the number of records fetched per database round trip.
	// Zero means the implementation default. Paging is transparent to the
	// caller, the iteration is always over the full matching set.
	PageSize int
}

// Mutator transforms the current record into the payload that should be
// written in its place. It is called with a zero-version Record if the key
// does not exist yet. A Mutator must be side-effect free: the update
// coordinator may call it multiple times when a conditional write loses a
// race.
type Mutator func(current Record) (Payload, error)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IRecordStore is the shared-state access primitive used by all control
// daemons. All implementations provide the same operations; they differ in
// where the records live (database, process memory) and in their behavior
// when the database is unreachable.
//
// Cross-process mutual exclusion is achieved exclusively through Update's
// version-conditional write, never through application-level locks.
type IRecordStore interface {
	// Get returns the record stored under the given collection and key.
	// Fails with RetCNotFound if no such record exists.
	Get(ctx context.Context, collection, key string) (Record, error)

	// Put writes the payload unconditionally. The record is created at
	// version 1 if absent, otherwise overwritten with its version
	// incremented. Put is not safe against concurrent writers racing on
	// the same key - it exists for initialization and single-writer
	// scenarios. Multi-process mutation must go through Update.
	Put(ctx context.Context, collection, key string, payload Payload) (Record, error)

	// Update performs a safe concurrent read-modify-write. It reads the
	// current record (or a zero-value placeholder if absent), applies the
	// mutator, and attempts a write conditional on the version still
	// matching. Conflicts are retried internally with jittered backoff up
	// to a bounded count, then surfaced as RetCUpdateConflict.
	Update(ctx context.Context, collection, key string, mutate Mutator) (Record, error)

	// List calls fn for every record in the collection matching the
	// filter, ordered by key ascending. Iteration stops early when fn
	// returns false. The sequence is restartable: calling List again
	// starts over from the first matching record.
	List(ctx context.Context, collection string, filter Filter, fn func(Record) bool) error

	// Verify checks that the store's schema is compatible with the
	// expected descriptor. Fails with RetCSchemaMismatch if the stored
	// version is below the minimum the caller supports. The check runs at
	// most once per process lifetime; later calls return the cached
	// result. Verify never migrates anything.
	Verify(ctx context.Context, expected SchemaDescriptor) error

	// Declare initializes a fresh, empty store with the given descriptor.
	// Fails with RetCAlreadyInitialized if a different schema version is
	// already present.
	Declare(ctx context.Context, desc SchemaDescriptor) error

	// HealthCheck performs a cheap liveness probe against the backing
	// store.
	HealthCheck(ctx context.Context) error

	// Close releases all resources held by the store. The store is
	// invalid for use afterwards.
	Close() error
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the typed error returned by all store operations. The code
// distinguishes "retry later" (RetCConnectionUnavailable,
// RetCUpdateConflict, RetCStoreUnavailable) from "fix your code or schema"
// (RetCSchemaMismatch, RetCInvalidPayload) from "record does not exist"
// (RetCNotFound).
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
	Err  error   // Optional underlying cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("RecordStoreError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("RecordStoreError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new store Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// WrapError creates a new store Error wrapping an underlying cause.
func WrapError(code RetCode, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

// CodeOf extracts the RetCode from an error. Errors that are not store
// Errors map to RetCInternalError, nil maps to RetCSuccess.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return RetCInternalError
}

// IsNotFound reports whether the error means the record does not exist.
func IsNotFound(err error) bool { return CodeOf(err) == RetCNotFound }

// IsConflict reports whether the error is an exhausted update conflict.
func IsConflict(err error) bool { return CodeOf(err) == RetCUpdateConflict }

// IsUnavailable reports whether the error means the backing store cannot
// currently serve the request and the caller may retry later.
func IsUnavailable(err error) bool {
	code := CodeOf(err)
	return code == RetCConnectionUnavailable || code == RetCStoreUnavailable
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess               RetCode = iota // 0: Operation completed successfully.
	RetCInternalError                        // 1: Operation failed due to an internal error.
	RetCConnectionUnavailable                // 2: Database unreachable after bounded retries.
	RetCSchemaMismatch                       // 3: Stored schema version below the supported minimum.
	RetCAlreadyInitialized                   // 4: Schema already declared with a different version.
	RetCNotFound                             // 5: No record under the requested key.
	RetCUpdateConflict                       // 6: Conditional write lost after exhausting retries.
	RetCStoreUnavailable                     // 7: Degraded mode with offline writes disabled.
	RetCInvalidPayload                       // 8: Payload shape rejected at the store boundary.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCConnectionUnavailable:
		return "ConnectionUnavailable"
	case RetCSchemaMismatch:
		return "SchemaMismatch"
	case RetCAlreadyInitialized:
		return "AlreadyInitialized"
	case RetCNotFound:
		return "NotFound"
	case RetCUpdateConflict:
		return "UpdateConflict"
	case RetCStoreUnavailable:
		return "StoreUnavailable"
	case RetCInvalidPayload:
		return "InvalidPayload"
	default:
		return "Unknown"
	}
}
