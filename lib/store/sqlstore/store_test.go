package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/GOTO-OBS/gtecs-common/lib/store"
	storetesting "github.com/GOTO-OBS/gtecs-common/lib/store/testing"
)

// testConfig builds a config backed by a fresh on-disk sqlite database.
// The busy timeout lets concurrent update tests ride out sqlite's
// single-writer locking instead of failing with SQLITE_BUSY.
func testConfig(t *testing.T) store.Config {
	t.Helper()
	return store.Config{
		Database: store.DatabaseConfig{
			Driver: "sqlite3",
			Name:   "file:" + filepath.Join(t.TempDir(), "gtecs.db") + "?_busy_timeout=5000",
		},
	}
}

// newTestStore creates a sqlite-backed store with the suite collections
// declared at schema version 1.
func newTestStore(t *testing.T) store.IRecordStore {
	t.Helper()

	s, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	desc := store.SchemaDescriptor{Collections: storetesting.Collections, Version: 1}
	if err := s.Declare(context.Background(), desc); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}
	return s
}

func Test(t *testing.T) {
	storetesting.RunRecordStoreTests(t, "SQLStore", func() store.IRecordStore {
		return newTestStore(t)
	})
}

func TestInvalidCollectionName(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	_, err := s.Get(context.Background(), "not a table; DROP", "key")
	if err == nil {
		t.Fatal("Expected an error for an invalid collection name")
	}
	if store.CodeOf(err) != store.RetCInternalError {
		t.Errorf("Expected InternalError, got code %s", store.CodeOf(err))
	}
}

func TestConnectionUnavailable(t *testing.T) {
	// Nothing listens on the discard port, so every acquire fails fast.
	cfg := store.Config{
		Database: store.DatabaseConfig{
			Driver: "postgres",
			Host:   "127.0.0.1",
			Port:   9,
			Name:   "gtecs",
			User:   "gtecs",
		},
		Pool: store.PoolConfig{
			MaxSize:               2,
			AcquireTimeoutSeconds: 1,
			RetryCount:            2,
		},
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New should succeed with an unreachable database, got %v", err)
	}
	defer s.Close()

	ctx := context.Background()

	if err := s.HealthCheck(ctx); err == nil {
		t.Error("Expected the health check to fail")
	} else if store.CodeOf(err) != store.RetCConnectionUnavailable {
		t.Errorf("Expected ConnectionUnavailable from the health check, got code %s", store.CodeOf(err))
	}

	_, err = s.Get(ctx, "pointing", "telescope_1")
	if store.CodeOf(err) != store.RetCConnectionUnavailable {
		t.Errorf("Expected ConnectionUnavailable from Get, got %v", err)
	}
}
