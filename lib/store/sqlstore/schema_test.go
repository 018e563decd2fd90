package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/GOTO-OBS/gtecs-common/lib/store"
)

func TestVerifyBeforeDeclare(t *testing.T) {
	s, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	desc := store.SchemaDescriptor{Collections: []string{"pointing"}, Version: 1}
	err = s.Verify(context.Background(), desc)
	if err == nil {
		t.Fatal("Expected Verify to fail on an undeclared database")
	}
	if store.CodeOf(err) != store.RetCSchemaMismatch {
		t.Errorf("Expected SchemaMismatch, got code %s", store.CodeOf(err))
	}
}

func TestDeclareIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	desc := store.SchemaDescriptor{Collections: []string{"pointing", "dome_state"}, Version: 2}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Declare(ctx, desc); err != nil {
		t.Fatalf("First Declare failed: %v", err)
	}
	if err := s.Declare(ctx, desc); err != nil {
		t.Fatalf("Repeated Declare with the same descriptor failed: %v", err)
	}
	if err := s.Verify(ctx, desc); err != nil {
		t.Fatalf("Verify after Declare failed: %v", err)
	}
}

func TestDeclareDifferentVersion(t *testing.T) {
	cfg := testConfig(t)

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Declare(ctx, store.SchemaDescriptor{Collections: []string{"pointing"}, Version: 1}); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}

	err = s.Declare(ctx, store.SchemaDescriptor{Collections: []string{"pointing"}, Version: 2})
	if err == nil {
		t.Fatal("Expected Declare with a different version to fail")
	}
	if store.CodeOf(err) != store.RetCAlreadyInitialized {
		t.Errorf("Expected AlreadyInitialized, got code %s", store.CodeOf(err))
	}
}

func TestVerifyOlderSchema(t *testing.T) {
	cfg := testConfig(t)

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Declare(ctx, store.SchemaDescriptor{Collections: []string{"pointing"}, Version: 1}); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}

	// A second store against the same database expecting a newer schema
	// must refuse to serve rather than read stale structures.
	s2, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s2.Close()

	err = s2.Verify(ctx, store.SchemaDescriptor{Collections: []string{"pointing"}, Version: 2})
	if err == nil {
		t.Fatal("Expected Verify against an older stored schema to fail")
	}
	if store.CodeOf(err) != store.RetCSchemaMismatch {
		t.Errorf("Expected SchemaMismatch, got code %s", store.CodeOf(err))
	}

	// The mismatch must not have touched the stored version.
	if err := s.Verify(ctx, store.SchemaDescriptor{Collections: []string{"pointing"}, Version: 1}); err != nil {
		t.Errorf("Original schema should still verify, got %v", err)
	}
}

func TestVerifyRetriesAfterConnectivityFailure(t *testing.T) {
	// The database directory does not exist yet, so every connection
	// attempt fails as unreachable rather than uninitialized.
	dir := filepath.Join(t.TempDir(), "missing")
	cfg := store.Config{
		Database: store.DatabaseConfig{
			Driver: "sqlite3",
			Name:   "file:" + filepath.Join(dir, "gtecs.db") + "?_busy_timeout=5000",
		},
		Pool: store.PoolConfig{AcquireTimeoutSeconds: 1, RetryCount: 1},
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	desc := store.SchemaDescriptor{Collections: []string{"pointing"}, Version: 1}

	err = s.Verify(ctx, desc)
	if !store.IsUnavailable(err) {
		t.Fatalf("Expected ConnectionUnavailable while the database is unreachable, got %v", err)
	}

	// Connectivity returns: the failed check must not have been latched
	// for the process lifetime.
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create the database directory: %v", err)
	}
	if err := s.Declare(ctx, desc); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}
	if err := s.Verify(ctx, desc); err != nil {
		t.Errorf("Verify after connectivity returned should succeed, got %v", err)
	}

	// A real verification result is still cached.
	if err := s.Verify(ctx, desc); err != nil {
		t.Errorf("Cached Verify should succeed, got %v", err)
	}
}

func TestSchemaVersion(t *testing.T) {
	cfg := testConfig(t)

	if _, err := SchemaVersion(context.Background(), cfg); store.CodeOf(err) != store.RetCSchemaMismatch {
		t.Errorf("Expected SchemaMismatch on an undeclared database, got %v", err)
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	if err := s.Declare(context.Background(), store.SchemaDescriptor{Collections: []string{"pointing"}, Version: 3}); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}

	info, err := SchemaVersion(context.Background(), cfg)
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if info.Version != 3 {
		t.Errorf("Expected version 3, got %d", info.Version)
	}
	if info.DeclaredAt.IsZero() {
		t.Error("Expected DeclaredAt to be set")
	}
}

func TestVerifyMissingCollection(t *testing.T) {
	cfg := testConfig(t)

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Declare(ctx, store.SchemaDescriptor{Collections: []string{"pointing"}, Version: 1}); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}

	s2, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s2.Close()

	err = s2.Verify(ctx, store.SchemaDescriptor{Collections: []string{"pointing", "conditions"}, Version: 1})
	if err == nil {
		t.Fatal("Expected Verify to fail when a collection table is missing")
	}
	if store.CodeOf(err) != store.RetCSchemaMismatch {
		t.Errorf("Expected SchemaMismatch, got code %s", store.CodeOf(err))
	}
}
