package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirResolution(t *testing.T) {
	t.Setenv("GTECS_CONF", "/etc/gtecs")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if dir := Dir(); dir != "/etc/gtecs" {
		t.Errorf("Expected GTECS_CONF to win, got %q", dir)
	}

	t.Setenv("GTECS_CONF", "")
	if dir := Dir(); dir != filepath.Join("/xdg", "gtecs") {
		t.Errorf("Expected XDG_CONFIG_HOME fallback, got %q", dir)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	if dir := Dir(); dir != filepath.Join(home, ".config", "gtecs") {
		t.Errorf("Expected home fallback, got %q", dir)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GTECS_CONF", t.TempDir()) // empty dir, no config file

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Enabled() {
		t.Error("Expected no database without a configured host")
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Expected the postgres driver by default, got %q", cfg.Database.Driver)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Expected port 5432, got %d", cfg.Database.Port)
	}
	if cfg.Pool.MaxSize != 10 {
		t.Errorf("Expected pool max size 10, got %d", cfg.Pool.MaxSize)
	}
	if cfg.Degraded.HealthIntervalSeconds != 10 {
		t.Errorf("Expected health interval 10s, got %d", cfg.Degraded.HealthIntervalSeconds)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GTECS_CONF", t.TempDir())
	t.Setenv("GTECS_DATABASE_HOST", "db.lapalma.example")
	t.Setenv("GTECS_DATABASE_NAME", "gtecs")
	t.Setenv("GTECS_DATABASE_USER", "observer")
	t.Setenv("GTECS_DATABASE_PASSWORD", "hunter2")
	t.Setenv("GTECS_POOL_MAX_SIZE", "25")
	t.Setenv("GTECS_DEGRADED_ALLOW_OFFLINE_WRITES", "true")
	t.Setenv("GTECS_SCHEMA_MINIMUM_VERSION", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !cfg.Database.Enabled() {
		t.Fatal("Expected the database to be enabled")
	}
	if cfg.Database.Host != "db.lapalma.example" {
		t.Errorf("Expected the host from the environment, got %q", cfg.Database.Host)
	}
	if cfg.Pool.MaxSize != 25 {
		t.Errorf("Expected pool max size 25, got %d", cfg.Pool.MaxSize)
	}
	if !cfg.Degraded.AllowOfflineWrites {
		t.Error("Expected offline writes to be enabled")
	}
	if cfg.MinimumSchemaVersion != 4 {
		t.Errorf("Expected minimum schema version 4, got %d", cfg.MinimumSchemaVersion)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[database]
host = "db.internal"
name = "gtecs"
user = "pilot"

[pool]
max_size = 5
`
	if err := os.WriteFile(filepath.Join(dir, "gtecs.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("GTECS_CONF", dir)

	// The environment still overrides the file.
	t.Setenv("GTECS_DATABASE_USER", "observer")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Host != "db.internal" {
		t.Errorf("Expected the host from the file, got %q", cfg.Database.Host)
	}
	if cfg.Pool.MaxSize != 5 {
		t.Errorf("Expected pool max size from the file, got %d", cfg.Pool.MaxSize)
	}
	if cfg.Database.User != "observer" {
		t.Errorf("Expected the environment to override the file, got %q", cfg.Database.User)
	}
}
