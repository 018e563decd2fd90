package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/GOTO-OBS/gtecs-common/lib/store"
)

const (
	// EnvPrefix is the prefix for all environment variables, e.g. the
	// key "database.host" is read from GTECS_DATABASE_HOST.
	EnvPrefix = "GTECS"

	// FileName is the base name of the configuration file (without
	// extension, viper resolves .toml/.yaml/.json).
	FileName = "gtecs"
)

// --------------------------------------------------------------------------
// Config Directory Resolution
// --------------------------------------------------------------------------

// Dir returns the directory configuration files are read from. The
// resolution order is:
//
//  1. GTECS_CONF, if set
//  2. $XDG_CONFIG_HOME/gtecs
//  3. ~/.config/gtecs
func Dir() string {
	if dir := os.Getenv("GTECS_CONF"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gtecs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "gtecs")
}

// --------------------------------------------------------------------------
// Loading
// --------------------------------------------------------------------------

// Load reads configuration from (in ascending precedence) the config
// file in Dir(), .env/.env.local files in the working directory and
// GTECS_* environment variables, and returns the resolved store
// configuration.
//
// A missing config file is not an error: every key has a default or can
// be supplied via the environment.
func Load() (store.Config, error) {
	// env files never override variables already set in the environment
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName(FileName)
	v.AddConfigPath(Dir())
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return store.Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := store.Config{
		Database: store.DatabaseConfig{
			Driver:   v.GetString("database.driver"),
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			Name:     v.GetString("database.name"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
		},
		Pool: store.PoolConfig{
			MaxSize:               v.GetInt("pool.max_size"),
			AcquireTimeoutSeconds: v.GetInt("pool.acquire_timeout_seconds"),
			RetryCount:            v.GetInt("pool.retry_count"),
		},
		Degraded: store.DegradedConfig{
			AllowOfflineWrites:    v.GetBool("degraded.allow_offline_writes"),
			HealthIntervalSeconds: v.GetInt("degraded.health_interval_seconds"),
		},
		MinimumSchemaVersion: v.GetInt("schema.minimum_version"),
	}

	return cfg.WithDefaults(), nil
}

func setDefaults(v *viper.Viper) {
	defaults := store.Config{}.WithDefaults()

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.port", 5432)
	v.SetDefault("pool.max_size", defaults.Pool.MaxSize)
	v.SetDefault("pool.acquire_timeout_seconds", defaults.Pool.AcquireTimeoutSeconds)
	v.SetDefault("pool.retry_count", defaults.Pool.RetryCount)
	v.SetDefault("degraded.allow_offline_writes", defaults.Degraded.AllowOfflineWrites)
	v.SetDefault("degraded.health_interval_seconds", defaults.Degraded.HealthIntervalSeconds)
	v.SetDefault("schema.minimum_version", defaults.MinimumSchemaVersion)
}
