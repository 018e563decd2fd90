package store

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Store configuration structs
// --------------------------------------------------------------------------

// applicationName is reported to the database server so that connections
// from the control system are identifiable in the server's session list.
const applicationName = "gtecs-common"

// DatabaseConfig describes how to reach the shared database. Database
// support is optional: a zero Driver means no database is configured and
// the library serves from process memory only.
type DatabaseConfig struct {
	// Driver is the database/sql driver name ("postgres" or "sqlite3").
	Driver string
	// Host and Port locate the database server (postgres only).
	Host string
	Port int
	// Name is the database name, or the file path for sqlite3.
	Name string
	// Credentials used when connecting (postgres only).
	User     string
	Password string
}

// Enabled reports whether a database backend is configured at all. The
// driver alone is not enough, a default driver without a target still
// means "no database".
func (c DatabaseConfig) Enabled() bool {
	switch c.Driver {
	case "sqlite3":
		return c.Name != ""
	case "":
		return false
	default:
		return c.Host != ""
	}
}

// DSN renders the data source name for the configured driver.
func (c DatabaseConfig) DSN() string {
	switch c.Driver {
	case "sqlite3":
		return c.Name
	default:
		u := url.URL{
			Scheme: "postgres",
			Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
			Path:   "/" + c.Name,
		}
		if c.User != "" {
			u.User = url.UserPassword(c.User, c.Password)
		}
		q := url.Values{}
		q.Set("application_name", applicationName)
		u.RawQuery = q.Encode()
		return u.String()
	}
}

// PoolConfig bounds the connection pool owned by the store.
type PoolConfig struct {
	// MaxSize is the maximum number of open connections.
	MaxSize int
	// AcquireTimeoutSeconds bounds how long a caller may block waiting
	// for a connection before RetCConnectionUnavailable is returned.
	AcquireTimeoutSeconds int
	// RetryCount is how often a failed connection attempt is retried
	// (with exponential backoff) before giving up.
	RetryCount int
}

// DegradedConfig controls behavior while the database is unreachable.
type DegradedConfig struct {
	// AllowOfflineWrites accepts writes into the in-process cache and a
	// pending queue while degraded. When false, writes fail with
	// RetCStoreUnavailable until connectivity returns.
	AllowOfflineWrites bool
	// HealthIntervalSeconds is the period of the background liveness
	// probe that drives reconciliation.
	HealthIntervalSeconds int
}

// Config holds all configuration parameters for the shared state layer.
type Config struct {
	Database DatabaseConfig
	Pool     PoolConfig
	Degraded DegradedConfig

	// MinimumSchemaVersion is the lowest stored schema version this
	// process can safely operate against.
	MinimumSchemaVersion int
}

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultPoolMaxSize           = 10
	DefaultAcquireTimeoutSeconds = 5
	DefaultRetryCount            = 3
	DefaultHealthIntervalSeconds = 10
)

// WithDefaults returns a copy of the config with unset pool and degraded
// parameters replaced by their defaults.
func (c Config) WithDefaults() Config {
	if c.Pool.MaxSize <= 0 {
		c.Pool.MaxSize = DefaultPoolMaxSize
	}
	if c.Pool.AcquireTimeoutSeconds <= 0 {
		c.Pool.AcquireTimeoutSeconds = DefaultAcquireTimeoutSeconds
	}
	if c.Pool.RetryCount <= 0 {
		c.Pool.RetryCount = DefaultRetryCount
	}
	if c.Degraded.HealthIntervalSeconds <= 0 {
		c.Degraded.HealthIntervalSeconds = DefaultHealthIntervalSeconds
	}
	return c
}

// --------------------------------------------------------------------------
// Formatting
// --------------------------------------------------------------------------

// String returns a formatted string representation of the configuration.
// The password is redacted.
func (c Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Database")
	if !c.Database.Enabled() {
		addField("Backend", "none (in-process cache only)")
	} else {
		addField("Driver", c.Database.Driver)
		if c.Database.Driver == "sqlite3" {
			addField("Path", c.Database.Name)
		} else {
			addField("Host", fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port))
			addField("Name", c.Database.Name)
			addField("User", c.Database.User)
			if c.Database.Password != "" {
				addField("Password", "********")
			}
		}
	}

	addSection("Pool")
	addField("Max Size", strconv.Itoa(c.Pool.MaxSize))
	addField("Acquire Timeout", fmt.Sprintf("%d sec", c.Pool.AcquireTimeoutSeconds))
	addField("Retry Count", strconv.Itoa(c.Pool.RetryCount))

	addSection("Degraded Mode")
	addField("Offline Writes", strconv.FormatBool(c.Degraded.AllowOfflineWrites))
	addField("Health Interval", fmt.Sprintf("%d sec", c.Degraded.HealthIntervalSeconds))

	addSection("Schema")
	addField("Minimum Version", strconv.Itoa(c.MinimumSchemaVersion))

	return sb.String()
}
