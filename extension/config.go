package extension

import "time"

// Store drivers understood by the extension.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Config holds the Credits extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.credits" or "credits" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Driver selects the store backend: memory, postgres, sqlite or mongo
	// (default: memory). Ignored when a store is set with WithStore.
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// DSN is the connection string for the postgres and sqlite drivers.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	// MongoURI and MongoDatabase configure the mongo driver.
	MongoURI      string `json:"mongo_uri" mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase string `json:"mongo_database" mapstructure:"mongo_database" yaml:"mongo_database"`

	// RedisAddr enables the Redis consume lock when set.
	RedisAddr string `json:"redis_addr" mapstructure:"redis_addr" yaml:"redis_addr"`

	// LockTTL is the lease of a Redis consume lock (default: 10s).
	LockTTL time.Duration `json:"lock_ttl" mapstructure:"lock_ttl" yaml:"lock_ttl"`

	// MaxAttempts bounds consume retries on write conflicts (default: 3).
	MaxAttempts int `json:"max_attempts" mapstructure:"max_attempts" yaml:"max_attempts"`

	// RetryBackoff is the base delay between conflicting attempts (default: 10ms).
	RetryBackoff time.Duration `json:"retry_backoff" mapstructure:"retry_backoff" yaml:"retry_backoff"`

	// ExpiringSoonWindow is how far ahead a bonus batch is reported as
	// expiring soon in summaries (default: 168h).
	ExpiringSoonWindow time.Duration `json:"expiring_soon_window" mapstructure:"expiring_soon_window" yaml:"expiring_soon_window"`

	// PluginTimeout bounds each plugin hook call. Zero means no bound.
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// EnableMetrics registers the Prometheus metrics plugin.
	EnableMetrics bool `json:"enable_metrics" mapstructure:"enable_metrics" yaml:"enable_metrics"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:             DriverMemory,
		MongoDatabase:      "credits",
		LockTTL:            10 * time.Second,
		MaxAttempts:        3,
		RetryBackoff:       10 * time.Millisecond,
		ExpiringSoonWindow: 7 * 24 * time.Hour,
	}
}
