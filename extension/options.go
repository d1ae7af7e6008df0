package extension

import (
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/store"
)

// Option configures the Credits Forge extension.
type Option func(*Extension)

// WithStore sets the store for the credits engine. It takes precedence over
// the configured driver.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a credits.Option through to the underlying engine.
func WithEngineOption(opt credits.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a credits plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, credits.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithDriver selects the store backend and its connection string.
func WithDriver(driver, dsn string) Option {
	return func(e *Extension) {
		e.config.Driver = driver
		e.config.DSN = dsn
	}
}

// WithMongo selects the mongo store.
func WithMongo(uri, database string) Option {
	return func(e *Extension) {
		e.config.Driver = DriverMongo
		e.config.MongoURI = uri
		e.config.MongoDatabase = database
	}
}

// WithRedisLock serializes consumes across instances with a Redis lock.
func WithRedisLock(addr string, ttl time.Duration) Option {
	return func(e *Extension) {
		e.config.RedisAddr = addr
		e.config.LockTTL = ttl
	}
}

// WithMaxAttempts sets the consume retry bound.
func WithMaxAttempts(n int) Option {
	return func(e *Extension) { e.config.MaxAttempts = n }
}

// WithRetryBackoff sets the base delay between conflicting consume attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(e *Extension) { e.config.RetryBackoff = d }
}

// WithExpiringSoonWindow sets the summary's expiring-soon horizon.
func WithExpiringSoonWindow(d time.Duration) Option {
	return func(e *Extension) { e.config.ExpiringSoonWindow = d }
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}

// WithMetrics registers the Prometheus metrics plugin.
func WithMetrics() Option {
	return func(e *Extension) { e.config.EnableMetrics = true }
}
