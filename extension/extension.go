// Package extension provides the Forge extension adapter for Credits.
//
// It implements the forge.Extension interface to integrate the credit
// engine into a Forge application with store construction from config,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.credits" or "credits" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/credits"
	"github.com/xraph/credits/lock/redislock"
	"github.com/xraph/credits/observability"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
	mongostore "github.com/xraph/credits/store/mongo"
	sqlstore "github.com/xraph/credits/store/sql"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "credits"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Credit accounting engine for plans, programs and bonus credits"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

const connectTimeout = 10 * time.Second

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the credit engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *credits.Engine
	store      store.Store
	redis      redis.UniversalClient
	engineOpts []credits.Option
}

// New creates a new Credits Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *credits.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// opens the store, initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		s, err := openStore(ctx, e.config)
		if err != nil {
			return err
		}
		e.store = s
	}

	e.engine = credits.New(e.store, e.buildEngineOpts()...)

	return vessel.Provide(fapp.Container(), func() (*credits.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("credits: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	var errs []error
	if e.engine != nil {
		errs = append(errs, e.engine.Stop())
	}
	if e.redis != nil {
		errs = append(errs, e.redis.Close())
	}
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("credits: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if e.redis != nil {
		return e.redis.Ping(ctx).Err()
	}
	return nil
}

// openStore builds the store named by cfg.Driver.
func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return memory.New(), nil
	case DriverPostgres, DriverSQLite:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("credits: driver %q requires a dsn", cfg.Driver)
		}
		db, err := sqlstore.Open(cfg.Driver, cfg.DSN, nil)
		if err != nil {
			return nil, err
		}
		return sqlstore.New(db), nil
	case DriverMongo:
		if cfg.MongoURI == "" {
			return nil, errors.New("credits: driver \"mongo\" requires mongo_uri")
		}
		return mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("credits: unknown store driver %q", cfg.Driver)
	}
}

// buildEngineOpts constructs credits.Option values from the resolved config.
// Pass-through options come last so they win over config.
func (e *Extension) buildEngineOpts() []credits.Option {
	opts := make([]credits.Option, 0, len(e.engineOpts)+8)

	opts = append(opts,
		credits.WithAutoMigrate(!e.config.DisableMigrate),
		credits.WithMaxAttempts(e.config.MaxAttempts),
		credits.WithRetryBackoff(e.config.RetryBackoff),
		credits.WithExpiringSoonWindow(e.config.ExpiringSoonWindow),
	)

	if e.config.PluginTimeout > 0 {
		opts = append(opts, credits.WithPluginTimeout(e.config.PluginTimeout))
	}

	if e.config.RedisAddr != "" {
		if e.redis == nil {
			e.redis = redis.NewClient(&redis.Options{Addr: e.config.RedisAddr})
		}
		opts = append(opts,
			credits.WithLocker(redislock.New(e.redis)),
			credits.WithLockTTL(e.config.LockTTL),
		)
	}

	if e.config.EnableMetrics {
		opts = append(opts, credits.WithPlugin(
			observability.NewMetricsExtension(observability.NewPrometheusFactory(nil)),
		))
	}

	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("credits: configuration is required but not found in config files; " +
				"ensure 'extensions.credits' or 'credits' key exists in your config")
		}

		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("credits: configuration loaded",
		forge.F("driver", e.config.Driver),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("redis_lock", e.config.RedisAddr != ""),
		forge.F("max_attempts", e.config.MaxAttempts),
		forge.F("retry_backoff", e.config.RetryBackoff),
		forge.F("expiring_soon_window", e.config.ExpiringSoonWindow),
		forge.F("metrics", e.config.EnableMetrics),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.credits", "credits"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("credits: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("credits: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = defaults.MongoDatabase
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = defaults.LockTTL
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}
	if cfg.ExpiringSoonWindow == 0 {
		cfg.ExpiringSoonWindow = defaults.ExpiringSoonWindow
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.EnableMetrics {
		yamlConfig.EnableMetrics = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.Driver == "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}
	if yamlConfig.DSN == "" {
		yamlConfig.DSN = programmaticConfig.DSN
	}
	if yamlConfig.MongoURI == "" {
		yamlConfig.MongoURI = programmaticConfig.MongoURI
	}
	if yamlConfig.MongoDatabase == "" {
		yamlConfig.MongoDatabase = programmaticConfig.MongoDatabase
	}
	if yamlConfig.RedisAddr == "" {
		yamlConfig.RedisAddr = programmaticConfig.RedisAddr
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.LockTTL == 0 {
		yamlConfig.LockTTL = programmaticConfig.LockTTL
	}
	if yamlConfig.MaxAttempts == 0 {
		yamlConfig.MaxAttempts = programmaticConfig.MaxAttempts
	}
	if yamlConfig.RetryBackoff == 0 {
		yamlConfig.RetryBackoff = programmaticConfig.RetryBackoff
	}
	if yamlConfig.ExpiringSoonWindow == 0 {
		yamlConfig.ExpiringSoonWindow = programmaticConfig.ExpiringSoonWindow
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	return mergeWithDefaults(yamlConfig)
}
