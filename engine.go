package credits

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/credits/clock"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/summary"
)

// Defaults for the consume retry loop and the summary expiry window.
const (
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 10 * time.Millisecond
	DefaultLockTTL      = 10 * time.Second
)

// Engine is the credit accounting engine. It is safe for concurrent use.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   clock.Clock
	locker  Locker

	// Configuration
	maxAttempts    int
	retryBackoff   time.Duration
	lockTTL        time.Duration
	expiringWindow time.Duration
	autoMigrate    bool
}

// New creates a new Engine backed by s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		clock:          clock.Real(),
		maxAttempts:    DefaultMaxAttempts,
		retryBackoff:   DefaultRetryBackoff,
		lockTTL:        DefaultLockTTL,
		expiringWindow: summary.DefaultExpiringWindow,
		autoMigrate:    true,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithClock replaces the wall clock. Tests use clock.Fake.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLocker adds a cross-process lock taken around every consume.
func WithLocker(l Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithLockTTL sets how long a Locker lease lasts.
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.lockTTL = ttl
		}
	}
}

// WithMaxAttempts sets how many times a consume is attempted when it keeps
// losing write conflicts.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the base delay between conflicting attempts. The
// delay grows linearly with the attempt number.
func WithRetryBackoff(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.retryBackoff = d
		}
	}
}

// WithExpiringSoonWindow sets how far ahead a batch counts as expiring soon.
func WithExpiringSoonWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.expiringWindow = d
		}
	}
}

// WithAutoMigrate controls whether Start migrates the store. Defaults to true.
func WithAutoMigrate(enabled bool) Option {
	return func(e *Engine) {
		e.autoMigrate = enabled
	}
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Start migrates the store (unless disabled) and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if e.autoMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("credits engine started",
		"max_attempts", e.maxAttempts,
		"retry_backoff", e.retryBackoff,
		"expiring_window", e.expiringWindow,
		"locker", e.locker != nil,
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}
