package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
)

// DefaultTimeout bounds a single plugin call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                   []OnInit
	onShutdown               []OnShutdown
	onAccountRegistered      []OnAccountRegistered
	onPlanCreated            []OnPlanCreated
	onPlanArchived           []OnPlanArchived
	onSubscriptionCreated    []OnSubscriptionCreated
	onSubscriptionCanceled   []OnSubscriptionCanceled
	onEntitlementProvisioned []OnEntitlementProvisioned
	onEnrollmentEnded        []OnEnrollmentEnded
	onCreditsGranted         []OnCreditsGranted
	onCreditsConsumed        []OnCreditsConsumed
	onInsufficientCredits    []OnInsufficientCredits
	onConsumeConflict        []OnConsumeConflict
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call plugin timeout. Non-positive values are ignored.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its hook interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccountRegistered); ok {
		r.onAccountRegistered = append(r.onAccountRegistered, v)
	}
	if v, ok := p.(OnPlanCreated); ok {
		r.onPlanCreated = append(r.onPlanCreated, v)
	}
	if v, ok := p.(OnPlanArchived); ok {
		r.onPlanArchived = append(r.onPlanArchived, v)
	}
	if v, ok := p.(OnSubscriptionCreated); ok {
		r.onSubscriptionCreated = append(r.onSubscriptionCreated, v)
	}
	if v, ok := p.(OnSubscriptionCanceled); ok {
		r.onSubscriptionCanceled = append(r.onSubscriptionCanceled, v)
	}
	if v, ok := p.(OnEntitlementProvisioned); ok {
		r.onEntitlementProvisioned = append(r.onEntitlementProvisioned, v)
	}
	if v, ok := p.(OnEnrollmentEnded); ok {
		r.onEnrollmentEnded = append(r.onEnrollmentEnded, v)
	}
	if v, ok := p.(OnCreditsGranted); ok {
		r.onCreditsGranted = append(r.onCreditsGranted, v)
	}
	if v, ok := p.(OnCreditsConsumed); ok {
		r.onCreditsConsumed = append(r.onCreditsConsumed, v)
	}
	if v, ok := p.(OnInsufficientCredits); ok {
		r.onInsufficientCredits = append(r.onInsufficientCredits, v)
	}
	if v, ok := p.(OnConsumeConflict); ok {
		r.onConsumeConflict = append(r.onConsumeConflict, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", implementedHooks(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnAccountRegistered", reflect.TypeFor[OnAccountRegistered]()},
	{"OnPlanCreated", reflect.TypeFor[OnPlanCreated]()},
	{"OnPlanArchived", reflect.TypeFor[OnPlanArchived]()},
	{"OnSubscriptionCreated", reflect.TypeFor[OnSubscriptionCreated]()},
	{"OnSubscriptionCanceled", reflect.TypeFor[OnSubscriptionCanceled]()},
	{"OnEntitlementProvisioned", reflect.TypeFor[OnEntitlementProvisioned]()},
	{"OnEnrollmentEnded", reflect.TypeFor[OnEnrollmentEnded]()},
	{"OnCreditsGranted", reflect.TypeFor[OnCreditsGranted]()},
	{"OnCreditsConsumed", reflect.TypeFor[OnCreditsConsumed]()},
	{"OnInsufficientCredits", reflect.TypeFor[OnInsufficientCredits]()},
	{"OnConsumeConflict", reflect.TypeFor[OnConsumeConflict]()},
}

func implementedHooks(p Plugin) []string {
	var hooks []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			hooks = append(hooks, h.name)
		}
	}
	return hooks
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every plugin in hooks, logging failures.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, hooks *[]T, fn func(T) error) {
	r.mu.RLock()
	plugins := *hooks
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	emit(ctx, r, "OnInit", &r.onInit, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", &r.onShutdown, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

func (r *Registry) EmitAccountRegistered(ctx context.Context, a *account.Account) {
	emit(ctx, r, "OnAccountRegistered", &r.onAccountRegistered, func(p OnAccountRegistered) error {
		return p.OnAccountRegistered(ctx, a)
	})
}

func (r *Registry) EmitPlanCreated(ctx context.Context, pl *plan.Plan) {
	emit(ctx, r, "OnPlanCreated", &r.onPlanCreated, func(p OnPlanCreated) error {
		return p.OnPlanCreated(ctx, pl)
	})
}

func (r *Registry) EmitPlanArchived(ctx context.Context, planID id.PlanID) {
	emit(ctx, r, "OnPlanArchived", &r.onPlanArchived, func(p OnPlanArchived) error {
		return p.OnPlanArchived(ctx, planID)
	})
}

func (r *Registry) EmitSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) {
	emit(ctx, r, "OnSubscriptionCreated", &r.onSubscriptionCreated, func(p OnSubscriptionCreated) error {
		return p.OnSubscriptionCreated(ctx, sub)
	})
}

func (r *Registry) EmitSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) {
	emit(ctx, r, "OnSubscriptionCanceled", &r.onSubscriptionCanceled, func(p OnSubscriptionCanceled) error {
		return p.OnSubscriptionCanceled(ctx, sub)
	})
}

func (r *Registry) EmitEntitlementProvisioned(ctx context.Context, e *entitlement.Entitlement) {
	emit(ctx, r, "OnEntitlementProvisioned", &r.onEntitlementProvisioned, func(p OnEntitlementProvisioned) error {
		return p.OnEntitlementProvisioned(ctx, e)
	})
}

func (r *Registry) EmitEnrollmentEnded(ctx context.Context, ref account.Ref, enrollmentID string, ended int) {
	emit(ctx, r, "OnEnrollmentEnded", &r.onEnrollmentEnded, func(p OnEnrollmentEnded) error {
		return p.OnEnrollmentEnded(ctx, ref, enrollmentID, ended)
	})
}

func (r *Registry) EmitCreditsGranted(ctx context.Context, b *batch.Batch) {
	emit(ctx, r, "OnCreditsGranted", &r.onCreditsGranted, func(p OnCreditsGranted) error {
		return p.OnCreditsGranted(ctx, b)
	})
}

func (r *Registry) EmitCreditsConsumed(ctx context.Context, txn *transaction.Transaction, elapsed time.Duration) {
	emit(ctx, r, "OnCreditsConsumed", &r.onCreditsConsumed, func(p OnCreditsConsumed) error {
		return p.OnCreditsConsumed(ctx, txn, elapsed)
	})
}

func (r *Registry) EmitInsufficientCredits(ctx context.Context, ref account.Ref, featureKey string, available, required int64) {
	emit(ctx, r, "OnInsufficientCredits", &r.onInsufficientCredits, func(p OnInsufficientCredits) error {
		return p.OnInsufficientCredits(ctx, ref, featureKey, available, required)
	})
}

func (r *Registry) EmitConsumeConflict(ctx context.Context, ref account.Ref, attempt int, cause error) {
	emit(ctx, r, "OnConsumeConflict", &r.onConsumeConflict, func(p OnConsumeConflict) error {
		return p.OnConsumeConflict(ctx, ref, attempt, cause)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins must never block the credit pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
