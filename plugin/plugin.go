// Package plugin provides an extensible plugin system for the credits engine.
// Plugins hook into lifecycle and balance events; a failing or slow plugin
// is logged and never affects the operation that emitted the event.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *credits.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account, plan and subscription hooks
// ──────────────────────────────────────────────────

type OnAccountRegistered interface {
	Plugin
	OnAccountRegistered(ctx context.Context, a *account.Account) error
}

type OnPlanCreated interface {
	Plugin
	OnPlanCreated(ctx context.Context, p *plan.Plan) error
}

type OnPlanArchived interface {
	Plugin
	OnPlanArchived(ctx context.Context, planID id.PlanID) error
}

type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error
}

type OnSubscriptionCanceled interface {
	Plugin
	OnSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) error
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementProvisioned is called when a paid enrollment's credit pool
// is created.
type OnEntitlementProvisioned interface {
	Plugin
	OnEntitlementProvisioned(ctx context.Context, e *entitlement.Entitlement) error
}

// OnEnrollmentEnded is called after an enrollment's entitlements are made
// inert. ended is the number of entitlements affected.
type OnEnrollmentEnded interface {
	Plugin
	OnEnrollmentEnded(ctx context.Context, ref account.Ref, enrollmentID string, ended int) error
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted is called after a bonus batch is created.
type OnCreditsGranted interface {
	Plugin
	OnCreditsGranted(ctx context.Context, b *batch.Batch) error
}

// OnCreditsConsumed is called after a consume commits.
type OnCreditsConsumed interface {
	Plugin
	OnCreditsConsumed(ctx context.Context, txn *transaction.Transaction, elapsed time.Duration) error
}

// OnInsufficientCredits is called when a consume is rejected for lack of
// balance.
type OnInsufficientCredits interface {
	Plugin
	OnInsufficientCredits(ctx context.Context, ref account.Ref, featureKey string, available, required int64) error
}

// OnConsumeConflict is called each time a consume attempt loses a race
// with another writer on the same account.
type OnConsumeConflict interface {
	Plugin
	OnConsumeConflict(ctx context.Context, ref account.Ref, attempt int, err error) error
}
