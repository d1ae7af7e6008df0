package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/types"
)

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

// RegisterAccount records a new account. Every balance operation requires
// the account to be registered first.
func (e *Engine) RegisterAccount(ctx context.Context, a *account.Account) error {
	if err := a.Ref.Validate(); err != nil {
		return ValidationError{Field: "account", Message: err.Error()}
	}
	a.Entity = types.NewEntityAt(e.clock.Now())

	if err := e.store.CreateAccount(ctx, a); err != nil {
		return err
	}

	e.plugins.EmitAccountRegistered(ctx, a)
	return nil
}

// GetAccount retrieves a registered account.
func (e *Engine) GetAccount(ctx context.Context, ref account.Ref) (*account.Account, error) {
	return e.store.GetAccount(ctx, ref)
}

// ──────────────────────────────────────────────────
// Plan Management
// ──────────────────────────────────────────────────

// CreatePlan creates a new plan.
func (e *Engine) CreatePlan(ctx context.Context, p *plan.Plan) error {
	if p.ID.IsNil() {
		p.ID = id.NewPlanID()
	}
	if p.Status == "" {
		p.Status = plan.StatusActive
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	p.Entity = types.NewEntityAt(e.clock.Now())

	if err := e.store.CreatePlan(ctx, p); err != nil {
		return err
	}

	e.plugins.EmitPlanCreated(ctx, p)
	return nil
}

// GetPlan retrieves a plan by ID.
func (e *Engine) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	return e.store.GetPlan(ctx, planID)
}

// ListPlans lists plans.
func (e *Engine) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	return e.store.ListPlans(ctx, opts)
}

// ArchivePlan stops a plan from accepting new subscriptions. Existing
// subscriptions keep drawing its allowance.
func (e *Engine) ArchivePlan(ctx context.Context, planID id.PlanID) error {
	if err := e.store.ArchivePlan(ctx, planID); err != nil {
		return err
	}
	e.plugins.EmitPlanArchived(ctx, planID)
	return nil
}

// ──────────────────────────────────────────────────
// Subscription Management
// ──────────────────────────────────────────────────

// Subscribe attaches the account to a plan. Billing periods are anchored at
// anchorAt, or at the current time when anchorAt is zero.
func (e *Engine) Subscribe(ctx context.Context, ref account.Ref, planID id.PlanID, anchorAt time.Time) (*subscription.Subscription, error) {
	if _, err := e.store.GetAccount(ctx, ref); err != nil {
		return nil, err
	}

	p, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if p.Status == plan.StatusArchived {
		return nil, ErrPlanArchived
	}

	now := e.clock.Now()
	if anchorAt.IsZero() {
		anchorAt = now
	}

	// Periods never overlap: any subscription still granting credits at or
	// after the new anchor blocks it, whether it started before or after.
	taken, err := e.store.HasSubscriptionFrom(ctx, ref, anchorAt)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrSubscriptionExists
	}

	sub := &subscription.Subscription{
		Entity:   types.NewEntityAt(now),
		ID:       id.NewSubscriptionID(),
		Account:  ref,
		PlanID:   planID,
		Status:   subscription.StatusActive,
		AnchorAt: anchorAt.UTC(),
	}
	if err := e.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	e.plugins.EmitSubscriptionCreated(ctx, sub)
	return sub, nil
}

// GetSubscription retrieves a subscription by ID.
func (e *Engine) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return e.store.GetSubscription(ctx, subID)
}

// GetActiveSubscription returns the subscription granting plan credits now.
func (e *Engine) GetActiveSubscription(ctx context.Context, ref account.Ref) (*subscription.Subscription, error) {
	return e.store.GetActiveSubscription(ctx, ref, e.clock.Now())
}

// CancelSubscription cancels a subscription, either now or at the end of the
// current billing period.
func (e *Engine) CancelSubscription(ctx context.Context, subID id.SubscriptionID, immediately bool) (*subscription.Subscription, error) {
	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.Status == subscription.StatusCanceled || sub.CancelAt != nil {
		return nil, ErrSubscriptionCanceled
	}

	now := e.clock.Now()
	cancelAt := now
	if !immediately && !now.Before(sub.AnchorAt) {
		_, cancelAt = sub.PeriodAt(now)
	}

	if err := e.store.CancelSubscription(ctx, subID, cancelAt, immediately); err != nil {
		return nil, err
	}

	sub, err = e.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	e.plugins.EmitSubscriptionCanceled(ctx, sub)
	return sub, nil
}

// ──────────────────────────────────────────────────
// Program Entitlements
// ──────────────────────────────────────────────────

// ProvisionEntitlement creates the credit pool of a paid enrollment.
func (e *Engine) ProvisionEntitlement(ctx context.Context, ref account.Ref, enrollmentID, featureKey string, total int64) (*entitlement.Entitlement, error) {
	if total <= 0 {
		return nil, fmt.Errorf("%w: entitlement total must be positive", ErrInvalidAmount)
	}
	var errs MultiError
	if enrollmentID == "" {
		errs.Add(ValidationError{Field: "enrollment_id", Message: "is required"})
	}
	if featureKey == "" {
		errs.Add(ValidationError{Field: "feature_key", Message: "is required"})
	}
	if errs.HasErrors() {
		return nil, errs
	}

	if _, err := e.store.GetAccount(ctx, ref); err != nil {
		return nil, err
	}

	ent := &entitlement.Entitlement{
		Entity:       types.NewEntityAt(e.clock.Now()),
		ID:           id.NewEntitlementID(),
		Account:      ref,
		EnrollmentID: enrollmentID,
		FeatureKey:   featureKey,
		Total:        total,
		Active:       true,
	}
	if err := e.store.CreateEntitlement(ctx, ent); err != nil {
		return nil, err
	}

	e.plugins.EmitEntitlementProvisioned(ctx, ent)
	return ent, nil
}

// EndEnrollment makes the enrollment's entitlements inert. They are kept
// for audit and no longer contribute to the balance.
func (e *Engine) EndEnrollment(ctx context.Context, ref account.Ref, enrollmentID string) (int, error) {
	n, err := e.store.EndEnrollment(ctx, ref, enrollmentID, e.clock.Now())
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrEntitlementNotFound
	}

	e.plugins.EmitEnrollmentEnded(ctx, ref, enrollmentID, n)
	return n, nil
}

// ListEntitlements lists the account's entitlements oldest first.
func (e *Engine) ListEntitlements(ctx context.Context, ref account.Ref, opts entitlement.ListOpts) ([]*entitlement.Entitlement, error) {
	return e.store.ListEntitlements(ctx, ref, opts)
}
