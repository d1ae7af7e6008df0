// Package audithook bridges credits lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit library directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                   = (*Extension)(nil)
	_ plugin.OnAccountRegistered      = (*Extension)(nil)
	_ plugin.OnPlanCreated            = (*Extension)(nil)
	_ plugin.OnPlanArchived           = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated    = (*Extension)(nil)
	_ plugin.OnSubscriptionCanceled   = (*Extension)(nil)
	_ plugin.OnEntitlementProvisioned = (*Extension)(nil)
	_ plugin.OnEnrollmentEnded        = (*Extension)(nil)
	_ plugin.OnCreditsGranted         = (*Extension)(nil)
	_ plugin.OnCreditsConsumed        = (*Extension)(nil)
	_ plugin.OnInsufficientCredits    = (*Extension)(nil)
	_ plugin.OnConsumeConflict        = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Account    string         `json:"account,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges credits lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account, plan and subscription hooks
// ──────────────────────────────────────────────────

// OnAccountRegistered implements plugin.OnAccountRegistered.
func (e *Extension) OnAccountRegistered(ctx context.Context, a *account.Account) error {
	return e.record(ctx, ActionAccountRegistered, SeverityInfo, OutcomeSuccess,
		ResourceAccount, a.Ref.Key(), a.Ref, CategoryAccount, nil,
		"kind", string(a.Ref.Kind),
	)
}

// OnPlanCreated implements plugin.OnPlanCreated.
func (e *Extension) OnPlanCreated(ctx context.Context, p *plan.Plan) error {
	return e.record(ctx, ActionPlanCreated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, p.ID.String(), account.Ref{}, CategoryBilling, nil,
		"slug", p.Slug,
		"monthly_credits", p.MonthlyCredits,
	)
}

// OnPlanArchived implements plugin.OnPlanArchived.
func (e *Extension) OnPlanArchived(ctx context.Context, planID id.PlanID) error {
	return e.record(ctx, ActionPlanArchived, SeverityInfo, OutcomeSuccess,
		ResourcePlan, planID.String(), account.Ref{}, CategoryBilling, nil,
	)
}

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (e *Extension) OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), sub.Account, CategorySubscription, nil,
		"plan_id", sub.PlanID.String(),
	)
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (e *Extension) OnSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCanceled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), sub.Account, CategorySubscription, nil,
		"status", string(sub.Status),
		"cancel_at", cancelAt(sub),
	)
}

// ──────────────────────────────────────────────────
// Program hooks
// ──────────────────────────────────────────────────

// OnEntitlementProvisioned implements plugin.OnEntitlementProvisioned.
func (e *Extension) OnEntitlementProvisioned(ctx context.Context, ent *entitlement.Entitlement) error {
	return e.record(ctx, ActionEntitlementProvisioned, SeverityInfo, OutcomeSuccess,
		ResourceEntitlement, ent.ID.String(), ent.Account, CategoryProgram, nil,
		"enrollment_id", ent.EnrollmentID,
		"feature", ent.FeatureKey,
		"total", ent.Total,
	)
}

// OnEnrollmentEnded implements plugin.OnEnrollmentEnded.
func (e *Extension) OnEnrollmentEnded(ctx context.Context, ref account.Ref, enrollmentID string, ended int) error {
	return e.record(ctx, ActionEnrollmentEnded, SeverityInfo, OutcomeSuccess,
		ResourceEntitlement, enrollmentID, ref, CategoryProgram, nil,
		"ended", ended,
	)
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted implements plugin.OnCreditsGranted.
func (e *Extension) OnCreditsGranted(ctx context.Context, b *batch.Batch) error {
	return e.record(ctx, ActionCreditsGranted, SeverityInfo, OutcomeSuccess,
		ResourceBatch, b.ID.String(), b.Account, CategoryBalance, nil,
		"amount", b.AmountOriginal,
		"source_type", string(b.SourceType),
		"feature", b.FeatureKey,
		"expires_at", b.ExpiresAt.Format(time.RFC3339),
	)
}

// OnCreditsConsumed implements plugin.OnCreditsConsumed.
func (e *Extension) OnCreditsConsumed(ctx context.Context, txn *transaction.Transaction, _ time.Duration) error {
	return e.record(ctx, ActionCreditsConsumed, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, txn.ID.String(), txn.Account, CategoryBalance, nil,
		"amount", txn.AmountRequested,
		"from_plan", txn.FromPlan,
		"from_program", txn.FromProgram,
		"from_bonus", txn.FromBonus,
		"balance_after", txn.BalanceAfter,
		"feature", txn.FeatureKey,
		"action_type", txn.ActionType,
	)
}

// OnInsufficientCredits implements plugin.OnInsufficientCredits.
func (e *Extension) OnInsufficientCredits(ctx context.Context, ref account.Ref, featureKey string, available, required int64) error {
	return e.record(ctx, ActionInsufficientCredits, SeverityWarning, OutcomeFailure,
		ResourceAccount, ref.Key(), ref, CategoryBalance, nil,
		"feature", featureKey,
		"available", available,
		"required", required,
	)
}

// OnConsumeConflict implements plugin.OnConsumeConflict.
func (e *Extension) OnConsumeConflict(ctx context.Context, ref account.Ref, attempt int, err error) error {
	return e.record(ctx, ActionConsumeConflict, SeverityWarning, OutcomePartial,
		ResourceAccount, ref.Key(), ref, CategoryBalance, err,
		"attempt", attempt,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID string,
	ref account.Ref,
	category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Account:    accountKey(ref),
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

func accountKey(ref account.Ref) string {
	if ref.IsZero() {
		return ""
	}
	return ref.Key()
}

func cancelAt(sub *subscription.Subscription) string {
	if sub.CancelAt == nil {
		return ""
	}
	return sub.CancelAt.Format(time.RFC3339)
}
