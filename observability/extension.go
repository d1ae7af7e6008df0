// Package observability provides a metrics plugin for the credits engine
// that records lifecycle and balance event counts via a MetricFactory.
package observability

import (
	"context"
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

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                   = (*MetricsExtension)(nil)
	_ plugin.OnInit                   = (*MetricsExtension)(nil)
	_ plugin.OnAccountRegistered      = (*MetricsExtension)(nil)
	_ plugin.OnPlanCreated            = (*MetricsExtension)(nil)
	_ plugin.OnPlanArchived           = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated    = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCanceled   = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementProvisioned = (*MetricsExtension)(nil)
	_ plugin.OnEnrollmentEnded        = (*MetricsExtension)(nil)
	_ plugin.OnCreditsGranted         = (*MetricsExtension)(nil)
	_ plugin.OnCreditsConsumed        = (*MetricsExtension)(nil)
	_ plugin.OnInsufficientCredits    = (*MetricsExtension)(nil)
	_ plugin.OnConsumeConflict        = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide credit metrics.
// Register it as an engine plugin to track balances automatically.
type MetricsExtension struct {
	factory MetricFactory

	// Account, plan and subscription metrics
	AccountRegistered    Counter
	PlanCreated          Counter
	PlanArchived         Counter
	SubscriptionCreated  Counter
	SubscriptionCanceled Counter

	// Program metrics
	EntitlementProvisioned Counter
	EntitlementCredits     Counter
	EnrollmentEnded        Counter

	// Bonus metrics
	BatchGranted   Counter
	CreditsGranted Counter

	// Consumption metrics
	ConsumeSucceeded    Counter
	CreditsConsumed     Counter
	CreditsFromPlan     Counter
	CreditsFromProgram  Counter
	CreditsFromBonus    Counter
	ConsumeAmount       Histogram
	ConsumeLatency      Histogram
	InsufficientCredits Counter
	ConsumeShortfall    Histogram
	ConsumeConflicts    Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		AccountRegistered:    factory.Counter("credits.account.registered"),
		PlanCreated:          factory.Counter("credits.plan.created"),
		PlanArchived:         factory.Counter("credits.plan.archived"),
		SubscriptionCreated:  factory.Counter("credits.subscription.created"),
		SubscriptionCanceled: factory.Counter("credits.subscription.canceled"),

		EntitlementProvisioned: factory.Counter("credits.entitlement.provisioned"),
		EntitlementCredits:     factory.Counter("credits.entitlement.credits"),
		EnrollmentEnded:        factory.Counter("credits.enrollment.ended"),

		BatchGranted:   factory.Counter("credits.batch.granted"),
		CreditsGranted: factory.Counter("credits.bonus.granted"),

		ConsumeSucceeded:    factory.Counter("credits.consume.succeeded"),
		CreditsConsumed:     factory.Counter("credits.consume.credits"),
		CreditsFromPlan:     factory.Counter("credits.consume.plan"),
		CreditsFromProgram:  factory.Counter("credits.consume.program"),
		CreditsFromBonus:    factory.Counter("credits.consume.bonus"),
		ConsumeAmount:       factory.Histogram("credits.consume.amount"),
		ConsumeLatency:      factory.Histogram("credits.consume.latency_ms"),
		InsufficientCredits: factory.Counter("credits.consume.insufficient"),
		ConsumeShortfall:    factory.Histogram("credits.consume.shortfall"),
		ConsumeConflicts:    factory.Counter("credits.consume.conflicts"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Account, plan and subscription hooks
// ──────────────────────────────────────────────────

// OnAccountRegistered implements plugin.OnAccountRegistered.
func (m *MetricsExtension) OnAccountRegistered(_ context.Context, _ *account.Account) error {
	m.AccountRegistered.Inc()
	return nil
}

// OnPlanCreated implements plugin.OnPlanCreated.
func (m *MetricsExtension) OnPlanCreated(_ context.Context, _ *plan.Plan) error {
	m.PlanCreated.Inc()
	return nil
}

// OnPlanArchived implements plugin.OnPlanArchived.
func (m *MetricsExtension) OnPlanArchived(_ context.Context, _ id.PlanID) error {
	m.PlanArchived.Inc()
	return nil
}

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCreated.Inc()
	return nil
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (m *MetricsExtension) OnSubscriptionCanceled(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCanceled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementProvisioned implements plugin.OnEntitlementProvisioned.
func (m *MetricsExtension) OnEntitlementProvisioned(_ context.Context, e *entitlement.Entitlement) error {
	m.EntitlementProvisioned.Inc()
	m.EntitlementCredits.Add(float64(e.Total))
	return nil
}

// OnEnrollmentEnded implements plugin.OnEnrollmentEnded.
func (m *MetricsExtension) OnEnrollmentEnded(_ context.Context, _ account.Ref, _ string, ended int) error {
	m.EnrollmentEnded.Add(float64(ended))
	return nil
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted implements plugin.OnCreditsGranted.
func (m *MetricsExtension) OnCreditsGranted(_ context.Context, b *batch.Batch) error {
	m.BatchGranted.Inc()
	m.CreditsGranted.Add(float64(b.AmountOriginal))
	return nil
}

// OnCreditsConsumed implements plugin.OnCreditsConsumed.
func (m *MetricsExtension) OnCreditsConsumed(_ context.Context, txn *transaction.Transaction, elapsed time.Duration) error {
	m.ConsumeSucceeded.Inc()
	m.CreditsConsumed.Add(float64(txn.AmountRequested))
	if txn.FromPlan > 0 {
		m.CreditsFromPlan.Add(float64(txn.FromPlan))
	}
	if txn.FromProgram > 0 {
		m.CreditsFromProgram.Add(float64(txn.FromProgram))
	}
	if txn.FromBonus > 0 {
		m.CreditsFromBonus.Add(float64(txn.FromBonus))
	}
	m.ConsumeAmount.Observe(float64(txn.AmountRequested))
	m.ConsumeLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnInsufficientCredits implements plugin.OnInsufficientCredits.
func (m *MetricsExtension) OnInsufficientCredits(_ context.Context, _ account.Ref, _ string, available, required int64) error {
	m.InsufficientCredits.Inc()
	m.ConsumeShortfall.Observe(float64(required - available))
	return nil
}

// OnConsumeConflict implements plugin.OnConsumeConflict.
func (m *MetricsExtension) OnConsumeConflict(_ context.Context, _ account.Ref, _ int, _ error) error {
	m.ConsumeConflicts.Inc()
	return nil
}
