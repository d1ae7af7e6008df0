package credits

import (
	"context"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/allowance"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/summary"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/usage"
)

// ──────────────────────────────────────────────────
// Balance reads
// ──────────────────────────────────────────────────

// Summary returns the account's credit summary, rebuilt from stored facts.
// It takes no locks and may be called at any rate.
func (e *Engine) Summary(ctx context.Context, ref account.Ref) (*summary.Summary, error) {
	in, err := e.snapshot(ctx, ref)
	if err != nil {
		return nil, err
	}
	return summary.Build(in), nil
}

// FeatureCredits returns the balance usable for featureKey. A positive plan
// allocation for the feature replaces the general plan allowance.
func (e *Engine) FeatureCredits(ctx context.Context, ref account.Ref, featureKey string) (summary.FeatureCredits, error) {
	s, err := e.Summary(ctx, ref)
	if err != nil {
		return summary.FeatureCredits{}, err
	}
	return s.Feature(featureKey), nil
}

// PlanRemaining returns the plan allowance left in the current period for
// featureKey (or the general pool when empty). No active plan yields zero.
func (e *Engine) PlanRemaining(ctx context.Context, ref account.Ref, featureKey string) (allowance.Result, error) {
	in, err := e.snapshot(ctx, ref)
	if err != nil {
		return allowance.Result{}, err
	}
	return allowance.Calculate(in.Plan, in.PeriodStart, in.PeriodEnd, in.Usage, featureKey), nil
}

// ProgramRemaining aggregates the account's active entitlements, optionally
// filtered by featureKey.
func (e *Engine) ProgramRemaining(ctx context.Context, ref account.Ref, featureKey string) (entitlement.Totals, error) {
	in, err := e.snapshot(ctx, ref)
	if err != nil {
		return entitlement.Totals{}, err
	}
	return entitlement.Aggregate(in.Entitlements, featureKey), nil
}

func (e *Engine) snapshot(ctx context.Context, ref account.Ref) (summary.Inputs, error) {
	now := e.clock.Now()
	var in summary.Inputs
	err := e.store.View(ctx, ref, func(ctx context.Context, r store.Reader) error {
		if _, err := r.GetAccount(ctx, ref); err != nil {
			return err
		}
		var err error
		in, err = e.loadInputs(ctx, r, ref, now)
		return err
	})
	return in, err
}

// loadInputs reads every fact a summary or an allocation needs.
func (e *Engine) loadInputs(ctx context.Context, r store.Reader, ref account.Ref, now time.Time) (summary.Inputs, error) {
	in := summary.Inputs{
		Account:        ref,
		Now:            now,
		ExpiringWindow: e.expiringWindow,
	}

	sub, err := r.GetActiveSubscription(ctx, ref, now)
	switch {
	case err == nil:
		if start, end, ok := allowance.Period(sub, now); ok {
			p, err := r.GetPlan(ctx, sub.PlanID)
			if err != nil {
				return in, err
			}
			totals, err := r.SumUsage(ctx, ref, start, end)
			if err != nil {
				return in, err
			}
			in.Plan, in.PeriodStart, in.PeriodEnd, in.Usage = p, start, end, totals
		}
	case !IsNotFound(err):
		return in, err
	}

	in.Entitlements, err = r.ListEntitlements(ctx, ref, entitlement.ListOpts{ActiveOnly: true})
	if err != nil {
		return in, err
	}
	in.Batches, err = r.ListBatches(ctx, ref, batch.ListOpts{LiveAt: now})
	if err != nil {
		return in, err
	}
	return in, nil
}

// ──────────────────────────────────────────────────
// History
// ──────────────────────────────────────────────────

// GetTransaction retrieves a consumption transaction by ID.
func (e *Engine) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	return e.store.GetTransaction(ctx, txnID)
}

// ListTransactions lists the account's transactions newest first.
func (e *Engine) ListTransactions(ctx context.Context, ref account.Ref, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	return e.store.ListTransactions(ctx, ref, opts)
}

// ListUsage lists the account's plan usage records.
func (e *Engine) ListUsage(ctx context.Context, ref account.Ref, opts usage.ListOpts) ([]*usage.Record, error) {
	return e.store.ListUsage(ctx, ref, opts)
}
