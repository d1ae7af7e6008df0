// Package consumption decides which credit sources a debit is drawn from.
//
// Allocation is pure. The caller loads the account's facts, asks for an
// allocation, and applies the resulting debits in one atomic unit. Sources
// are drawn in fixed priority: plan allowance, then program entitlements
// oldest first, then bonus batches soonest-expiring first.
package consumption

import (
	"github.com/xraph/credits/allowance"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/summary"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/usage"
)

// Sources are the balances eligible for one debit, already in debit order.
type Sources struct {
	FeatureKey   string
	Plan         allowance.Result
	Entitlements []*entitlement.Entitlement
	Batches      []*batch.Batch
}

// SourcesFor selects the sources in in that may pay for featureKey.
func SourcesFor(in summary.Inputs, featureKey string) Sources {
	return Sources{
		FeatureKey:   featureKey,
		Plan:         allowance.Calculate(in.Plan, in.PeriodStart, in.PeriodEnd, in.Usage, featureKey),
		Entitlements: entitlement.Eligible(in.Entitlements, featureKey),
		Batches:      batch.Eligible(in.Batches, featureKey, in.Now),
	}
}

// Available is the total the sources can cover.
func (s Sources) Available() int64 {
	total := s.Plan.Remaining
	for _, e := range s.Entitlements {
		total += e.Remaining()
	}
	for _, b := range s.Batches {
		total += b.AmountRemaining
	}
	return total
}

// Allocation is the per-source breakdown of one debit.
type Allocation struct {
	Requested int64
	Available int64

	FromPlan int64
	PlanPool usage.Pool

	FromProgram  int64
	Entitlements []transaction.EntitlementDebit

	FromBonus int64
	Batches   []transaction.BatchDebit
}

// Total returns the amount allocated across all sources.
func (a Allocation) Total() int64 {
	return a.FromPlan + a.FromProgram + a.FromBonus
}

// Allocate splits amount across s. It returns ok=false, with Available set,
// when the sources cannot cover the whole amount; nothing is partially
// allocated in that case.
func Allocate(s Sources, amount int64) (Allocation, bool) {
	a := Allocation{
		Requested: amount,
		Available: s.Available(),
		PlanPool:  s.Plan.Pool,
	}
	if amount <= 0 || a.Available < amount {
		return Allocation{Requested: amount, Available: a.Available}, false
	}

	left := amount

	a.FromPlan = min(left, s.Plan.Remaining)
	left -= a.FromPlan

	for _, e := range s.Entitlements {
		if left == 0 {
			break
		}
		take := min(left, e.Remaining())
		if take <= 0 {
			continue
		}
		a.Entitlements = append(a.Entitlements, transaction.EntitlementDebit{EntitlementID: e.ID, Amount: take})
		a.FromProgram += take
		left -= take
	}

	for _, b := range s.Batches {
		if left == 0 {
			break
		}
		take := min(left, b.AmountRemaining)
		if take <= 0 {
			continue
		}
		a.Batches = append(a.Batches, transaction.BatchDebit{BatchID: b.ID, Amount: take})
		a.FromBonus += take
		left -= take
	}

	if left != 0 || a.Total() != amount {
		return Allocation{Requested: amount, Available: a.Available}, false
	}
	return a, true
}
