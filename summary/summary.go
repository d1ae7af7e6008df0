// Package summary composes plan allowance, program entitlements and bonus
// batches into one CreditSummary snapshot. Build is a pure function of its
// inputs, so two builds over unchanged facts are identical.
package summary

import (
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/allowance"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/usage"
)

// DefaultExpiringWindow is how far ahead a batch counts as expiring soon.
const DefaultExpiringWindow = 7 * 24 * time.Hour

// Inputs are the stored facts a summary is derived from.
type Inputs struct {
	Account account.Ref
	Now     time.Time

	// Plan is nil when the account has no active subscription.
	Plan        *plan.Plan
	PeriodStart time.Time
	PeriodEnd   time.Time
	Usage       usage.Totals

	// Entitlements must be oldest first.
	Entitlements []*entitlement.Entitlement
	Batches      []*batch.Batch

	ExpiringWindow time.Duration
}

// PlanCredits is the plan allowance: the general pool plus every positive
// feature allocation.
type PlanCredits struct {
	allowance.Result
	Active   bool                        `json:"active"`
	Features map[string]allowance.Result `json:"features,omitempty"`
}

// BatchBalance is one live bonus batch.
type BatchBalance struct {
	BatchID         id.BatchID       `json:"batch_id"`
	FeatureKey      string           `json:"feature_key,omitempty"`
	AmountOriginal  int64            `json:"amount_original"`
	AmountRemaining int64            `json:"amount_remaining"`
	ExpiresAt       time.Time        `json:"expires_at"`
	SourceType      batch.SourceType `json:"source_type"`
	ExpiringSoon    bool             `json:"expiring_soon"`
}

// BonusCredits is the live bonus balance, soonest-expiring batch first.
type BonusCredits struct {
	Remaining int64            `json:"remaining"`
	General   int64            `json:"general"`
	ByFeature map[string]int64 `json:"by_feature,omitempty"`
	Batches   []BatchBalance   `json:"batches,omitempty"`
}

// Summary is the CreditSummary view. It is never persisted.
type Summary struct {
	Account        account.Ref        `json:"account"`
	AsOf           time.Time          `json:"as_of"`
	Plan           PlanCredits        `json:"plan"`
	Program        entitlement.Totals `json:"program"`
	Bonus          BonusCredits       `json:"bonus"`
	TotalAvailable int64              `json:"total_available"`
	ExpiringSoon   int64              `json:"expiring_soon"`
	EarliestExpiry *time.Time         `json:"earliest_expiry,omitempty"`
}

// FeatureCredits is the balance usable for one feature.
type FeatureCredits struct {
	FeatureKey string     `json:"feature_key"`
	Plan       int64      `json:"plan"`
	PlanPool   usage.Pool `json:"plan_pool"`
	Program    int64      `json:"program"`
	Bonus      int64      `json:"bonus"`
	Available  int64      `json:"available"`
}

// Build derives the summary for in.
func Build(in Inputs) *Summary {
	window := in.ExpiringWindow
	if window <= 0 {
		window = DefaultExpiringWindow
	}

	s := &Summary{
		Account: in.Account,
		AsOf:    in.Now,
		Plan: PlanCredits{
			Result:   allowance.Calculate(in.Plan, in.PeriodStart, in.PeriodEnd, in.Usage, ""),
			Active:   in.Plan != nil,
			Features: allowance.Features(in.Plan, in.PeriodStart, in.PeriodEnd, in.Usage),
		},
		Program: entitlement.Aggregate(in.Entitlements, ""),
	}

	horizon := in.Now.Add(window)
	for _, b := range batch.Eligible(in.Batches, "", in.Now) {
		soon := !b.ExpiresAt.After(horizon)
		s.Bonus.Batches = append(s.Bonus.Batches, BatchBalance{
			BatchID:         b.ID,
			FeatureKey:      b.FeatureKey,
			AmountOriginal:  b.AmountOriginal,
			AmountRemaining: b.AmountRemaining,
			ExpiresAt:       b.ExpiresAt,
			SourceType:      b.SourceType,
			ExpiringSoon:    soon,
		})
		s.Bonus.Remaining += b.AmountRemaining
		if b.General() {
			s.Bonus.General += b.AmountRemaining
		} else {
			if s.Bonus.ByFeature == nil {
				s.Bonus.ByFeature = make(map[string]int64)
			}
			s.Bonus.ByFeature[b.FeatureKey] += b.AmountRemaining
		}
		if soon {
			s.ExpiringSoon += b.AmountRemaining
		}
		if s.EarliestExpiry == nil || b.ExpiresAt.Before(*s.EarliestExpiry) {
			exp := b.ExpiresAt
			s.EarliestExpiry = &exp
		}
	}

	s.TotalAvailable = s.Plan.Remaining + s.Program.Remaining + s.Bonus.Remaining
	return s
}

// Feature returns the credits usable for featureKey. A positive plan
// allocation for the feature replaces the general plan figure; program and
// bonus balances scoped to the feature, plus general bonus batches, are
// added on top. An empty featureKey yields the total available balance.
func (s *Summary) Feature(featureKey string) FeatureCredits {
	fc := FeatureCredits{
		FeatureKey: featureKey,
		Plan:       s.Plan.Remaining,
		PlanPool:   usage.PoolGeneral,
	}
	if featureKey == "" {
		fc.Program = s.Program.Remaining
		fc.Bonus = s.Bonus.Remaining
		fc.Available = s.TotalAvailable
		return fc
	}

	if r, ok := s.Plan.Features[featureKey]; ok {
		fc.Plan = r.Remaining
		fc.PlanPool = usage.PoolFeature
	}
	fc.Program = s.Program.ByFeature[featureKey]
	fc.Bonus = s.Bonus.General + s.Bonus.ByFeature[featureKey]
	fc.Available = fc.Plan + fc.Program + fc.Bonus
	return fc
}
