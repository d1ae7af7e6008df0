// Package allowance derives the remaining plan credit for an account from
// its subscription and the usage recorded in the current billing period.
// Nothing here is stored or mutated; every figure is computed on read.
package allowance

import (
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/usage"
)

// Result is the plan allowance for one pool in the current period.
type Result struct {
	PlanID      id.PlanID  `json:"plan_id"`
	FeatureKey  string     `json:"feature_key,omitempty"`
	Pool        usage.Pool `json:"pool"`
	Allowance   int64      `json:"allowance"`
	Used        int64      `json:"used"`
	Remaining   int64      `json:"remaining"`
	PeriodStart time.Time  `json:"period_start"`
	PeriodEnd   time.Time  `json:"period_end"`
}

// Period returns the billing period containing now, or ok=false when the
// subscription does not grant plan credits at now.
func Period(sub *subscription.Subscription, now time.Time) (start, end time.Time, ok bool) {
	if !sub.ActiveAt(now) {
		return time.Time{}, time.Time{}, false
	}
	start, end = sub.PeriodAt(now)
	return start, end, true
}

// Calculate returns the remaining plan credit usable for featureKey.
//
// When the plan has a positive allocation for featureKey, that allocation
// and its own usage are used in place of the general allowance. Otherwise
// the general monthly allowance applies, reduced by all general-pool usage
// in the period. A nil plan yields zero.
func Calculate(p *plan.Plan, start, end time.Time, totals usage.Totals, featureKey string) Result {
	r := Result{Pool: usage.PoolGeneral, PeriodStart: start, PeriodEnd: end}
	if p == nil {
		return r
	}
	r.PlanID = p.ID

	if alloc := p.Allocation(featureKey); alloc > 0 {
		r.Pool = usage.PoolFeature
		r.FeatureKey = featureKey
		r.Allowance = alloc
		r.Used = totals.Feature(featureKey)
	} else {
		r.Allowance = p.MonthlyCredits
		r.Used = totals.General
	}
	r.Remaining = max(0, r.Allowance-r.Used)
	return r
}

// Features returns a Result for every positive feature allocation of p.
func Features(p *plan.Plan, start, end time.Time, totals usage.Totals) map[string]Result {
	if p == nil {
		return nil
	}
	var out map[string]Result
	for _, a := range p.Allocations {
		if a.MonthlyCredits <= 0 {
			continue
		}
		if out == nil {
			out = make(map[string]Result, len(p.Allocations))
		}
		out[a.FeatureKey] = Calculate(p, start, end, totals, a.FeatureKey)
	}
	return out
}
