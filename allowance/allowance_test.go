package allowance_test

import (
	"testing"
	"time"

	"github.com/xraph/credits/allowance"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/usage"
)

var (
	start = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end   = start.AddDate(0, 1, 0)
)

func TestCalculate(t *testing.T) {
	p := &plan.Plan{
		Name:           "Coach",
		MonthlyCredits: 50,
		Allocations:    []plan.Allocation{{FeatureKey: "ai_insight", MonthlyCredits: 10}},
	}
	totals := usage.Totals{General: 20, ByFeature: map[string]int64{"ai_insight": 4}}

	tests := []struct {
		name      string
		plan      *plan.Plan
		totals    usage.Totals
		feature   string
		wantPool  usage.Pool
		wantAllow int64
		wantRem   int64
	}{
		{"no plan", nil, totals, "", usage.PoolGeneral, 0, 0},
		{"no plan with feature", nil, totals, "ai_insight", usage.PoolGeneral, 0, 0},
		{"general", p, totals, "", usage.PoolGeneral, 50, 30},
		{"feature without allocation uses general", p, totals, "booking", usage.PoolGeneral, 50, 30},
		{"feature allocation replaces general", p, totals, "ai_insight", usage.PoolFeature, 10, 6},
		{"overdrawn clamps to zero", p, usage.Totals{General: 80}, "", usage.PoolGeneral, 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := allowance.Calculate(tt.plan, start, end, tt.totals, tt.feature)
			if got.Pool != tt.wantPool || got.Allowance != tt.wantAllow || got.Remaining != tt.wantRem {
				t.Errorf("Calculate() = pool %s allowance %d remaining %d, want %s/%d/%d",
					got.Pool, got.Allowance, got.Remaining, tt.wantPool, tt.wantAllow, tt.wantRem)
			}
		})
	}
}

func TestFeatures(t *testing.T) {
	p := &plan.Plan{
		MonthlyCredits: 50,
		Allocations: []plan.Allocation{
			{FeatureKey: "ai_insight", MonthlyCredits: 10},
			{FeatureKey: "disabled", MonthlyCredits: 0},
		},
	}
	got := allowance.Features(p, start, end, usage.Totals{ByFeature: map[string]int64{"ai_insight": 3}})
	if len(got) != 1 {
		t.Fatalf("Features() returned %d entries, want 1", len(got))
	}
	if r := got["ai_insight"]; r.Remaining != 7 || r.Pool != usage.PoolFeature {
		t.Errorf("ai_insight = %+v", r)
	}
	if allowance.Features(nil, start, end, usage.Totals{}) != nil {
		t.Error("nil plan should yield nil features")
	}
}

func TestPeriod(t *testing.T) {
	sub := &subscription.Subscription{Status: subscription.StatusActive, AnchorAt: start}

	s, e, ok := allowance.Period(sub, start.Add(36*time.Hour))
	if !ok || !s.Equal(start) || !e.Equal(end) {
		t.Errorf("Period() = [%s, %s) ok=%v", s, e, ok)
	}

	if _, _, ok := allowance.Period(nil, start); ok {
		t.Error("nil subscription should not be active")
	}

	sub.Status = subscription.StatusCanceled
	if _, _, ok := allowance.Period(sub, start.Add(time.Hour)); ok {
		t.Error("canceled subscription should not be active")
	}
}
