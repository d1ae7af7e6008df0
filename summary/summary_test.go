package summary_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/summary"
	"github.com/xraph/credits/usage"
)

var (
	now = time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	ref = account.User("u_1")
)

func fixture() summary.Inputs {
	p := &plan.Plan{
		ID:             id.NewPlanID(),
		Name:           "Pro",
		MonthlyCredits: 100,
		Allocations:    []plan.Allocation{{FeatureKey: "ai_insight", MonthlyCredits: 20}},
	}
	totals := usage.Totals{General: 30, ByFeature: map[string]int64{"ai_insight": 5}}

	return summary.Inputs{
		Account:     ref,
		Now:         now,
		Plan:        p,
		PeriodStart: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Usage:       totals,
		Entitlements: []*entitlement.Entitlement{
			{ID: id.NewEntitlementID(), EnrollmentID: "enr_1", FeatureKey: "coaching", Total: 10, Used: 4, Active: true},
			{ID: id.NewEntitlementID(), EnrollmentID: "enr_2", FeatureKey: "coaching", Total: 6, Used: 0, Active: false},
		},
		Batches: []*batch.Batch{
			{ID: id.NewBatchID(), AmountOriginal: 10, AmountRemaining: 10, ExpiresAt: now.Add(30 * 24 * time.Hour), GrantedAt: now.Add(-time.Hour)},
			{ID: id.NewBatchID(), AmountOriginal: 5, AmountRemaining: 3, FeatureKey: "ai_insight", ExpiresAt: now.Add(2 * 24 * time.Hour), GrantedAt: now.Add(-time.Hour)},
			{ID: id.NewBatchID(), AmountOriginal: 8, AmountRemaining: 8, ExpiresAt: now.Add(-time.Minute), GrantedAt: now.Add(-48 * time.Hour)},
		},
	}
}

func TestBuild(t *testing.T) {
	s := summary.Build(fixture())

	if !s.Plan.Active {
		t.Fatal("plan should be active")
	}
	if s.Plan.Remaining != 70 {
		t.Errorf("plan remaining = %d, want 70", s.Plan.Remaining)
	}
	if got := s.Plan.Features["ai_insight"].Remaining; got != 15 {
		t.Errorf("ai_insight allocation remaining = %d, want 15", got)
	}
	if s.Program.Remaining != 6 {
		t.Errorf("program remaining = %d, want 6", s.Program.Remaining)
	}
	if s.Bonus.Remaining != 13 {
		t.Errorf("bonus remaining = %d, want 13 (expired batch excluded)", s.Bonus.Remaining)
	}
	if len(s.Bonus.Batches) != 2 || s.Bonus.Batches[0].FeatureKey != "ai_insight" {
		t.Errorf("bonus batches not in expiry order: %+v", s.Bonus.Batches)
	}
	if s.TotalAvailable != 70+6+13 {
		t.Errorf("total available = %d, want %d", s.TotalAvailable, 70+6+13)
	}
	if s.ExpiringSoon != 3 {
		t.Errorf("expiring soon = %d, want 3", s.ExpiringSoon)
	}
	if s.EarliestExpiry == nil || !s.EarliestExpiry.Equal(now.Add(2*24*time.Hour)) {
		t.Errorf("earliest expiry = %v", s.EarliestExpiry)
	}
}

func TestBuildWithoutPlan(t *testing.T) {
	in := fixture()
	in.Plan = nil
	s := summary.Build(in)

	if s.Plan.Active || s.Plan.Remaining != 0 {
		t.Errorf("plan = %+v, want inactive with zero remaining", s.Plan)
	}
	if s.TotalAvailable != s.Program.Remaining+s.Bonus.Remaining {
		t.Errorf("total available = %d, want program + bonus", s.TotalAvailable)
	}
}

func TestBuildEmpty(t *testing.T) {
	s := summary.Build(summary.Inputs{Account: ref, Now: now})
	if s.TotalAvailable != 0 || s.ExpiringSoon != 0 || s.EarliestExpiry != nil {
		t.Errorf("empty summary = %+v", s)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	in := fixture()
	if a, b := summary.Build(in), summary.Build(in); !reflect.DeepEqual(a, b) {
		t.Errorf("two builds over the same facts differ:\n%+v\n%+v", a, b)
	}
}

func TestFeature(t *testing.T) {
	s := summary.Build(fixture())

	tests := []struct {
		feature string
		plan    int64
		pool    usage.Pool
		program int64
		bonus   int64
		wantSum int64
	}{
		{"ai_insight", 15, usage.PoolFeature, 0, 13, 28},
		{"coaching", 70, usage.PoolGeneral, 6, 10, 86},
		{"booking", 70, usage.PoolGeneral, 0, 10, 80},
		{"", 70, usage.PoolGeneral, 6, 13, 89},
	}
	for _, tt := range tests {
		t.Run(tt.feature, func(t *testing.T) {
			fc := s.Feature(tt.feature)
			if fc.Plan != tt.plan || fc.PlanPool != tt.pool || fc.Program != tt.program || fc.Bonus != tt.bonus {
				t.Errorf("Feature(%q) = %+v", tt.feature, fc)
			}
			if fc.Available != tt.wantSum {
				t.Errorf("Feature(%q).Available = %d, want %d", tt.feature, fc.Available, tt.wantSum)
			}
		})
	}
}

func TestExpiringWindowBoundary(t *testing.T) {
	in := fixture()
	in.ExpiringWindow = 24 * time.Hour
	s := summary.Build(in)
	if s.ExpiringSoon != 0 {
		t.Errorf("expiring soon with 1d window = %d, want 0", s.ExpiringSoon)
	}

	in.ExpiringWindow = 2 * 24 * time.Hour
	s = summary.Build(in)
	if s.ExpiringSoon != 3 {
		t.Errorf("batch expiring exactly at the horizon should count, got %d", s.ExpiringSoon)
	}
}
