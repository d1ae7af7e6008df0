package plan_test

import (
	"errors"
	"testing"

	"github.com/xraph/credits/plan"
)

func TestAllocation(t *testing.T) {
	p := &plan.Plan{
		Name:           "Coach",
		MonthlyCredits: 100,
		Allocations: []plan.Allocation{
			{FeatureKey: "ai_insight", MonthlyCredits: 20},
			{FeatureKey: "booking", MonthlyCredits: 0},
		},
	}

	tests := []struct {
		feature string
		want    int64
	}{
		{"ai_insight", 20},
		{"booking", 0},
		{"unknown", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := p.Allocation(tt.feature); got != tt.want {
			t.Errorf("Allocation(%q) = %d, want %d", tt.feature, got, tt.want)
		}
	}

	var nilPlan *plan.Plan
	if got := nilPlan.Allocation("ai_insight"); got != 0 {
		t.Errorf("nil plan Allocation = %d, want 0", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		plan  plan.Plan
		field string
	}{
		{"ok", plan.Plan{Name: "Basic", MonthlyCredits: 10}, ""},
		{"missing name", plan.Plan{MonthlyCredits: 10}, "name"},
		{"negative credits", plan.Plan{Name: "x", MonthlyCredits: -1}, "monthly_credits"},
		{"empty allocation key", plan.Plan{Name: "x", Allocations: []plan.Allocation{{MonthlyCredits: 1}}}, "allocations"},
		{"duplicate allocation", plan.Plan{Name: "x", Allocations: []plan.Allocation{
			{FeatureKey: "a", MonthlyCredits: 1},
			{FeatureKey: "a", MonthlyCredits: 2},
		}}, "allocations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *plan.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}
