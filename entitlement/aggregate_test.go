package entitlement_test

import (
	"testing"

	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
)

func ent(feature string, total, used int64, active bool) *entitlement.Entitlement {
	return &entitlement.Entitlement{
		ID:           id.NewEntitlementID(),
		EnrollmentID: "enr-" + feature,
		FeatureKey:   feature,
		Total:        total,
		Used:         used,
		Active:       active,
	}
}

func TestAggregate(t *testing.T) {
	ents := []*entitlement.Entitlement{
		ent("coaching", 10, 4, true),
		ent("coaching", 5, 5, true),
		ent("ai_insight", 8, 0, true),
		ent("coaching", 20, 0, false),
	}

	tests := []struct {
		name          string
		feature       string
		wantTotal     int64
		wantUsed      int64
		wantRemaining int64
		wantDetails   int
	}{
		{"all features", "", 23, 9, 14, 3},
		{"coaching", "coaching", 15, 9, 6, 2},
		{"ai_insight", "ai_insight", 8, 0, 8, 1},
		{"no match", "booking", 0, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := entitlement.Aggregate(ents, tt.feature)
			if got.Total != tt.wantTotal || got.Used != tt.wantUsed || got.Remaining != tt.wantRemaining {
				t.Errorf("Aggregate(%q) = total %d used %d remaining %d, want %d/%d/%d",
					tt.feature, got.Total, got.Used, got.Remaining, tt.wantTotal, tt.wantUsed, tt.wantRemaining)
			}
			if len(got.Details) != tt.wantDetails {
				t.Errorf("details = %d, want %d", len(got.Details), tt.wantDetails)
			}
		})
	}
}

func TestAggregateExhaustedStillListed(t *testing.T) {
	got := entitlement.Aggregate([]*entitlement.Entitlement{ent("coaching", 5, 7, true)}, "")
	if got.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", got.Remaining)
	}
	if len(got.Details) != 1 || got.Details[0].Remaining != 0 {
		t.Errorf("expected one zero-remaining detail, got %+v", got.Details)
	}
	if _, ok := got.ByFeature["coaching"]; ok {
		t.Error("exhausted entitlement should not appear in ByFeature")
	}
}

func TestEligible(t *testing.T) {
	first := ent("coaching", 3, 0, true)
	exhausted := ent("coaching", 3, 3, true)
	inactive := ent("coaching", 3, 0, false)
	other := ent("ai_insight", 3, 0, true)
	second := ent("coaching", 1, 0, true)

	got := entitlement.Eligible([]*entitlement.Entitlement{first, exhausted, inactive, other, second}, "coaching")
	if len(got) != 2 || got[0] != first || got[1] != second {
		t.Fatalf("Eligible returned %v", got)
	}

	all := entitlement.Eligible([]*entitlement.Entitlement{first, exhausted, other}, "")
	if len(all) != 2 {
		t.Fatalf("Eligible(\"\") returned %d entitlements, want 2", len(all))
	}
}
