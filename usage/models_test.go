package usage_test

import (
	"testing"
	"time"

	"github.com/xraph/credits/usage"
)

func TestTotalsAdd(t *testing.T) {
	var totals usage.Totals
	records := []*usage.Record{
		{Amount: 3, Pool: usage.PoolGeneral},
		{Amount: 2, Pool: usage.PoolGeneral, FeatureKey: "booking"},
		{Amount: 4, Pool: usage.PoolFeature, FeatureKey: "ai_insight"},
		{Amount: 1, Pool: usage.PoolFeature, FeatureKey: "ai_insight"},
	}
	for _, r := range records {
		totals.Add(r)
	}

	if totals.General != 5 {
		t.Errorf("General = %d, want 5", totals.General)
	}
	if got := totals.Feature("ai_insight"); got != 5 {
		t.Errorf("Feature(ai_insight) = %d, want 5", got)
	}
	if got := totals.Feature("booking"); got != 0 {
		t.Errorf("Feature(booking) = %d, want 0", got)
	}
}

func TestRecordIn(t *testing.T) {
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	tests := []struct {
		at   time.Time
		want bool
	}{
		{from, true},
		{from.Add(-time.Nanosecond), false},
		{to.Add(-time.Nanosecond), true},
		{to, false},
	}
	for _, tt := range tests {
		r := &usage.Record{OccurredAt: tt.at}
		if got := r.In(from, to); got != tt.want {
			t.Errorf("In(%s) = %v, want %v", tt.at, got, tt.want)
		}
	}
}
