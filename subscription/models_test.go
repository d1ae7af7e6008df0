package subscription_test

import (
	"testing"
	"time"

	"github.com/xraph/credits/subscription"
)

func date(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestPeriodAt(t *testing.T) {
	sub := &subscription.Subscription{AnchorAt: date(2026, time.January, 31, 9)}

	tests := []struct {
		name      string
		at        time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"first period", date(2026, time.February, 10, 0), date(2026, time.January, 31, 9), date(2026, time.February, 28, 9)},
		{"exact anchor", date(2026, time.January, 31, 9), date(2026, time.January, 31, 9), date(2026, time.February, 28, 9)},
		{"clamped boundary", date(2026, time.February, 28, 9), date(2026, time.February, 28, 9), date(2026, time.March, 31, 9)},
		{"just before boundary", date(2026, time.March, 31, 8), date(2026, time.February, 28, 9), date(2026, time.March, 31, 9)},
		{"april", date(2026, time.April, 15, 0), date(2026, time.March, 31, 9), date(2026, time.April, 30, 9)},
		{"next year", date(2027, time.January, 31, 10), date(2027, time.January, 31, 9), date(2027, time.February, 28, 9)},
		{"before anchor", date(2025, time.December, 1, 0), date(2026, time.January, 31, 9), date(2026, time.February, 28, 9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := sub.PeriodAt(tt.at)
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Errorf("PeriodAt(%s) = [%s, %s), want [%s, %s)", tt.at, start, end, tt.wantStart, tt.wantEnd)
			}
			if !end.After(start) {
				t.Errorf("period end %s not after start %s", end, start)
			}
		})
	}
}

func TestPeriodsAreContiguous(t *testing.T) {
	sub := &subscription.Subscription{AnchorAt: date(2024, time.January, 30, 12)}
	_, end := sub.PeriodAt(sub.AnchorAt)
	for i := 0; i < 30; i++ {
		start, next := sub.PeriodAt(end)
		if !start.Equal(end) {
			t.Fatalf("period %d starts at %s, previous ended at %s", i, start, end)
		}
		end = next
	}
}

func TestActiveAt(t *testing.T) {
	anchor := date(2026, time.March, 1, 0)
	cancelAt := date(2026, time.April, 1, 0)

	tests := []struct {
		name string
		sub  *subscription.Subscription
		at   time.Time
		want bool
	}{
		{"nil", nil, anchor, false},
		{"active", &subscription.Subscription{Status: subscription.StatusActive, AnchorAt: anchor}, anchor.Add(time.Hour), true},
		{"trialing", &subscription.Subscription{Status: subscription.StatusTrialing, AnchorAt: anchor}, anchor, true},
		{"not started", &subscription.Subscription{Status: subscription.StatusActive, AnchorAt: anchor}, anchor.Add(-time.Second), false},
		{"canceled", &subscription.Subscription{Status: subscription.StatusCanceled, AnchorAt: anchor}, anchor.Add(time.Hour), false},
		{"before scheduled cancel", &subscription.Subscription{Status: subscription.StatusActive, AnchorAt: anchor, CancelAt: &cancelAt}, cancelAt.Add(-time.Second), true},
		{"after scheduled cancel", &subscription.Subscription{Status: subscription.StatusActive, AnchorAt: anchor, CancelAt: &cancelAt}, cancelAt, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sub.ActiveAt(tt.at); got != tt.want {
				t.Errorf("ActiveAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestActiveFrom(t *testing.T) {
	anchor := date(2026, time.March, 1, 0)
	cancelAt := date(2026, time.April, 1, 0)
	beforeAnchor := date(2026, time.February, 1, 0)

	tests := []struct {
		name string
		sub  *subscription.Subscription
		at   time.Time
		want bool
	}{
		{"open ended, earlier instant", &subscription.Subscription{Status: subscription.StatusActive, AnchorAt: anchor}, beforeAnchor, true},
		{"open ended, later instant", &subscription.Subscription{Status: subscription.StatusActive, AnchorAt: anchor}, cancelAt, true},
		{"scheduled cancel, before it", &subscription.Subscription{Status: subscription.StatusActive, AnchorAt: anchor, CancelAt: &cancelAt}, cancelAt.Add(-time.Second), true},
		{"scheduled cancel, at it", &subscription.Subscription{Status: subscription.StatusActive, AnchorAt: anchor, CancelAt: &cancelAt}, cancelAt, false},
		{"canceled before anchor", &subscription.Subscription{Status: subscription.StatusActive, AnchorAt: cancelAt, CancelAt: &anchor}, beforeAnchor, false},
		{"canceled status", &subscription.Subscription{Status: subscription.StatusCanceled, AnchorAt: anchor}, beforeAnchor, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sub.ActiveFrom(tt.at); got != tt.want {
				t.Errorf("ActiveFrom(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}
