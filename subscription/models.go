package subscription

import (
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusCanceled Status = "canceled"
)

// Subscription attaches an account to a plan. Billing periods are monthly and
// anchored at AnchorAt; they are derived on read, never rolled by a job.
type Subscription struct {
	types.Entity
	ID         id.SubscriptionID `json:"id"`
	Account    account.Ref       `json:"account"`
	PlanID     id.PlanID         `json:"plan_id"`
	Status     Status            `json:"status"`
	AnchorAt   time.Time         `json:"anchor_at"`
	CancelAt   *time.Time        `json:"cancel_at,omitempty"`
	CanceledAt *time.Time        `json:"canceled_at,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ActiveAt reports whether the subscription grants plan credits at t.
func (s *Subscription) ActiveAt(t time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != StatusActive && s.Status != StatusTrialing {
		return false
	}
	if t.Before(s.AnchorAt) {
		return false
	}
	return s.CancelAt == nil || t.Before(*s.CancelAt)
}

// ActiveFrom reports whether the subscription grants plan credits at any
// instant at or after t.
func (s *Subscription) ActiveFrom(t time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != StatusActive && s.Status != StatusTrialing {
		return false
	}
	if s.CancelAt == nil {
		return true
	}
	return s.CancelAt.After(t) && s.CancelAt.After(s.AnchorAt)
}

// PeriodAt returns the billing period [start, end) containing t. Periods
// are contiguous calendar months counted from AnchorAt; a day-of-month that
// does not exist in a shorter month is clamped to that month's last day.
// For t before the anchor the first period is returned.
func (s *Subscription) PeriodAt(t time.Time) (start, end time.Time) {
	anchor := s.AnchorAt
	t = t.In(anchor.Location())

	k := (t.Year()-anchor.Year())*12 + int(t.Month()) - int(anchor.Month())
	if k < 0 {
		k = 0
	}
	for k > 0 && addMonths(anchor, k).After(t) {
		k--
	}
	for !addMonths(anchor, k+1).After(t) {
		k++
	}
	return addMonths(anchor, k), addMonths(anchor, k+1)
}

// addMonths adds n months to t, clamping the day to the target month.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(target.Year(), target.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
