// Package usage holds the append-only records of plan credit consumption.
//
// Debiting the plan allowance is always an append here; records are never
// updated or deleted, so the allowance can be recomputed at any time by
// summing the records that fall inside a billing period.
package usage

import (
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
)

// Pool names the plan allowance a record drew from.
type Pool string

const (
	// PoolGeneral is the plan's general monthly allowance.
	PoolGeneral Pool = "general"
	// PoolFeature is a feature-specific plan allocation; FeatureKey names it.
	PoolFeature Pool = "feature"
)

// Record is one plan debit.
type Record struct {
	ID                id.UsageRecordID `json:"id"`
	Account           account.Ref      `json:"account"`
	Amount            int64            `json:"amount"`
	FeatureKey        string           `json:"feature_key,omitempty"`
	Pool              Pool             `json:"pool"`
	ActionType        string           `json:"action_type"`
	ActionReferenceID string           `json:"action_reference_id,omitempty"`
	TransactionID     id.TransactionID `json:"transaction_id"`
	OccurredAt        time.Time        `json:"occurred_at"`
}

// Totals is the usage summed over a period, split by pool.
type Totals struct {
	General   int64            `json:"general"`
	ByFeature map[string]int64 `json:"by_feature,omitempty"`
}

// Add folds r into the totals.
func (t *Totals) Add(r *Record) {
	switch r.Pool {
	case PoolFeature:
		if t.ByFeature == nil {
			t.ByFeature = make(map[string]int64)
		}
		t.ByFeature[r.FeatureKey] += r.Amount
	default:
		t.General += r.Amount
	}
}

// Feature returns the usage recorded against featureKey's allocation.
func (t Totals) Feature(featureKey string) int64 {
	return t.ByFeature[featureKey]
}

// In reports whether r occurred within [from, to).
func (r *Record) In(from, to time.Time) bool {
	return !r.OccurredAt.Before(from) && r.OccurredAt.Before(to)
}
