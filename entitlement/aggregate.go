package entitlement

import "github.com/xraph/credits/id"

// Detail is one entitlement's contribution to an aggregate.
type Detail struct {
	EntitlementID id.EntitlementID `json:"entitlement_id"`
	EnrollmentID  string           `json:"enrollment_id"`
	FeatureKey    string           `json:"feature_key"`
	Total         int64            `json:"total"`
	Used          int64            `json:"used"`
	Remaining     int64            `json:"remaining"`
}

// Totals aggregates program entitlements.
type Totals struct {
	Total     int64            `json:"total"`
	Used      int64            `json:"used"`
	Remaining int64            `json:"remaining"`
	ByFeature map[string]int64 `json:"by_feature,omitempty"`
	Details   []Detail         `json:"details,omitempty"`
}

// Aggregate sums the active entitlements matching featureKey (all when
// empty). Exhausted entitlements are listed in Details but add nothing to
// Remaining.
func Aggregate(ents []*Entitlement, featureKey string) Totals {
	var t Totals
	for _, e := range ents {
		if !e.Active || !e.Matches(featureKey) {
			continue
		}
		rem := e.Remaining()
		t.Total += e.Total
		t.Used += e.Used
		t.Remaining += rem
		if rem > 0 {
			if t.ByFeature == nil {
				t.ByFeature = make(map[string]int64)
			}
			t.ByFeature[e.FeatureKey] += rem
		}
		t.Details = append(t.Details, Detail{
			EntitlementID: e.ID,
			EnrollmentID:  e.EnrollmentID,
			FeatureKey:    e.FeatureKey,
			Total:         e.Total,
			Used:          e.Used,
			Remaining:     rem,
		})
	}
	return t
}

// Eligible returns the active, non-exhausted entitlements matching
// featureKey in debit order. ents must already be oldest first.
func Eligible(ents []*Entitlement, featureKey string) []*Entitlement {
	out := make([]*Entitlement, 0, len(ents))
	for _, e := range ents {
		if e.Active && e.Matches(featureKey) && e.Remaining() > 0 {
			out = append(out, e)
		}
	}
	return out
}
