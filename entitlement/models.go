package entitlement

import (
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Entitlement is a feature-scoped credit pool granted by one paid enrollment.
// Used only grows, and only through consumption. An entitlement whose
// enrollment has ended is inert but retained.
type Entitlement struct {
	types.Entity
	ID           id.EntitlementID `json:"id"`
	Account      account.Ref      `json:"account"`
	EnrollmentID string           `json:"enrollment_id"`
	FeatureKey   string           `json:"feature_key"`
	Total        int64            `json:"total"`
	Used         int64            `json:"used"`
	Active       bool             `json:"active"`
	EndedAt      *time.Time       `json:"ended_at,omitempty"`
}

// Remaining returns max(0, Total-Used).
func (e *Entitlement) Remaining() int64 {
	return max(0, e.Total-e.Used)
}

// Matches reports whether the entitlement is usable for featureKey.
// An empty featureKey matches every entitlement.
func (e *Entitlement) Matches(featureKey string) bool {
	return featureKey == "" || e.FeatureKey == featureKey
}
