package entitlement

import (
	"context"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
)

type Store interface {
	CreateEntitlement(ctx context.Context, e *Entitlement) error
	GetEntitlement(ctx context.Context, entID id.EntitlementID) (*Entitlement, error)
	// ListEntitlements returns entitlements oldest first (created_at, then id).
	ListEntitlements(ctx context.Context, ref account.Ref, opts ListOpts) ([]*Entitlement, error)
	// EndEnrollment marks every entitlement of the enrollment inert and
	// returns how many were changed.
	EndEnrollment(ctx context.Context, ref account.Ref, enrollmentID string, at time.Time) (int, error)
}

type ListOpts struct {
	ActiveOnly bool
	FeatureKey string
}
