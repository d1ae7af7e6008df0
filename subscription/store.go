package subscription

import (
	"context"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
)

type Store interface {
	CreateSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	// GetActiveSubscription returns the subscription granting plan credits
	// to the account at the given instant.
	GetActiveSubscription(ctx context.Context, ref account.Ref, at time.Time) (*Subscription, error)
	// HasSubscriptionFrom reports whether any subscription of the account
	// grants, or will grant, plan credits at or after at.
	HasSubscriptionFrom(ctx context.Context, ref account.Ref, at time.Time) (bool, error)
	CancelSubscription(ctx context.Context, subID id.SubscriptionID, cancelAt time.Time, immediate bool) error
}
