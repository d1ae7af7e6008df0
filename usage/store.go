package usage

import (
	"context"
	"time"

	"github.com/xraph/credits/account"
)

type Store interface {
	// SumUsage totals the account's records with occurred_at in [from, to).
	SumUsage(ctx context.Context, ref account.Ref, from, to time.Time) (Totals, error)
	ListUsage(ctx context.Context, ref account.Ref, opts ListOpts) ([]*Record, error)
}

// ListOpts filters usage listings. Zero times are unbounded.
type ListOpts struct {
	From  time.Time
	To    time.Time
	Limit int
}
