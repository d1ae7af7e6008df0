package batch

import (
	"context"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
)

type Store interface {
	CreateBatch(ctx context.Context, b *Batch) error
	GetBatch(ctx context.Context, batchID id.BatchID) (*Batch, error)
	// ListBatches returns the account's batches in consumption order
	// (expires_at, granted_at, id).
	ListBatches(ctx context.Context, ref account.Ref, opts ListOpts) ([]*Batch, error)
}

// ListOpts filters batch listings. A non-zero LiveAt keeps only batches with
// a positive remaining balance that have not expired at that instant.
type ListOpts struct {
	LiveAt time.Time
}
