package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/id"
)

// GrantRequest describes one bonus grant.
type GrantRequest struct {
	Account     account.Ref
	Amount      int64
	ExpiresAt   time.Time
	SourceType  batch.SourceType
	FeatureKey  string
	Description string
}

// Grant creates one bonus batch with its full amount remaining. It is the
// only way bonus balance enters the system.
func (e *Engine) Grant(ctx context.Context, req GrantRequest) (*batch.Batch, error) {
	now := e.clock.Now()

	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: grant amount must be positive, got %d", ErrInvalidAmount, req.Amount)
	}
	if !req.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: expiry %s is not in the future", ErrInvalidAmount, req.ExpiresAt.Format(time.RFC3339))
	}
	if req.SourceType == "" {
		req.SourceType = batch.SourceManual
	}
	if !req.SourceType.Valid() {
		return nil, ValidationError{Field: "source_type", Message: fmt.Sprintf("unknown source type %q", req.SourceType)}
	}

	if _, err := e.store.GetAccount(ctx, req.Account); err != nil {
		return nil, err
	}

	b := &batch.Batch{
		ID:              id.NewBatchID(),
		Account:         req.Account,
		AmountOriginal:  req.Amount,
		AmountRemaining: req.Amount,
		FeatureKey:      req.FeatureKey,
		ExpiresAt:       req.ExpiresAt.UTC(),
		SourceType:      req.SourceType,
		Description:     req.Description,
		GrantedAt:       now,
	}
	if err := e.store.CreateBatch(ctx, b); err != nil {
		return nil, err
	}

	e.logger.Debug("credits granted",
		"account", req.Account.Key(),
		"batch_id", b.ID.String(),
		"amount", b.AmountOriginal,
		"source", b.SourceType,
		"expires_at", b.ExpiresAt,
	)
	e.plugins.EmitCreditsGranted(ctx, b)

	return b, nil
}

// GetBatch retrieves a batch by ID.
func (e *Engine) GetBatch(ctx context.Context, batchID id.BatchID) (*batch.Batch, error) {
	return e.store.GetBatch(ctx, batchID)
}

// ListBatches lists the account's batches in consumption order, including
// exhausted and expired ones unless opts.LiveAt is set.
func (e *Engine) ListBatches(ctx context.Context, ref account.Ref, opts batch.ListOpts) ([]*batch.Batch, error) {
	return e.store.ListBatches(ctx, ref, opts)
}
