package sqlstore

import (
	"context"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/usage"
)

// ──────────────────────────────────────────────────
// Usage records
// ──────────────────────────────────────────────────

func (s *Store) SumUsage(ctx context.Context, ref account.Ref, from, to time.Time) (usage.Totals, error) {
	return s.reader().SumUsage(ctx, ref, from, to)
}

func (s *Store) ListUsage(ctx context.Context, ref account.Ref, opts usage.ListOpts) ([]*usage.Record, error) {
	q := s.db.WithContext(ctx).Where("account_key = ?", ref.Key())
	if !opts.From.IsZero() {
		q = q.Where("occurred_at >= ?", opts.From.UTC())
	}
	if !opts.To.IsZero() {
		q = q.Where("occurred_at < ?", opts.To.UTC())
	}
	q = paginate(q.Order("occurred_at ASC").Order("id ASC"), 0, opts.Limit)

	var models []usageModel
	if err := q.Find(&models).Error; err != nil {
		return nil, classify(err)
	}
	records := make([]*usage.Record, 0, len(models))
	for i := range models {
		r, err := fromUsageModel(&models[i])
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// ──────────────────────────────────────────────────
// Program entitlements
// ──────────────────────────────────────────────────

func (s *Store) CreateEntitlement(ctx context.Context, e *entitlement.Entitlement) error {
	return created(s.db.WithContext(ctx).Create(toEntitlementModel(e)).Error)
}

func (s *Store) GetEntitlement(ctx context.Context, entID id.EntitlementID) (*entitlement.Entitlement, error) {
	return s.reader().GetEntitlement(ctx, entID)
}

func (s *Store) ListEntitlements(ctx context.Context, ref account.Ref, opts entitlement.ListOpts) ([]*entitlement.Entitlement, error) {
	return s.reader().ListEntitlements(ctx, ref, opts)
}

func (s *Store) EndEnrollment(ctx context.Context, ref account.Ref, enrollmentID string, at time.Time) (int, error) {
	at = at.UTC()
	res := s.db.WithContext(ctx).Model(&entitlementModel{}).
		Where("account_key = ? AND enrollment_id = ? AND active = ?", ref.Key(), enrollmentID, true).
		Updates(map[string]any{"active": false, "ended_at": at, "updated_at": at})
	if res.Error != nil {
		return 0, classify(res.Error)
	}
	return int(res.RowsAffected), nil
}

// ──────────────────────────────────────────────────
// Bonus batches
// ──────────────────────────────────────────────────

func (s *Store) CreateBatch(ctx context.Context, b *batch.Batch) error {
	return created(s.db.WithContext(ctx).Create(toBatchModel(b)).Error)
}

func (s *Store) GetBatch(ctx context.Context, batchID id.BatchID) (*batch.Batch, error) {
	return s.reader().GetBatch(ctx, batchID)
}

func (s *Store) ListBatches(ctx context.Context, ref account.Ref, opts batch.ListOpts) ([]*batch.Batch, error) {
	return s.reader().ListBatches(ctx, ref, opts)
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	var m transactionModel
	err := s.db.WithContext(ctx).Where("id = ?", txnID.String()).First(&m).Error
	if err != nil {
		return nil, notFound(err, credits.ErrTransactionNotFound)
	}
	return fromTransactionModel(&m)
}

func (s *Store) ListTransactions(ctx context.Context, ref account.Ref, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	q := s.db.WithContext(ctx).Where("account_key = ?", ref.Key()).
		Order("occurred_at DESC").Order("id DESC")
	q = paginate(q, opts.Offset, opts.Limit)

	var models []transactionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, classify(err)
	}
	txns := make([]*transaction.Transaction, 0, len(models))
	for i := range models {
		t, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, nil
}

func (s *Store) GetTransactionByIdempotencyKey(ctx context.Context, ref account.Ref, key string) (*transaction.Transaction, error) {
	return s.reader().GetTransactionByIdempotencyKey(ctx, ref, key)
}
