package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/usage"
)

func (s *Store) accountLock(ref account.Ref) *sync.Mutex {
	v, _ := s.accountLocks.LoadOrStore(ref.Key(), &sync.Mutex{})
	return v.(*sync.Mutex) //nolint:errcheck // only *sync.Mutex is stored
}

// View runs fn inside a read-only transaction. On PostgreSQL the
// transaction is REPEATABLE READ so every read sees one snapshot.
func (s *Store) View(ctx context.Context, _ account.Ref, fn func(ctx context.Context, r store.Reader) error) error {
	var opts []*sql.TxOptions
	if s.postgres() {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	}
	return classify(s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(ctx, reader{db: gtx})
	}, opts...))
}

// RunInAccountTx runs fn in one database transaction serialized per account.
func (s *Store) RunInAccountTx(ctx context.Context, ref account.Ref, fn func(ctx context.Context, tx store.Tx) error) error {
	if !s.postgres() {
		mu := s.accountLock(ref)
		mu.Lock()
		defer mu.Unlock()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		if s.postgres() {
			if err := gtx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", ref.Key()).Error; err != nil {
				return err
			}
		}
		return fn(ctx, &tx{reader: reader{db: gtx, lockRows: s.postgres()}})
	})
	return classify(err)
}

// tx is the write side of a unit; every statement runs on the unit's
// database transaction.
type tx struct {
	reader
}

func (t *tx) AppendUsage(ctx context.Context, r *usage.Record) error {
	return classify(t.db.WithContext(ctx).Create(toUsageModel(r)).Error)
}

func (t *tx) DebitEntitlement(ctx context.Context, entID id.EntitlementID, amount int64, at time.Time) error {
	if amount <= 0 {
		return credits.ErrInvalidAmount
	}
	res := t.db.WithContext(ctx).Model(&entitlementModel{}).
		Where("id = ? AND active = ? AND used + ? <= total", entID.String(), true, amount).
		Updates(map[string]any{
			"used":       gorm.Expr("used + ?", amount),
			"updated_at": at.UTC(),
		})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := t.GetEntitlement(ctx, entID); err != nil {
			return err
		}
		return fmt.Errorf("%w: entitlement %s", store.ErrConflict, entID)
	}
	return nil
}

func (t *tx) DebitBatch(ctx context.Context, batchID id.BatchID, amount int64) error {
	if amount <= 0 {
		return credits.ErrInvalidAmount
	}
	res := t.db.WithContext(ctx).Model(&batchModel{}).
		Where("id = ? AND amount_remaining >= ?", batchID.String(), amount).
		Update("amount_remaining", gorm.Expr("amount_remaining - ?", amount))
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := t.GetBatch(ctx, batchID); err != nil {
			return err
		}
		return fmt.Errorf("%w: batch %s", store.ErrConflict, batchID)
	}
	return nil
}

// CreateTransaction inserts the record. A duplicate idempotency key means a
// concurrent unit already committed the same request.
func (t *tx) CreateTransaction(ctx context.Context, txn *transaction.Transaction) error {
	err := t.db.WithContext(ctx).Create(toTransactionModel(txn)).Error
	if err != nil && isDuplicate(err) {
		return fmt.Errorf("%w: idempotency key %q", store.ErrConflict, txn.IdempotencyKey)
	}
	return classify(err)
}

// ──────────────────────────────────────────────────
// Reader
// ──────────────────────────────────────────────────

// reader implements store.Reader on a gorm handle, which is either the
// pool or an open transaction. lockRows takes row locks on balance rows.
type reader struct {
	db       *gorm.DB
	lockRows bool
}

func (r reader) GetAccount(ctx context.Context, ref account.Ref) (*account.Account, error) {
	var m accountModel
	err := r.db.WithContext(ctx).Where("account_key = ?", ref.Key()).First(&m).Error
	if err != nil {
		return nil, notFound(err, credits.ErrAccountNotFound)
	}
	return fromAccountModel(&m), nil
}

func (r reader) GetActiveSubscription(ctx context.Context, ref account.Ref, at time.Time) (*subscription.Subscription, error) {
	at = at.UTC()
	var m subscriptionModel
	err := r.db.WithContext(ctx).
		Where("account_key = ?", ref.Key()).
		Where("status IN ?", []string{string(subscription.StatusActive), string(subscription.StatusTrialing)}).
		Where("anchor_at <= ?", at).
		Where("cancel_at IS NULL OR cancel_at > ?", at).
		Order("anchor_at DESC").
		First(&m).Error
	if err != nil {
		return nil, notFound(err, credits.ErrNoActiveSubscription)
	}
	return fromSubscriptionModel(&m)
}

func (r reader) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	var m planModel
	err := r.db.WithContext(ctx).Where("id = ?", planID.String()).First(&m).Error
	if err != nil {
		return nil, notFound(err, credits.ErrPlanNotFound)
	}
	return fromPlanModel(&m)
}

type usageSum struct {
	Pool       string
	FeatureKey string
	Amount     int64
}

func (r reader) SumUsage(ctx context.Context, ref account.Ref, from, to time.Time) (usage.Totals, error) {
	var rows []usageSum
	err := r.db.WithContext(ctx).Model(&usageModel{}).
		Select("pool, feature_key, SUM(amount) AS amount").
		Where("account_key = ? AND occurred_at >= ? AND occurred_at < ?", ref.Key(), from.UTC(), to.UTC()).
		Group("pool, feature_key").
		Scan(&rows).Error
	if err != nil {
		return usage.Totals{}, classify(err)
	}

	var totals usage.Totals
	for _, row := range rows {
		totals.Add(&usage.Record{Pool: usage.Pool(row.Pool), FeatureKey: row.FeatureKey, Amount: row.Amount})
	}
	return totals, nil
}

func (r reader) GetEntitlement(ctx context.Context, entID id.EntitlementID) (*entitlement.Entitlement, error) {
	var m entitlementModel
	err := r.db.WithContext(ctx).Where("id = ?", entID.String()).First(&m).Error
	if err != nil {
		return nil, notFound(err, credits.ErrEntitlementNotFound)
	}
	return fromEntitlementModel(&m)
}

func (r reader) ListEntitlements(ctx context.Context, ref account.Ref, opts entitlement.ListOpts) ([]*entitlement.Entitlement, error) {
	q := r.db.WithContext(ctx).Where("account_key = ?", ref.Key())
	if opts.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if opts.FeatureKey != "" {
		q = q.Where("feature_key = ?", opts.FeatureKey)
	}
	if r.lockRows {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}

	var models []entitlementModel
	if err := q.Order("created_at ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, classify(err)
	}
	ents := make([]*entitlement.Entitlement, 0, len(models))
	for i := range models {
		e, err := fromEntitlementModel(&models[i])
		if err != nil {
			return nil, err
		}
		ents = append(ents, e)
	}
	return ents, nil
}

func (r reader) GetBatch(ctx context.Context, batchID id.BatchID) (*batch.Batch, error) {
	var m batchModel
	err := r.db.WithContext(ctx).Where("id = ?", batchID.String()).First(&m).Error
	if err != nil {
		return nil, notFound(err, credits.ErrBatchNotFound)
	}
	return fromBatchModel(&m)
}

func (r reader) ListBatches(ctx context.Context, ref account.Ref, opts batch.ListOpts) ([]*batch.Batch, error) {
	q := r.db.WithContext(ctx).Where("account_key = ?", ref.Key())
	if !opts.LiveAt.IsZero() {
		q = q.Where("amount_remaining > 0 AND expires_at > ?", opts.LiveAt.UTC())
	}
	if r.lockRows {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}

	var models []batchModel
	if err := q.Order("expires_at ASC").Order("granted_at ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, classify(err)
	}
	bs := make([]*batch.Batch, 0, len(models))
	for i := range models {
		b, err := fromBatchModel(&models[i])
		if err != nil {
			return nil, err
		}
		bs = append(bs, b)
	}
	batch.Sort(bs)
	return bs, nil
}

func (r reader) GetTransactionByIdempotencyKey(ctx context.Context, ref account.Ref, key string) (*transaction.Transaction, error) {
	var m transactionModel
	err := r.db.WithContext(ctx).
		Where("account_key = ? AND idempotency_key = ?", ref.Key(), key).
		First(&m).Error
	if err != nil {
		return nil, notFound(err, credits.ErrTransactionNotFound)
	}
	return fromTransactionModel(&m)
}
