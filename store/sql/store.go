// Package sqlstore implements store.Store on gorm for PostgreSQL and SQLite.
//
// Account-scoped units run in one database transaction. On PostgreSQL the
// transaction first takes a transaction-scoped advisory lock on the account
// and reads balance rows FOR UPDATE; on SQLite a process-local per-account
// mutex plays the same role. Debits are guarded UPDATEs, so a unit that
// would overdraw a row fails with store.ErrConflict instead of committing.
package sqlstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
)

var _ store.Store = (*Store)(nil)

// Store is a gorm-backed store.
type Store struct {
	db      *gorm.DB
	dialect string

	// per-account unit locks, used when the database has no row locking
	accountLocks sync.Map
}

// New wraps an open gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db, dialect: db.Dialector.Name()}
}

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) postgres() bool { return s.dialect == DriverPostgres }

func (s *Store) reader() reader { return reader{db: s.db} }

// Migrate creates or updates every credits table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	return created(s.db.WithContext(ctx).Create(toAccountModel(a)).Error)
}

func (s *Store) GetAccount(ctx context.Context, ref account.Ref) (*account.Account, error) {
	return s.reader().GetAccount(ctx, ref)
}

// ──────────────────────────────────────────────────
// Plans
// ──────────────────────────────────────────────────

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	return created(s.db.WithContext(ctx).Create(toPlanModel(p)).Error)
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	return s.reader().GetPlan(ctx, planID)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	q := s.db.WithContext(ctx).Model(&planModel{})
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	q = paginate(q.Order("created_at ASC").Order("id ASC"), opts.Offset, opts.Limit)

	var models []planModel
	if err := q.Find(&models).Error; err != nil {
		return nil, classify(err)
	}
	plans := make([]*plan.Plan, 0, len(models))
	for i := range models {
		p, err := fromPlanModel(&models[i])
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func (s *Store) ArchivePlan(ctx context.Context, planID id.PlanID) error {
	res := s.db.WithContext(ctx).Model(&planModel{}).
		Where("id = ?", planID.String()).
		Updates(map[string]any{"status": string(plan.StatusArchived), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return credits.ErrPlanNotFound
	}
	return nil
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	return created(s.db.WithContext(ctx).Create(toSubscriptionModel(sub)).Error)
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.db.WithContext(ctx).Where("id = ?", subID.String()).First(&m).Error
	if err != nil {
		return nil, notFound(err, credits.ErrSubscriptionNotFound)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) GetActiveSubscription(ctx context.Context, ref account.Ref, at time.Time) (*subscription.Subscription, error) {
	return s.reader().GetActiveSubscription(ctx, ref, at)
}

func (s *Store) HasSubscriptionFrom(ctx context.Context, ref account.Ref, at time.Time) (bool, error) {
	at = at.UTC()
	var n int64
	err := s.db.WithContext(ctx).Model(&subscriptionModel{}).
		Where("account_key = ?", ref.Key()).
		Where("status IN ?", []string{string(subscription.StatusActive), string(subscription.StatusTrialing)}).
		Where("cancel_at IS NULL OR (cancel_at > ? AND cancel_at > anchor_at)", at).
		Count(&n).Error
	if err != nil {
		return false, classify(err)
	}
	return n > 0, nil
}

func (s *Store) CancelSubscription(ctx context.Context, subID id.SubscriptionID, cancelAt time.Time, immediate bool) error {
	cancelAt = cancelAt.UTC()
	updates := map[string]any{"cancel_at": cancelAt}
	if immediate {
		updates["status"] = string(subscription.StatusCanceled)
		updates["canceled_at"] = cancelAt
		updates["updated_at"] = cancelAt
	}
	res := s.db.WithContext(ctx).Model(&subscriptionModel{}).
		Where("id = ?", subID.String()).
		Updates(updates)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return credits.ErrSubscriptionNotFound
	}
	return nil
}

func paginate(q *gorm.DB, offset, limit int) *gorm.DB {
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}
