// Package store defines the persistence contract shared by every backend.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/usage"
)

// ErrConflict is returned when an account-scoped unit could not commit
// because another writer changed the same account. The whole unit may be
// retried.
var ErrConflict = errors.New("store: write conflict")

// Reader is the read side available inside View and RunInAccountTx.
type Reader interface {
	GetAccount(ctx context.Context, ref account.Ref) (*account.Account, error)
	GetActiveSubscription(ctx context.Context, ref account.Ref, at time.Time) (*subscription.Subscription, error)
	GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error)
	SumUsage(ctx context.Context, ref account.Ref, from, to time.Time) (usage.Totals, error)
	ListEntitlements(ctx context.Context, ref account.Ref, opts entitlement.ListOpts) ([]*entitlement.Entitlement, error)
	ListBatches(ctx context.Context, ref account.Ref, opts batch.ListOpts) ([]*batch.Batch, error)
	GetTransactionByIdempotencyKey(ctx context.Context, ref account.Ref, key string) (*transaction.Transaction, error)
}

// Tx is the write side of an account-scoped unit. Writes take effect
// together when the unit commits; if the callback returns an error none of
// them are applied.
type Tx interface {
	Reader

	// AppendUsage inserts a usage record.
	AppendUsage(ctx context.Context, r *usage.Record) error

	// DebitEntitlement adds amount to the entitlement's used counter and
	// stamps its update time with at. It fails with ErrConflict if that would
	// take used past total or the entitlement is no longer active.
	DebitEntitlement(ctx context.Context, entID id.EntitlementID, amount int64, at time.Time) error

	// DebitBatch subtracts amount from the batch's remaining balance. It
	// fails with ErrConflict if the balance is smaller than amount.
	DebitBatch(ctx context.Context, batchID id.BatchID, amount int64) error

	CreateTransaction(ctx context.Context, t *transaction.Transaction) error
}

// Store is the unified storage interface for all credit entities.
type Store interface {
	account.Store
	plan.Store
	subscription.Store
	usage.Store
	entitlement.Store
	batch.Store
	transaction.Store

	GetTransactionByIdempotencyKey(ctx context.Context, ref account.Ref, key string) (*transaction.Transaction, error)

	// View runs fn against a consistent read snapshot of the account.
	View(ctx context.Context, ref account.Ref, fn func(ctx context.Context, r Reader) error) error

	// RunInAccountTx runs fn as one atomic unit serialized against every
	// other unit for the same account. Units for different accounts do not
	// block each other.
	RunInAccountTx(ctx context.Context, ref account.Ref, fn func(ctx context.Context, tx Tx) error) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
