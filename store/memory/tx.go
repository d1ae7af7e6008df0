package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

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

// View runs fn while holding the read lock, so every read sees the same
// committed state.
func (s *Store) View(ctx context.Context, _ account.Ref, fn func(ctx context.Context, r store.Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, snapshot{s})
}

// RunInAccountTx serializes units per account. Writes are staged and
// applied under the write lock after their guards are re-checked.
func (s *Store) RunInAccountTx(ctx context.Context, ref account.Ref, fn func(ctx context.Context, tx store.Tx) error) error {
	mu := s.accountLock(ref)
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{Store: s, entDebits: map[string]int64{}, entTouched: map[string]time.Time{}, batchDebits: map[string]int64{}}
	if err := fn(ctx, t); err != nil {
		return err
	}
	return s.commit(t)
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for entID, amt := range t.entDebits {
		e, ok := s.entitlements[entID]
		if !ok {
			return credits.ErrEntitlementNotFound
		}
		if !e.Active || e.Used+amt > e.Total {
			return fmt.Errorf("%w: entitlement %s", store.ErrConflict, entID)
		}
	}
	for batchID, amt := range t.batchDebits {
		b, ok := s.batches[batchID]
		if !ok {
			return credits.ErrBatchNotFound
		}
		if b.AmountRemaining < amt {
			return fmt.Errorf("%w: batch %s", store.ErrConflict, batchID)
		}
	}
	for _, txn := range t.txns {
		if _, exists := s.transactions[txn.ID.String()]; exists {
			return credits.ErrAlreadyExists
		}
		if txn.IdempotencyKey != "" {
			if _, taken := s.idempotency[idempotencyKey(txn.Account, txn.IdempotencyKey)]; taken {
				return fmt.Errorf("%w: idempotency key %q", store.ErrConflict, txn.IdempotencyKey)
			}
		}
	}

	for entID, amt := range t.entDebits {
		e := s.entitlements[entID]
		e.Used += amt
		e.Touch(t.entTouched[entID])
	}
	for batchID, amt := range t.batchDebits {
		s.batches[batchID].AmountRemaining -= amt
	}
	s.usage = append(s.usage, t.usage...)
	for _, txn := range t.txns {
		s.transactions[txn.ID.String()] = txn
		if txn.IdempotencyKey != "" {
			s.idempotency[idempotencyKey(txn.Account, txn.IdempotencyKey)] = txn.ID.String()
		}
	}
	return nil
}

// tx reads committed state through the embedded Store and stages writes.
type tx struct {
	*Store

	usage       []*usage.Record
	entDebits   map[string]int64
	entTouched  map[string]time.Time
	batchDebits map[string]int64
	txns        []*transaction.Transaction
}

func (t *tx) AppendUsage(_ context.Context, r *usage.Record) error {
	c := *r
	t.usage = append(t.usage, &c)
	return nil
}

func (t *tx) DebitEntitlement(ctx context.Context, entID id.EntitlementID, amount int64, at time.Time) error {
	if amount <= 0 {
		return credits.ErrInvalidAmount
	}
	if _, err := t.GetEntitlement(ctx, entID); err != nil {
		return err
	}
	t.entDebits[entID.String()] += amount
	t.entTouched[entID.String()] = at
	return nil
}

func (t *tx) DebitBatch(ctx context.Context, batchID id.BatchID, amount int64) error {
	if amount <= 0 {
		return credits.ErrInvalidAmount
	}
	if _, err := t.GetBatch(ctx, batchID); err != nil {
		return err
	}
	t.batchDebits[batchID.String()] += amount
	return nil
}

func (t *tx) CreateTransaction(_ context.Context, txn *transaction.Transaction) error {
	t.txns = append(t.txns, cloneTransaction(txn))
	return nil
}

// snapshot reads without locking; View holds the read lock for it.
type snapshot struct{ s *Store }

func (v snapshot) GetAccount(_ context.Context, ref account.Ref) (*account.Account, error) {
	return v.s.getAccount(ref)
}

func (v snapshot) GetActiveSubscription(_ context.Context, ref account.Ref, at time.Time) (*subscription.Subscription, error) {
	return v.s.getActiveSubscription(ref, at)
}

func (v snapshot) GetPlan(_ context.Context, planID id.PlanID) (*plan.Plan, error) {
	return v.s.getPlan(planID)
}

func (v snapshot) SumUsage(_ context.Context, ref account.Ref, from, to time.Time) (usage.Totals, error) {
	return v.s.sumUsage(ref, from, to), nil
}

func (v snapshot) ListEntitlements(_ context.Context, ref account.Ref, opts entitlement.ListOpts) ([]*entitlement.Entitlement, error) {
	return v.s.listEntitlements(ref, opts), nil
}

func (v snapshot) ListBatches(_ context.Context, ref account.Ref, opts batch.ListOpts) ([]*batch.Batch, error) {
	return v.s.listBatches(ref, opts), nil
}

func (v snapshot) GetTransactionByIdempotencyKey(_ context.Context, ref account.Ref, key string) (*transaction.Transaction, error) {
	return v.s.getTransactionByIdempotencyKey(ref, key)
}
