// Package storetest is a conformance suite run against every store backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/types"
	"github.com/xraph/credits/usage"
)

// Now is the reference instant used by every fixture.
var Now = time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)

// Run executes the suite. newStore must return an empty, migrated store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Accounts", testAccounts},
		{"Plans", testPlans},
		{"Subscriptions", testSubscriptions},
		{"SubscriptionOverlap", testSubscriptionOverlap},
		{"Entitlements", testEntitlements},
		{"Batches", testBatches},
		{"UnitCommits", testUnitCommits},
		{"UnitRollsBack", testUnitRollsBack},
		{"DebitGuards", testDebitGuards},
		{"View", testView},
		{"ConcurrentDebits", testConcurrentDebits},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func seedAccount(t *testing.T, s store.Store, ref account.Ref) {
	t.Helper()
	require.NoError(t, s.CreateAccount(context.Background(), &account.Account{
		Entity:      types.NewEntityAt(Now),
		Ref:         ref,
		DisplayName: ref.ID,
	}))
}

func seedBatch(t *testing.T, s store.Store, ref account.Ref, amount int64, expiresIn time.Duration) *batch.Batch {
	t.Helper()
	b := &batch.Batch{
		ID:              id.NewBatchID(),
		Account:         ref,
		AmountOriginal:  amount,
		AmountRemaining: amount,
		ExpiresAt:       Now.Add(expiresIn),
		SourceType:      batch.SourceManual,
		GrantedAt:       Now,
	}
	require.NoError(t, s.CreateBatch(context.Background(), b))
	return b
}

func seedEntitlement(t *testing.T, s store.Store, ref account.Ref, enrollment, feature string, total int64, created time.Time) *entitlement.Entitlement {
	t.Helper()
	e := &entitlement.Entitlement{
		Entity:       types.NewEntityAt(created),
		ID:           id.NewEntitlementID(),
		Account:      ref,
		EnrollmentID: enrollment,
		FeatureKey:   feature,
		Total:        total,
		Active:       true,
	}
	require.NoError(t, s.CreateEntitlement(context.Background(), e))
	return e
}

func testAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	ref := account.Organization("org_1")

	_, err := s.GetAccount(ctx, ref)
	assert.ErrorIs(t, err, credits.ErrAccountNotFound)

	seedAccount(t, s, ref)
	got, err := s.GetAccount(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, ref, got.Ref)

	err = s.CreateAccount(ctx, &account.Account{Entity: types.NewEntityAt(Now), Ref: ref})
	assert.ErrorIs(t, err, credits.ErrAlreadyExists)
}

func testPlans(t *testing.T, s store.Store) {
	ctx := context.Background()

	basic := &plan.Plan{Entity: types.NewEntityAt(Now), ID: id.NewPlanID(), Name: "Basic", Slug: "basic", Status: plan.StatusActive, MonthlyCredits: 50}
	pro := &plan.Plan{
		Entity: types.NewEntityAt(Now.Add(time.Second)), ID: id.NewPlanID(), Name: "Pro", Slug: "pro", Status: plan.StatusActive,
		MonthlyCredits: 100,
		Allocations:    []plan.Allocation{{FeatureKey: "ai_insight", MonthlyCredits: 20}},
	}
	require.NoError(t, s.CreatePlan(ctx, basic))
	require.NoError(t, s.CreatePlan(ctx, pro))

	got, err := s.GetPlan(ctx, pro.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.Allocation("ai_insight"))

	require.NoError(t, s.ArchivePlan(ctx, basic.ID))
	active, err := s.ListPlans(ctx, plan.ListOpts{Status: plan.StatusActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, pro.ID.String(), active[0].ID.String())

	all, err := s.ListPlans(ctx, plan.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "pro", all[0].Slug)

	_, err = s.GetPlan(ctx, id.NewPlanID())
	assert.ErrorIs(t, err, credits.ErrPlanNotFound)
	assert.ErrorIs(t, s.ArchivePlan(ctx, id.NewPlanID()), credits.ErrPlanNotFound)
}

func testSubscriptions(t *testing.T, s store.Store) {
	ctx := context.Background()
	ref := account.User("u_sub")
	seedAccount(t, s, ref)

	_, err := s.GetActiveSubscription(ctx, ref, Now)
	assert.ErrorIs(t, err, credits.ErrNoActiveSubscription)
	assert.True(t, credits.IsNotFound(err))

	sub := &subscription.Subscription{
		Entity:   types.NewEntityAt(Now),
		ID:       id.NewSubscriptionID(),
		Account:  ref,
		PlanID:   id.NewPlanID(),
		Status:   subscription.StatusActive,
		AnchorAt: Now.Add(-24 * time.Hour),
	}
	require.NoError(t, s.CreateSubscription(ctx, sub))

	got, err := s.GetActiveSubscription(ctx, ref, Now)
	require.NoError(t, err)
	assert.Equal(t, sub.ID.String(), got.ID.String())
	assert.True(t, got.AnchorAt.Equal(sub.AnchorAt))

	_, err = s.GetActiveSubscription(ctx, ref, Now.Add(-48*time.Hour))
	assert.ErrorIs(t, err, credits.ErrNoActiveSubscription)

	end := Now.Add(5 * 24 * time.Hour)
	require.NoError(t, s.CancelSubscription(ctx, sub.ID, end, false))
	_, err = s.GetActiveSubscription(ctx, ref, Now)
	require.NoError(t, err, "scheduled cancellation keeps the subscription active until it takes effect")
	_, err = s.GetActiveSubscription(ctx, ref, end)
	assert.ErrorIs(t, err, credits.ErrNoActiveSubscription)

	other := &subscription.Subscription{
		Entity: types.NewEntityAt(Now), ID: id.NewSubscriptionID(), Account: ref,
		PlanID: id.NewPlanID(), Status: subscription.StatusActive, AnchorAt: end,
	}
	require.NoError(t, s.CreateSubscription(ctx, other))
	require.NoError(t, s.CancelSubscription(ctx, other.ID, end, true))
	canceled, err := s.GetSubscription(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, canceled.Status)
	require.NotNil(t, canceled.CanceledAt)

	assert.ErrorIs(t, s.CancelSubscription(ctx, id.NewSubscriptionID(), Now, true), credits.ErrSubscriptionNotFound)
}

func testSubscriptionOverlap(t *testing.T, s store.Store) {
	ctx := context.Background()
	end := Now.Add(20 * 24 * time.Hour)

	newSub := func(ref account.Ref, anchor time.Time) *subscription.Subscription {
		return &subscription.Subscription{
			Entity: types.NewEntityAt(Now), ID: id.NewSubscriptionID(), Account: ref,
			PlanID: id.NewPlanID(), Status: subscription.StatusActive, AnchorAt: anchor,
		}
	}

	tests := []struct {
		name   string
		anchor time.Time
		cancel func(sub *subscription.Subscription) error
		at     time.Time
		want   bool
	}{
		{"open ended covers earlier instant", Now.Add(10 * 24 * time.Hour), nil, Now, true},
		{"open ended covers later instant", Now, nil, Now.Add(10 * 24 * time.Hour), true},
		{"scheduled cancel covers instant before it", Now, func(sub *subscription.Subscription) error {
			return s.CancelSubscription(ctx, sub.ID, end, false)
		}, end.Add(-time.Second), true},
		{"scheduled cancel frees its boundary", Now, func(sub *subscription.Subscription) error {
			return s.CancelSubscription(ctx, sub.ID, end, false)
		}, end, false},
		{"immediate cancel frees everything", Now.Add(-24 * time.Hour), func(sub *subscription.Subscription) error {
			return s.CancelSubscription(ctx, sub.ID, Now, true)
		}, Now.Add(-48 * time.Hour), false},
		{"canceled before its anchor never counts", Now.Add(10 * 24 * time.Hour), func(sub *subscription.Subscription) error {
			return s.CancelSubscription(ctx, sub.ID, Now, false)
		}, Now.Add(-time.Hour), false},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := account.User(fmt.Sprintf("u_overlap_%d", i))
			seedAccount(t, s, ref)

			taken, err := s.HasSubscriptionFrom(ctx, ref, tt.at)
			require.NoError(t, err)
			assert.False(t, taken, "no subscriptions yet")

			sub := newSub(ref, tt.anchor)
			require.NoError(t, s.CreateSubscription(ctx, sub))
			if tt.cancel != nil {
				require.NoError(t, tt.cancel(sub))
			}

			got, err := s.HasSubscriptionFrom(ctx, ref, tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func testEntitlements(t *testing.T, s store.Store) {
	ctx := context.Background()
	ref := account.User("u_ent")
	seedAccount(t, s, ref)

	second := seedEntitlement(t, s, ref, "enr_2", "coaching", 5, Now.Add(time.Hour))
	first := seedEntitlement(t, s, ref, "enr_1", "coaching", 10, Now)
	other := seedEntitlement(t, s, ref, "enr_3", "ai_insight", 3, Now.Add(2*time.Hour))

	ents, err := s.ListEntitlements(ctx, ref, entitlement.ListOpts{})
	require.NoError(t, err)
	require.Len(t, ents, 3)
	assert.Equal(t, first.ID.String(), ents[0].ID.String(), "oldest first")
	assert.Equal(t, second.ID.String(), ents[1].ID.String())

	coaching, err := s.ListEntitlements(ctx, ref, entitlement.ListOpts{FeatureKey: "coaching"})
	require.NoError(t, err)
	assert.Len(t, coaching, 2)

	n, err := s.EndEnrollment(ctx, ref, "enr_3", Now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, err := s.ListEntitlements(ctx, ref, entitlement.ListOpts{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	ended, err := s.GetEntitlement(ctx, other.ID)
	require.NoError(t, err)
	assert.False(t, ended.Active)
	require.NotNil(t, ended.EndedAt)

	n, err = s.EndEnrollment(ctx, ref, "enr_3", Now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testBatches(t *testing.T, s store.Store) {
	ctx := context.Background()
	ref := account.User("u_batch")
	seedAccount(t, s, ref)

	late := seedBatch(t, s, ref, 10, 30*24*time.Hour)
	soon := seedBatch(t, s, ref, 10, 24*time.Hour)
	expired := seedBatch(t, s, ref, 10, -time.Hour)

	all, err := s.ListBatches(ctx, ref, batch.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, expired.ID.String(), all[0].ID.String())
	assert.Equal(t, soon.ID.String(), all[1].ID.String())
	assert.Equal(t, late.ID.String(), all[2].ID.String())

	live, err := s.ListBatches(ctx, ref, batch.ListOpts{LiveAt: Now})
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, soon.ID.String(), live[0].ID.String())

	got, err := s.GetBatch(ctx, soon.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.AmountRemaining)
	assert.True(t, got.ExpiresAt.Equal(soon.ExpiresAt))

	_, err = s.GetBatch(ctx, id.NewBatchID())
	assert.ErrorIs(t, err, credits.ErrBatchNotFound)
}

func testUnitCommits(t *testing.T, s store.Store) {
	ctx := context.Background()
	ref := account.User("u_unit")
	seedAccount(t, s, ref)
	b := seedBatch(t, s, ref, 10, 24*time.Hour)
	e := seedEntitlement(t, s, ref, "enr_1", "coaching", 5, Now)

	txn := &transaction.Transaction{
		ID:                  id.NewTransactionID(),
		Account:             ref,
		AmountRequested:     9,
		FromPlan:            2,
		PlanPool:            usage.PoolGeneral,
		FromProgram:         3,
		FromBonus:           4,
		BatchesDebited:      []transaction.BatchDebit{{BatchID: b.ID, Amount: 4}},
		EntitlementsDebited: []transaction.EntitlementDebit{{EntitlementID: e.ID, Amount: 3}},
		BalanceAfter:        11,
		ActionType:          "ai_insight",
		IdempotencyKey:      "req-1",
		OccurredAt:          Now,
	}

	err := s.RunInAccountTx(ctx, ref, func(ctx context.Context, tx store.Tx) error {
		if err := tx.AppendUsage(ctx, &usage.Record{
			ID: id.NewUsageRecordID(), Account: ref, Amount: 2, Pool: usage.PoolGeneral,
			ActionType: "ai_insight", TransactionID: txn.ID, OccurredAt: Now,
		}); err != nil {
			return err
		}
		if err := tx.DebitEntitlement(ctx, e.ID, 3, Now.Add(time.Hour)); err != nil {
			return err
		}
		if err := tx.DebitBatch(ctx, b.ID, 4); err != nil {
			return err
		}
		return tx.CreateTransaction(ctx, txn)
	})
	require.NoError(t, err)

	totals, err := s.SumUsage(ctx, ref, Now.Add(-time.Hour), Now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.General)

	gotBatch, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), gotBatch.AmountRemaining)

	gotEnt, err := s.GetEntitlement(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), gotEnt.Used)
	assert.True(t, gotEnt.UpdatedAt.Equal(Now.Add(time.Hour)), "updated_at = %s", gotEnt.UpdatedAt)

	gotTxn, err := s.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, txn.Total(), gotTxn.Total())
	require.Len(t, gotTxn.BatchesDebited, 1)
	assert.Equal(t, b.ID.String(), gotTxn.BatchesDebited[0].BatchID.String())

	byKey, err := s.GetTransactionByIdempotencyKey(ctx, ref, "req-1")
	require.NoError(t, err)
	assert.Equal(t, txn.ID.String(), byKey.ID.String())
	_, err = s.GetTransactionByIdempotencyKey(ctx, ref, "req-2")
	assert.True(t, credits.IsNotFound(err))

	txns, err := s.ListTransactions(ctx, ref, transaction.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, txns, 1)

	records, err := s.ListUsage(ctx, ref, usage.ListOpts{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, txn.ID.String(), records[0].TransactionID.String())
}

func testUnitRollsBack(t *testing.T, s store.Store) {
	ctx := context.Background()
	ref := account.User("u_rollback")
	seedAccount(t, s, ref)
	b := seedBatch(t, s, ref, 10, 24*time.Hour)

	boom := errors.New("boom")
	err := s.RunInAccountTx(ctx, ref, func(ctx context.Context, tx store.Tx) error {
		if err := tx.AppendUsage(ctx, &usage.Record{
			ID: id.NewUsageRecordID(), Account: ref, Amount: 5, Pool: usage.PoolGeneral,
			ActionType: "x", TransactionID: id.NewTransactionID(), OccurredAt: Now,
		}); err != nil {
			return err
		}
		if err := tx.DebitBatch(ctx, b.ID, 5); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.AmountRemaining)

	totals, err := s.SumUsage(ctx, ref, Now.Add(-time.Hour), Now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, totals.General)
}

func testDebitGuards(t *testing.T, s store.Store) {
	ctx := context.Background()
	ref := account.User("u_guard")
	seedAccount(t, s, ref)
	b := seedBatch(t, s, ref, 3, 24*time.Hour)
	e := seedEntitlement(t, s, ref, "enr_1", "coaching", 2, Now)

	err := s.RunInAccountTx(ctx, ref, func(ctx context.Context, tx store.Tx) error {
		return tx.DebitBatch(ctx, b.ID, 4)
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	err = s.RunInAccountTx(ctx, ref, func(ctx context.Context, tx store.Tx) error {
		return tx.DebitEntitlement(ctx, e.ID, 3, Now)
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.EndEnrollment(ctx, ref, "enr_1", Now)
	require.NoError(t, err)
	err = s.RunInAccountTx(ctx, ref, func(ctx context.Context, tx store.Tx) error {
		return tx.DebitEntitlement(ctx, e.ID, 1, Now)
	})
	assert.ErrorIs(t, err, store.ErrConflict, "inert entitlements cannot be debited")

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.AmountRemaining)
}

func testView(t *testing.T, s store.Store) {
	ctx := context.Background()
	ref := account.User("u_view")
	seedAccount(t, s, ref)
	seedBatch(t, s, ref, 7, 24*time.Hour)

	err := s.View(ctx, ref, func(ctx context.Context, r store.Reader) error {
		if _, err := r.GetAccount(ctx, ref); err != nil {
			return err
		}
		bs, err := r.ListBatches(ctx, ref, batch.ListOpts{LiveAt: Now})
		if err != nil {
			return err
		}
		assert.Len(t, bs, 1)
		return nil
	})
	require.NoError(t, err)

	err = s.View(ctx, account.User("missing"), func(ctx context.Context, r store.Reader) error {
		_, err := r.GetAccount(ctx, account.User("missing"))
		return err
	})
	assert.ErrorIs(t, err, credits.ErrAccountNotFound)
}

// testConcurrentDebits races n units, each reading the batch and debiting
// one credit, against a batch holding n-1.
func testConcurrentDebits(t *testing.T, s store.Store) {
	const n = 8
	ctx := context.Background()
	ref := account.User("u_race")
	seedAccount(t, s, ref)
	b := seedBatch(t, s, ref, n-1, 24*time.Hour)

	var ok, empty atomic.Int32
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				err := s.RunInAccountTx(ctx, ref, func(ctx context.Context, tx store.Tx) error {
					bs, err := tx.ListBatches(ctx, ref, batch.ListOpts{LiveAt: Now})
					if err != nil {
						return err
					}
					if len(bs) == 0 {
						return credits.ErrInsufficientCredits
					}
					return tx.DebitBatch(ctx, bs[0].ID, 1)
				})
				switch {
				case err == nil:
					ok.Add(1)
					return
				case errors.Is(err, credits.ErrInsufficientCredits):
					empty.Add(1)
					return
				case errors.Is(err, store.ErrConflict):
					time.Sleep(time.Millisecond)
					continue
				default:
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
			t.Error("unit kept conflicting")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(n-1), ok.Load())
	assert.Equal(t, int32(1), empty.Load())

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, got.AmountRemaining)
}
