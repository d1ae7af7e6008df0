package credits_test

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
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/usage"
)

func TestConsumePriorityOrdering(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, 5)
	f.provision(t, "enr_1", "coaching", 3)
	later := f.grant(t, 10, 30*day, "")
	soon := f.grant(t, 10, day, "")

	txn, err := f.consume(20, "")
	require.NoError(t, err)

	assert.Equal(t, int64(5), txn.FromPlan)
	assert.Equal(t, int64(3), txn.FromProgram)
	assert.Equal(t, int64(12), txn.FromBonus)
	assert.Equal(t, usage.PoolGeneral, txn.PlanPool)
	require.Equal(t, []transaction.BatchDebit{
		{BatchID: soon.ID, Amount: 10},
		{BatchID: later.ID, Amount: 2},
	}, txn.BatchesDebited)
	assert.Equal(t, int64(8), txn.BalanceAfter)

	s, err := f.eng.Summary(context.Background(), f.ref)
	require.NoError(t, err)
	assert.Equal(t, int64(8), s.TotalAvailable)
	assert.Zero(t, s.Plan.Remaining)
	assert.Zero(t, s.Program.Remaining)
}

func TestConsumeConservation(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, 7)
	f.provision(t, "enr_1", "coaching", 5)
	f.provision(t, "enr_2", "ai_insight", 2)
	f.grant(t, 9, 2*day, "")
	f.grant(t, 4, day, "ai_insight")

	for _, amt := range []int64{3, 6, 1, 8, 2, 4} {
		txn, err := f.consume(amt, "")
		require.NoError(t, err)
		assert.Equal(t, amt, txn.FromPlan+txn.FromProgram+txn.FromBonus)
		assert.Equal(t, amt, txn.AmountRequested)

		var fromBatches int64
		for _, d := range txn.BatchesDebited {
			fromBatches += d.Amount
		}
		assert.Equal(t, txn.FromBonus, fromBatches)

		var fromEnts int64
		for _, d := range txn.EntitlementsDebited {
			fromEnts += d.Amount
		}
		assert.Equal(t, txn.FromProgram, fromEnts)
	}

	batches, err := f.eng.ListBatches(context.Background(), f.ref, batch.ListOpts{})
	require.NoError(t, err)
	for _, b := range batches {
		assert.GreaterOrEqual(t, b.AmountRemaining, int64(0))
		assert.LessOrEqual(t, b.AmountRemaining, b.AmountOriginal)
	}
}

func TestConsumeInsufficientIsNoop(t *testing.T) {
	rec := &hookRecorder{}
	f := newFixture(t, credits.WithPlugin(rec))
	ctx := context.Background()
	f.subscribe(t, 5)
	f.provision(t, "enr_1", "coaching", 3)
	f.grant(t, 4, day, "")

	before, err := f.eng.Summary(ctx, f.ref)
	require.NoError(t, err)
	batchesBefore, err := f.eng.ListBatches(ctx, f.ref, batch.ListOpts{})
	require.NoError(t, err)
	entsBefore, err := f.eng.ListEntitlements(ctx, f.ref, entitlement.ListOpts{})
	require.NoError(t, err)

	_, err = f.consume(13, "")
	require.ErrorIs(t, err, credits.ErrInsufficientCredits)

	var ice *credits.InsufficientCreditsError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, int64(12), ice.Available)
	assert.Equal(t, int64(13), ice.Required)
	assert.Less(t, ice.Available, ice.Required)

	after, err := f.eng.Summary(ctx, f.ref)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	batchesAfter, err := f.eng.ListBatches(ctx, f.ref, batch.ListOpts{})
	require.NoError(t, err)
	assert.Equal(t, batchesBefore, batchesAfter)
	entsAfter, err := f.eng.ListEntitlements(ctx, f.ref, entitlement.ListOpts{})
	require.NoError(t, err)
	assert.Equal(t, entsBefore, entsAfter)

	records, err := f.eng.ListUsage(ctx, f.ref, usage.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, records)
	txns, err := f.eng.ListTransactions(ctx, f.ref, transaction.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, txns)

	require.Len(t, rec.insufficient, 1)
	assert.Equal(t, [2]int64{12, 13}, rec.insufficient[0])
	assert.Empty(t, rec.consumed)
}

func TestConsumeNoDoubleSpend(t *testing.T) {
	const n = 16

	f := newFixture(t)
	f.subscribe(t, 4)
	f.provision(t, "enr_1", "coaching", 3)
	f.grant(t, 5, day, "")
	f.grant(t, 3, 2*day, "")

	var ok, short atomic.Int32
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.consume(1, "")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, credits.ErrInsufficientCredits):
				short.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(n-1), ok.Load())
	assert.Equal(t, int32(1), short.Load())

	s, err := f.eng.Summary(context.Background(), f.ref)
	require.NoError(t, err)
	assert.Zero(t, s.TotalAvailable)
}

func TestConsumeSkipsExpiredBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.grant(t, 10, time.Hour, "")
	live := f.grant(t, 3, 10*day, "")

	f.clk.Advance(2 * time.Hour)

	s, err := f.eng.Summary(ctx, f.ref)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.Bonus.Remaining)
	require.Len(t, s.Bonus.Batches, 1)
	assert.Equal(t, live.ID, s.Bonus.Batches[0].BatchID)

	_, err = f.consume(4, "")
	require.ErrorIs(t, err, credits.ErrInsufficientCredits)

	txn, err := f.consume(3, "")
	require.NoError(t, err)
	require.Len(t, txn.BatchesDebited, 1)
	assert.Equal(t, live.ID, txn.BatchesDebited[0].BatchID)
}

func TestConsumeFeatureAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, 100, plan.Allocation{FeatureKey: "ai_insight", MonthlyCredits: 10})
	f.provision(t, "enr_1", "coaching", 5)
	scoped := f.grant(t, 2, 3*day, "ai_insight")
	general := f.grant(t, 6, day, "")

	fc, err := f.eng.FeatureCredits(ctx, f.ref, "ai_insight")
	require.NoError(t, err)
	assert.Equal(t, int64(10), fc.Plan)
	assert.Equal(t, usage.PoolFeature, fc.PlanPool)
	assert.Zero(t, fc.Program)
	assert.Equal(t, int64(8), fc.Bonus)
	assert.Equal(t, int64(18), fc.Available)

	txn, err := f.consume(13, "ai_insight")
	require.NoError(t, err)
	assert.Equal(t, int64(10), txn.FromPlan)
	assert.Equal(t, usage.PoolFeature, txn.PlanPool)
	assert.Zero(t, txn.FromProgram, "coaching entitlements never pay for ai_insight")
	require.Equal(t, []transaction.BatchDebit{
		{BatchID: scoped.ID, Amount: 2},
		{BatchID: general.ID, Amount: 1},
	}, txn.BatchesDebited)
	assert.Equal(t, int64(5), txn.BalanceAfter)

	general100, err := f.eng.PlanRemaining(ctx, f.ref, "")
	require.NoError(t, err)
	assert.Equal(t, int64(100), general100.Remaining, "feature pool usage leaves the general pool untouched")

	_, err = f.consume(6, "ai_insight")
	require.ErrorIs(t, err, credits.ErrInsufficientCredits)

	txn, err = f.consume(20, "coaching")
	require.NoError(t, err)
	assert.Equal(t, int64(20), txn.FromPlan)
	assert.Equal(t, usage.PoolGeneral, txn.PlanPool)
}

func TestConsumePeriodRollover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, 10)

	_, err := f.consume(10, "")
	require.NoError(t, err)
	_, err = f.consume(1, "")
	require.ErrorIs(t, err, credits.ErrInsufficientCredits)

	f.clk.Set(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))

	r, err := f.eng.PlanRemaining(ctx, f.ref, "")
	require.NoError(t, err)
	assert.Equal(t, int64(10), r.Remaining)
	assert.True(t, r.PeriodStart.Equal(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, r.PeriodEnd.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)))

	_, err = f.consume(10, "")
	require.NoError(t, err)
}

func TestConsumeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.grant(t, 10, day, "")

	tests := []struct {
		name string
		req  credits.ConsumeRequest
		want error
	}{
		{"zero amount", credits.ConsumeRequest{Account: f.ref, Amount: 0, ActionType: "x"}, credits.ErrInvalidAmount},
		{"negative amount", credits.ConsumeRequest{Account: f.ref, Amount: -3, ActionType: "x"}, credits.ErrInvalidAmount},
		{"missing action", credits.ConsumeRequest{Account: f.ref, Amount: 1}, credits.ErrInvalidInput},
		{"bad account", credits.ConsumeRequest{Account: account.Ref{}, Amount: 1, ActionType: "x"}, credits.ErrInvalidInput},
		{"unknown account", credits.ConsumeRequest{Account: account.User("ghost"), Amount: 1, ActionType: "x"}, credits.ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.eng.Consume(ctx, tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}

	s, err := f.eng.Summary(ctx, f.ref)
	require.NoError(t, err)
	assert.Equal(t, int64(10), s.TotalAvailable)
}

func TestConsumeIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.grant(t, 10, day, "")

	req := credits.ConsumeRequest{
		Account:           f.ref,
		Amount:            4,
		ActionType:        "enrollment",
		ActionReferenceID: "enr_9",
		IdempotencyKey:    "checkout-42",
	}
	first, err := f.eng.Consume(ctx, req)
	require.NoError(t, err)
	second, err := f.eng.Consume(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	s, err := f.eng.Summary(ctx, f.ref)
	require.NoError(t, err)
	assert.Equal(t, int64(6), s.TotalAvailable)

	req.Amount = 5
	_, err = f.eng.Consume(ctx, req)
	require.ErrorIs(t, err, credits.ErrIdempotencyConflict)
}

// conflictingStore loses every account-scoped unit.
type conflictingStore struct {
	*memory.Store
	attempts atomic.Int32
}

func (s *conflictingStore) RunInAccountTx(_ context.Context, _ account.Ref, _ func(context.Context, store.Tx) error) error {
	s.attempts.Add(1)
	return fmt.Errorf("commit: %w", store.ErrConflict)
}

func TestConsumeTransientConflict(t *testing.T) {
	rec := &hookRecorder{}
	st := &conflictingStore{Store: memory.New()}
	f := newFixtureWithStore(t, st, credits.WithPlugin(rec), credits.WithMaxAttempts(4))
	f.grant(t, 10, day, "")

	_, err := f.consume(1, "")
	require.ErrorIs(t, err, credits.ErrTransientConflict)
	assert.False(t, credits.IsInsufficientCredits(err))
	assert.True(t, credits.IsRetryable(err))
	assert.Equal(t, int32(4), st.attempts.Load())
	assert.Equal(t, 4, rec.conflicts)
}

func TestConsumeCanceledContextDuringBackoff(t *testing.T) {
	st := &conflictingStore{Store: memory.New()}
	f := newFixtureWithStore(t, st, credits.WithRetryBackoff(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.eng.Consume(ctx, credits.ConsumeRequest{Account: f.ref, Amount: 1, ActionType: "x"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type busyLocker struct{ calls atomic.Int32 }

func (l *busyLocker) Acquire(context.Context, string, time.Duration) (func(context.Context) error, error) {
	l.calls.Add(1)
	return nil, credits.ErrLockNotAcquired
}

func TestConsumeLockerContention(t *testing.T) {
	l := &busyLocker{}
	f := newFixture(t, credits.WithLocker(l))
	f.grant(t, 10, day, "")

	_, err := f.consume(1, "")
	require.ErrorIs(t, err, credits.ErrTransientConflict)
	assert.Equal(t, int32(credits.DefaultMaxAttempts), l.calls.Load())
}

type countingLocker struct {
	acquired, released atomic.Int32
}

func (l *countingLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	if key != "credits:lock:user:u_1" {
		return nil, fmt.Errorf("unexpected lock key %q", key)
	}
	l.acquired.Add(1)
	return func(context.Context) error {
		l.released.Add(1)
		return nil
	}, nil
}

func TestConsumeLockerReleased(t *testing.T) {
	l := &countingLocker{}
	f := newFixture(t, credits.WithLocker(l))
	f.grant(t, 10, day, "")

	_, err := f.consume(1, "")
	require.NoError(t, err)
	_, err = f.consume(100, "")
	require.ErrorIs(t, err, credits.ErrInsufficientCredits)

	assert.Equal(t, int32(2), l.acquired.Load())
	assert.Equal(t, int32(2), l.released.Load())
}

func TestConsumeEmitsHook(t *testing.T) {
	rec := &hookRecorder{}
	f := newFixture(t, credits.WithPlugin(rec))
	f.grant(t, 10, day, "")

	txn, err := f.consume(3, "")
	require.NoError(t, err)

	assert.Equal(t, 1, rec.granted)
	require.Len(t, rec.consumed, 1)
	assert.Equal(t, txn.ID, rec.consumed[0].ID)
}
