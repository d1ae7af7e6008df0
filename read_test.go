package credits_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/usage"
)

func TestSummaryComposition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, 50, plan.Allocation{FeatureKey: "ai_insight", MonthlyCredits: 10})
	f.provision(t, "enr_1", "coaching", 8)
	f.grant(t, 6, 3*day, "")
	f.grant(t, 4, 20*day, "booking")

	_, err := f.consume(5, "")
	require.NoError(t, err)

	s, err := f.eng.Summary(ctx, f.ref)
	require.NoError(t, err)

	assert.True(t, s.Plan.Active)
	assert.Equal(t, int64(45), s.Plan.Remaining)
	assert.Equal(t, int64(10), s.Plan.Features["ai_insight"].Remaining)
	assert.Equal(t, int64(8), s.Program.Remaining)
	assert.Equal(t, int64(8), s.Program.ByFeature["coaching"])
	assert.Equal(t, int64(10), s.Bonus.Remaining)
	assert.Equal(t, int64(6), s.Bonus.General)
	assert.Equal(t, int64(4), s.Bonus.ByFeature["booking"])
	assert.Equal(t, int64(63), s.TotalAvailable)
	assert.Equal(t, int64(6), s.ExpiringSoon)
	require.NotNil(t, s.EarliestExpiry)
	assert.True(t, s.EarliestExpiry.Equal(now.Add(3*day)))
}

func TestSummaryIdempotentReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, 30)
	f.provision(t, "enr_1", "coaching", 8)
	f.grant(t, 6, 3*day, "")

	first, err := f.eng.Summary(ctx, f.ref)
	require.NoError(t, err)
	second, err := f.eng.Summary(ctx, f.ref)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSummaryExpiringWindow(t *testing.T) {
	f := newFixture(t, credits.WithExpiringSoonWindow(2*day))
	f.grant(t, 6, 3*day, "")
	f.grant(t, 2, day, "")

	s, err := f.eng.Summary(context.Background(), f.ref)
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.ExpiringSoon)
}

func TestSummaryUnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.Summary(context.Background(), account.User("ghost"))
	require.ErrorIs(t, err, credits.ErrAccountNotFound)
	assert.True(t, credits.IsNotFound(err))
}

func TestPlanRemainingWithoutSubscription(t *testing.T) {
	f := newFixture(t)
	r, err := f.eng.PlanRemaining(context.Background(), f.ref, "ai_insight")
	require.NoError(t, err)
	assert.Zero(t, r.Remaining)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, 3)
	f.grant(t, 10, day, "")

	first, err := f.consume(2, "")
	require.NoError(t, err)
	f.clk.Advance(1)
	second, err := f.consume(4, "")
	require.NoError(t, err)

	txns, err := f.eng.ListTransactions(ctx, f.ref, transaction.ListOpts{})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, second.ID, txns[0].ID, "newest first")
	assert.Equal(t, first.ID, txns[1].ID)

	paged, err := f.eng.ListTransactions(ctx, f.ref, transaction.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, first.ID, paged[0].ID)

	got, err := f.eng.GetTransaction(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.FromPlan)
	assert.Equal(t, int64(3), got.FromBonus)

	records, err := f.eng.ListUsage(ctx, f.ref, usage.ListOpts{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(2), records[0].Amount)
	assert.Equal(t, first.ID, records[0].TransactionID)
	assert.Equal(t, usage.PoolGeneral, records[1].Pool)
}
