package sqlstore_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/clock"
	"github.com/xraph/credits/plan"
)

// TestEngineOnSQLite drives the full consume path through the gorm store.
func TestEngineOnSQLite(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	s := newSQLite(t)
	eng := credits.New(s,
		credits.WithClock(clock.NewFake(now)),
		credits.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		credits.WithRetryBackoff(0),
	)
	ref := account.User("u_sql")

	require.NoError(t, eng.RegisterAccount(ctx, &account.Account{Ref: ref}))
	p := &plan.Plan{Name: "Starter", Slug: "starter", MonthlyCredits: 5}
	require.NoError(t, eng.CreatePlan(ctx, p))
	_, err := eng.Subscribe(ctx, ref, p.ID, now.AddDate(0, 0, -9))
	require.NoError(t, err)
	_, err = eng.ProvisionEntitlement(ctx, ref, "enr_1", "coaching", 3)
	require.NoError(t, err)
	_, err = eng.Grant(ctx, credits.GrantRequest{Account: ref, Amount: 12, ExpiresAt: now.Add(48 * time.Hour)})
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = eng.Consume(ctx, credits.ConsumeRequest{Account: ref, Amount: 2, ActionType: "ai_insight"})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	sum, err := eng.Summary(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.TotalAvailable)
	assert.Equal(t, int64(5), sum.Plan.Used)
	assert.Equal(t, int64(0), sum.Bonus.Remaining)

	_, err = eng.Consume(ctx, credits.ConsumeRequest{Account: ref, Amount: 1, ActionType: "ai_insight"})
	assert.ErrorIs(t, err, credits.ErrInsufficientCredits)
}
