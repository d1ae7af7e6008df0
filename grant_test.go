package credits_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/batch"
)

func TestGrantRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.grant(t, 20, 60*day, "")

	before, err := f.eng.Summary(ctx, f.ref)
	require.NoError(t, err)
	require.NotNil(t, before.EarliestExpiry)

	b, err := f.eng.Grant(ctx, credits.GrantRequest{
		Account:     f.ref,
		Amount:      100,
		ExpiresAt:   now.Add(30 * day),
		SourceType:  batch.SourcePurchase,
		Description: "Starter pack",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), b.AmountOriginal)
	assert.Equal(t, int64(100), b.AmountRemaining)
	assert.True(t, b.GrantedAt.Equal(now))

	after, err := f.eng.Summary(ctx, f.ref)
	require.NoError(t, err)
	assert.Equal(t, before.Bonus.Remaining+100, after.Bonus.Remaining)
	assert.Equal(t, before.TotalAvailable+100, after.TotalAvailable)
	require.NotNil(t, after.EarliestExpiry)
	assert.True(t, after.EarliestExpiry.Equal(now.Add(30*day)))

	f.grant(t, 5, 90*day, "")
	latest, err := f.eng.Summary(ctx, f.ref)
	require.NoError(t, err)
	assert.True(t, latest.EarliestExpiry.Equal(now.Add(30*day)), "a later batch does not move the earliest expiry")

	got, err := f.eng.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Starter pack", got.Description)
}

func TestGrantValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  credits.GrantRequest
		want error
	}{
		{"zero amount", credits.GrantRequest{Account: f.ref, Amount: 0, ExpiresAt: now.Add(day)}, credits.ErrInvalidAmount},
		{"expired", credits.GrantRequest{Account: f.ref, Amount: 5, ExpiresAt: now.Add(-time.Second)}, credits.ErrInvalidAmount},
		{"expires now", credits.GrantRequest{Account: f.ref, Amount: 5, ExpiresAt: now}, credits.ErrInvalidAmount},
		{"bad source", credits.GrantRequest{Account: f.ref, Amount: 5, ExpiresAt: now.Add(day), SourceType: "gift"}, credits.ErrInvalidInput},
		{"unknown account", credits.GrantRequest{Account: account.User("ghost"), Amount: 5, ExpiresAt: now.Add(day)}, credits.ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.eng.Grant(ctx, tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}

	all, err := f.eng.ListBatches(ctx, f.ref, batch.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestGrantDefaultsToManual(t *testing.T) {
	f := newFixture(t)
	b, err := f.eng.Grant(context.Background(), credits.GrantRequest{Account: f.ref, Amount: 1, ExpiresAt: now.Add(day)})
	require.NoError(t, err)
	assert.Equal(t, batch.SourceManual, b.SourceType)
}
