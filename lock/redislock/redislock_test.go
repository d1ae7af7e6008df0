package redislock_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/clock"
	"github.com/xraph/credits/lock/redislock"
	"github.com/xraph/credits/store/memory"
)

func newLocker(t *testing.T, opts ...redislock.Option) (*redislock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redislock.New(client, opts...), mr
}

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	l, mr := newLocker(t)

	release, err := l.Acquire(ctx, "credits:lock:user:u_1", time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("credits:lock:user:u_1"))

	_, err = l.Acquire(ctx, "credits:lock:user:u_1", time.Second)
	assert.ErrorIs(t, err, credits.ErrLockNotAcquired)

	other, err := l.Acquire(ctx, "credits:lock:user:u_2", time.Second)
	require.NoError(t, err, "locks are per key")
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("credits:lock:user:u_1"))

	again, err := l.Acquire(ctx, "credits:lock:user:u_1", time.Second)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestReleaseAfterExpiryDoesNotStealLock(t *testing.T) {
	ctx := context.Background()
	l, mr := newLocker(t)

	release, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	next, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	assert.ErrorIs(t, release(ctx), redislock.ErrNotHeld)
	assert.True(t, mr.Exists("k"), "stale release must not delete the new holder's lock")
	require.NoError(t, next(ctx))
}

func TestAcquireWaits(t *testing.T) {
	ctx := context.Background()
	l, _ := newLocker(t, redislock.WithWait(50, 5*time.Millisecond), redislock.WithPrefix("app:"))

	release, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		r, err := l.Acquire(ctx, "k", time.Second)
		if err == nil {
			err = r(ctx)
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, release(ctx))
	require.NoError(t, <-done)
}

func TestAcquireValidates(t *testing.T) {
	l, _ := newLocker(t)
	_, err := l.Acquire(context.Background(), "", time.Second)
	assert.Error(t, err)
	_, err = l.Acquire(context.Background(), "k", 0)
	assert.Error(t, err)
}

// TestEngineWithRedisLocker runs concurrent consumes through the engine
// with the locker wired in.
func TestEngineWithRedisLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	l, mr := newLocker(t, redislock.WithWait(500, 2*time.Millisecond))

	eng := credits.New(memory.New(),
		credits.WithClock(clock.NewFake(now)),
		credits.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		credits.WithLocker(l),
		credits.WithLockTTL(5*time.Second),
	)
	ref := account.User("u_lock")
	require.NoError(t, eng.RegisterAccount(ctx, &account.Account{Ref: ref}))
	_, err := eng.Grant(ctx, credits.GrantRequest{Account: ref, Amount: 8, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = eng.Consume(ctx, credits.ConsumeRequest{Account: ref, Amount: 1, ActionType: "booking"})
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.False(t, mr.Exists("credits:lock:user:u_lock"), "every lock is released")
	sum, err := eng.Summary(ctx, ref)
	require.NoError(t, err)
	assert.Zero(t, sum.TotalAvailable)
}
