package credits

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotAcquired is returned by a Locker when another holder owns the
// lock. The engine treats it like a write conflict and retries.
var ErrLockNotAcquired = errors.New("credits: account lock not acquired")

// Locker serializes consumes for one account across engine instances.
type Locker interface {
	// Acquire takes the lock for key for at most ttl. The returned release
	// function gives it back.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

func lockKey(accountKey string) string {
	return "credits:lock:" + accountKey
}
