// Package redislock implements credits.Locker on Redis so that consumes for
// one account are serialized across engine instances.
//
// A lock is a key set with SET NX PX holding a random token. Release deletes
// the key only if it still holds that token, so a holder whose lock expired
// never frees a lock taken by someone else.
package redislock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/credits"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// ErrNotHeld is returned by release when the lock expired or was taken
// over before it was released.
var ErrNotHeld = errors.New("redislock: lock no longer held")

var _ credits.Locker = (*Locker)(nil)

// Locker takes account locks in Redis.
type Locker struct {
	client   redis.UniversalClient
	script   *redis.Script
	prefix   string
	attempts int
	interval time.Duration
}

// Option configures a Locker.
type Option func(*Locker)

// WithPrefix prepends prefix to every lock key.
func WithPrefix(prefix string) Option {
	return func(l *Locker) { l.prefix = prefix }
}

// WithWait makes Acquire retry up to attempts times, interval apart, before
// giving up with credits.ErrLockNotAcquired.
func WithWait(attempts int, interval time.Duration) Option {
	return func(l *Locker) {
		if attempts > 0 {
			l.attempts = attempts
		}
		if interval > 0 {
			l.interval = interval
		}
	}
}

// New returns a Locker on client.
func New(client redis.UniversalClient, opts ...Option) *Locker {
	l := &Locker{
		client:   client,
		script:   redis.NewScript(releaseScript),
		attempts: 1,
		interval: 20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire implements credits.Locker.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if key == "" {
		return nil, errors.New("redislock: empty key")
	}
	if ttl <= 0 {
		return nil, errors.New("redislock: ttl must be positive")
	}

	key = l.prefix + key
	token := uuid.NewString()

	for attempt := 1; ; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return l.releaser(key, token), nil
		}
		if attempt >= l.attempts {
			return nil, credits.ErrLockNotAcquired
		}

		t := time.NewTimer(l.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (l *Locker) releaser(key, token string) func(context.Context) error {
	return func(ctx context.Context) error {
		n, err := l.script.Run(ctx, l.client, []string{key}, token).Int64()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotHeld
		}
		return nil
	}
}
