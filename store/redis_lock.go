package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/ruteri/casper-member-portal/interfaces"
)

const accountLockKeyPrefix = "portal:lock:account:"

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is an AccountLocker shared by every portal instance using the same Redis.
type RedisLocker struct {
	client   *redis.Client
	ttl      time.Duration
	wait     time.Duration
	interval time.Duration
	log      *slog.Logger
}

// RedisLockerOption configures a RedisLocker.
type RedisLockerOption func(*RedisLocker)

// WithLockTTL sets how long a lock survives a crashed holder.
func WithLockTTL(ttl time.Duration) RedisLockerOption {
	return func(l *RedisLocker) { l.ttl = ttl }
}

// WithLockWait sets how long Lock retries before giving up with ErrLocked.
func WithLockWait(wait time.Duration) RedisLockerOption {
	return func(l *RedisLocker) { l.wait = wait }
}

// NewRedisLocker creates a locker on client.
func NewRedisLocker(client *redis.Client, log *slog.Logger, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client:   client,
		ttl:      30 * time.Second,
		wait:     5 * time.Second,
		interval: 50 * time.Millisecond,
		log:      log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Lock acquires the account lock, retrying until the wait budget or ctx runs out.
func (l *RedisLocker) Lock(ctx context.Context, id interfaces.AccountID) (func(), error) {
	key := accountLockKeyPrefix + id.String()
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: acquire lock: %v", interfaces.ErrPersistence, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, interfaces.ErrLocked
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", interfaces.ErrLocked, ctx.Err())
		case <-time.After(l.interval):
		}
	}

	release := func() {
		// the request context may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			l.log.Warn("Failed to release account lock",
				slog.String("account_id", id.String()),
				"err", err)
		}
	}
	return release, nil
}

// LockedTx serializes transactions of one account across instances by taking
// the locker's lock before delegating to the inner transaction scope.
type LockedTx struct {
	locker interfaces.AccountLocker
	inner  interfaces.AccountTx
}

// NewLockedTx wraps inner with locker.
func NewLockedTx(locker interfaces.AccountLocker, inner interfaces.AccountTx) *LockedTx {
	return &LockedTx{locker: locker, inner: inner}
}

// RunInTx implements interfaces.AccountTx.
func (t *LockedTx) RunInTx(ctx context.Context, id interfaces.AccountID, fn func(ctx context.Context, store interfaces.AccountStore) error) error {
	release, err := t.locker.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	return t.inner.RunInTx(ctx, id, fn)
}
