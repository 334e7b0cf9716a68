// Package lock implements the per-shop sync lease. A sync chain holds the
// lease from its first page until a terminal state, preventing two
// interleaved cursors for the same shop.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("lease is held by another sync chain")

// Release/refresh only succeed when the caller still owns the lease.
var (
	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
	refreshScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		end
		return 0
	`)
)

// Locker hands out shop-scoped sync leases backed by Redis.
type Locker struct {
	client *redis.Client
	prefix string
}

// NewLocker creates a Locker. All lease keys share the given prefix.
func NewLocker(client *redis.Client, prefix string) *Locker {
	if prefix == "" {
		prefix = "sync:lease"
	}
	return &Locker{client: client, prefix: prefix}
}

// Acquire takes the lease for the given shop. It returns an opaque token
// the holder must present to refresh or release, or ErrNotAcquired when a
// chain is already running.
func (l *Locker) Acquire(ctx context.Context, shopID uuid.UUID, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, l.key(shopID), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire lease: %w", err)
	}
	if !ok {
		return "", ErrNotAcquired
	}
	return token, nil
}

// Refresh extends the lease if the token still owns it. A refresh on a
// lost lease is not an error; the chain finds out at release time.
func (l *Locker) Refresh(ctx context.Context, shopID uuid.UUID, token string, ttl time.Duration) error {
	err := refreshScript.Run(ctx, l.client, []string{l.key(shopID)}, token, ttl.Milliseconds()).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to refresh lease: %w", err)
	}
	return nil
}

// Release gives the lease back. Releasing with a stale token is a no-op.
func (l *Locker) Release(ctx context.Context, shopID uuid.UUID, token string) error {
	err := releaseScript.Run(ctx, l.client, []string{l.key(shopID)}, token).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

func (l *Locker) key(shopID uuid.UUID) string {
	return l.prefix + ":" + shopID.String()
}
