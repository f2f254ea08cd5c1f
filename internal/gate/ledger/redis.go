package ledger

import (
	"context"
	"fmt"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Redis is the shared ledger for multi-instance deployments: every
// verifier instance consumes against the same keyspace, so replay
// protection holds across the fleet. SETNX with a TTL is the atomic
// check-and-set, and redis expiry replaces the janitor sweep.
type Redis struct {
	client *rdb.Client
	prefix string
}

// NewRedis creates a redis-backed ledger.
func NewRedis(addr string, db int) *Redis {
	return &Redis{
		client: rdb.NewClient(&rdb.Options{Addr: addr, DB: db}),
		prefix: "scoregate:nonce:",
	}
}

func (r *Redis) TryConsume(ctx context.Context, nonce string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	ok, err := r.client.SetNX(ctx, r.prefix+nonce, "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("ledger: redis consume: %w", err)
	}
	if !ok {
		return ErrReplay
	}
	return nil
}

// Ping verifies connectivity, used by readiness checks.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error { return r.client.Close() }
