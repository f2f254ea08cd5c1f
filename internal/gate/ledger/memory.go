package ledger

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultSweepInterval is how often the background janitor removes
// expired nonce records. Coarser than the token TTL on purpose: the
// sweep bounds memory, it does not enforce expiry. Expiry is checked
// against the claim itself, so a record lingering between sweeps can
// never make an expired token verifiable.
const DefaultSweepInterval = 60 * time.Second

// Memory is the single-instance ledger. Consume is go-cache's Add,
// which holds the cache lock for the whole check-and-set, so two
// concurrent consumers of one nonce cannot both win. The janitor runs
// on its own goroutine and takes the lock per sweep batch only.
type Memory struct {
	c *gocache.Cache
}

// NewMemory creates an in-memory ledger sweeping at the given interval.
// onEvict, if non-nil, is invoked once per swept record (used for
// metrics).
func NewMemory(sweepInterval time.Duration, onEvict func()) *Memory {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	c := gocache.New(gocache.NoExpiration, sweepInterval)
	if onEvict != nil {
		c.OnEvicted(func(string, any) { onEvict() })
	}

	return &Memory{c: c}
}

func (m *Memory) TryConsume(_ context.Context, nonce string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Expiry is enforced before consume; keep a floor so a record
		// for a token on the edge of expiry still blocks reuse briefly.
		ttl = time.Second
	}

	if err := m.c.Add(nonce, struct{}{}, ttl); err != nil {
		return ErrReplay
	}
	return nil
}

// Len reports the number of live records, expired-but-unswept included.
func (m *Memory) Len() int { return m.c.ItemCount() }

func (m *Memory) Close() error { return nil }
