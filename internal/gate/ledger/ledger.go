// Package ledger tracks consumed single-use nonces. It is the most
// contention-sensitive piece of the verification path: many concurrent
// requests may race to consume the same nonce, and exactly one of them
// may win. Both backends implement consume as an atomic check-and-set,
// never a read-then-write pair.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrReplay reports that a nonce was already consumed. A replay is
// either a caller bug or an attack, so callers log it at elevated
// severity.
var ErrReplay = errors.New("ledger: nonce already consumed")

// Ledger records consumed nonces until their token's expiry has passed,
// after which they are swept to bound memory.
//
// The in-memory backend protects a single process only. Deployments
// with multiple verifier instances must use the shared (redis) backend
// or replay protection degrades to per-instance.
type Ledger interface {
	// TryConsume atomically records the nonce. It returns ErrReplay if
	// the nonce was recorded before and has not yet been evicted.
	TryConsume(ctx context.Context, nonce string, expiresAt time.Time) error

	Close() error
}
