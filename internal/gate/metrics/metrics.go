// Package metrics exposes the broker's Prometheus instrumentation.
// Counters only; the interesting latencies here are dominated by the
// scoring collaborator, which reports its own.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	// TokensIssued counts successfully issued tokens.
	TokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scoregate_tokens_issued_total",
		Help: "Tokens successfully issued",
	})

	// Verifications counts verification outcomes by result:
	// accepted, invalid_token, token_expired, token_replay.
	Verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scoregate_verifications_total",
		Help: "Verification attempts by outcome",
	}, []string{"result"})

	// RateLimitExceeded counts soft-limit exceedances by window.
	// Soft limits never reject, so this is the only enforcement signal.
	RateLimitExceeded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scoregate_rate_limit_exceeded_total",
		Help: "Soft rate limit exceedances by window (subject, requester)",
	}, []string{"window"})

	// NoncesEvicted counts nonce records removed by the ledger sweep.
	NoncesEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scoregate_nonces_evicted_total",
		Help: "Expired nonce records removed by the background sweep",
	})
)

// Handler registers the collectors on the default registry (once) and
// returns the /metrics handler.
func Handler() http.Handler {
	registerOnce.Do(func() {
		prometheus.MustRegister(TokensIssued, Verifications, RateLimitExceeded, NoncesEvicted)
	})
	return promhttp.Handler()
}
