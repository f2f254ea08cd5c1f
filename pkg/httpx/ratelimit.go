package httpx

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crediflow/scoregate/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines token-bucket parameters for the ambient
// per-IP flood limiter. This sits in front of the handlers and is
// independent of the per-identity soft windows tracked by the issuer:
// those never block, this one does, and its default is deliberately
// high so it only trips on floods.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the window.
	RequestsPerWindow int
	// Window is the time window.
	Window time.Duration
	// Burst allows temporary bursts above the sustained rate.
	Burst int
}

// FloodLimit is the default profile for the public POST endpoints.
// Override with RATELIMIT_FLOOD_REQUESTS, RATELIMIT_FLOOD_WINDOW_SEC,
// RATELIMIT_FLOOD_BURST.
var FloodLimit = RateLimitConfig{
	RequestsPerWindow: 300,
	Window:            time.Minute,
	Burst:             300,
}

func init() {
	FloodLimit = ParseRateLimitFromEnv("FLOOD", FloodLimit)
}

// ParseRateLimitFromEnv reads overrides from RATELIMIT_{prefix}_* env
// variables, mainly so tests and staging can tighten the limits.
func ParseRateLimitFromEnv(prefix string, defaults RateLimitConfig) RateLimitConfig {
	config := defaults

	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			config.RequestsPerWindow = requests
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil && burst > 0 {
			config.Burst = burst
		}
	}

	return config
}

// ClientIP extracts the client address, honouring X-Forwarded-For and
// X-Real-IP for proxied requests.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ipLimiter keeps one token bucket per client address.
type ipLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

func (il *ipLimiter) get(key string) *rate.Limiter {
	if limiter, ok := il.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(il.rate, il.burst)
	actual, _ := il.limiters.LoadOrStore(key, limiter)

	il.maybeCleanup()

	return actual.(*rate.Limiter)
}

// maybeCleanup drops idle buckets so ephemeral client addresses don't
// accumulate forever. A full bucket means the address has been quiet.
func (il *ipLimiter) maybeCleanup() {
	il.mu.Lock()
	defer il.mu.Unlock()

	if time.Since(il.lastCleanup) < 5*time.Minute {
		return
	}
	il.lastCleanup = time.Now()

	il.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(il.burst) {
			il.limiters.Delete(key)
		}
		return true
	})
}

// RateLimitByIP creates a hard per-IP limiting middleware with the
// given profile.
func RateLimitByIP(config RateLimitConfig) Middleware {
	il := &ipLimiter{
		rate:        rate.Limit(float64(config.RequestsPerWindow) / config.Window.Seconds()),
		burst:       config.Burst,
		lastCleanup: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			key := ClientIP(r)
			limiter := il.get(key)

			if !limiter.Allow() {
				reservation := limiter.Reserve()
				delay := reservation.Delay()
				reservation.Cancel() // just probing for Retry-After

				retryAfter := max(int(delay.Seconds()), 1)

				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", config.RequestsPerWindow))
				w.Header().Set("X-RateLimit-Window", config.Window.String())

				log.Warn("flood limit exceeded",
					"ip", key,
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
				)

				WriteJSON(w, http.StatusTooManyRequests, map[string]string{
					"error": "rate_limit_exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
