package service

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Two-tier soft rate limiting: a tight per-subject window so one
// identity cannot be scraped repeatedly, and a loose per-requester
// window to catch bulk abuse from a single client. The counters are
// independent so one window's state never corrupts the other's.
//
// Enforcement is soft in the current phase: exceeding a limit is
// recorded and logged, never rejected. That is deliberate policy, not
// an oversight — do not turn this into hard blocking.

// WindowConfig is one counting window.
type WindowConfig struct {
	Limit  int
	Window time.Duration
}

// Default windows for the two tiers.
var (
	DefaultSubjectWindow   = WindowConfig{Limit: 1, Window: 60 * time.Second}
	DefaultRequesterWindow = WindowConfig{Limit: 10, Window: 3600 * time.Second}
)

// RateCount is the outcome of recording one request against one window.
type RateCount struct {
	Count    int
	Exceeded bool
}

// RateDecision covers both windows for a single issuance.
type RateDecision struct {
	Subject   RateCount
	Requester RateCount
}

// Limiter records issuance attempts per identity. Injectable so tests
// get an isolated instance; production wiring creates exactly one per
// process at start-up.
type Limiter interface {
	Record(piiDigest, requesterID string) RateDecision
}

// SoftLimiter keeps per-identity counters in expiring caches. Counts
// reset when the window entry expires and the next Record starts a
// fresh one.
type SoftLimiter struct {
	subjectCfg   WindowConfig
	requesterCfg WindowConfig

	subjects   *gocache.Cache
	requesters *gocache.Cache
}

// NewSoftLimiter creates a limiter with the given windows. Zero-valued
// configs fall back to the defaults.
func NewSoftLimiter(subject, requester WindowConfig) *SoftLimiter {
	if subject.Limit <= 0 || subject.Window <= 0 {
		subject = DefaultSubjectWindow
	}
	if requester.Limit <= 0 || requester.Window <= 0 {
		requester = DefaultRequesterWindow
	}

	return &SoftLimiter{
		subjectCfg:   subject,
		requesterCfg: requester,
		subjects:     gocache.New(subject.Window, 5*time.Minute),
		requesters:   gocache.New(requester.Window, 5*time.Minute),
	}
}

// Record counts one issuance against both windows and reports whether
// either limit was exceeded. It never blocks the caller.
func (l *SoftLimiter) Record(piiDigest, requesterID string) RateDecision {
	return RateDecision{
		Subject:   bump(l.subjects, piiDigest, l.subjectCfg),
		Requester: bump(l.requesters, requesterID, l.requesterCfg),
	}
}

// bump atomically add-or-increments the window counter. Add fails if
// the key exists and Increment fails if it doesn't, so looping over
// the pair covers the window rolling over between the two calls.
func bump(c *gocache.Cache, key string, cfg WindowConfig) RateCount {
	for {
		if err := c.Add(key, 1, cfg.Window); err == nil {
			return RateCount{Count: 1, Exceeded: 1 > cfg.Limit}
		}
		if n, err := c.IncrementInt(key, 1); err == nil {
			return RateCount{Count: n, Exceeded: n > cfg.Limit}
		}
	}
}
