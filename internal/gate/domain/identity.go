package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// PIIDigest returns the hex-encoded SHA-256 of the sensitive identifier
// being scored. The raw identifier never leaves the request handler;
// only this digest travels in claims, logs, and rate-limit keys.
func PIIDigest(identifier string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(identifier)))
	return hex.EncodeToString(sum[:])
}

// RequesterID derives a non-reversible identifier for the calling
// client from the domain portion of its contact email. All callers
// from the same organisation share one requester id, which is what the
// bulk-abuse rate window keys on.
func RequesterID(email string) string {
	addr := strings.ToLower(strings.TrimSpace(email))
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		addr = addr[at+1:]
	}

	sum := sha256.Sum256([]byte(addr))
	return hex.EncodeToString(sum[:])
}

// IdentityContext is what an accepted token resolves to: the validated,
// already-digested identity handed to the scoring collaborator.
type IdentityContext struct {
	PIIDigest     string
	RequesterID   string
	CorrelationID string
	TokenID       string
	Scope         string
}

// ScoreResult is the outcome of the external scoring computation. Its
// internals are the collaborator's business; this core only relays it.
type ScoreResult struct {
	Score      int       `json:"score"`
	RiskBand   string    `json:"risk_band"`
	ComputedAt time.Time `json:"computed_at"`
}
