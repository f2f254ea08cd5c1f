package tokenx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTTL is the fixed validity window for score tokens. The whole
// issue -> verify round trip has to finish inside it, so it doubles as
// the end-to-end deadline. No jitter is applied.
const TokenTTL = 45 * time.Second

// ScoreClaims is the signed payload of a score token. Every field is
// required at verification time; a token missing any of them is
// rejected outright.
type ScoreClaims struct {
	jwt.RegisteredClaims

	// Nonce is a 128-bit single-use random value. It is consumed on the
	// first successful verification, which is what makes the token
	// single-use.
	Nonce string `json:"nonce,omitempty"`

	// CorrelationID traces the request across issuance and verification.
	CorrelationID string `json:"correlation_id,omitempty"`

	// RequesterID is a non-reversible identifier for the calling client,
	// derived from the domain portion of its contact email.
	RequesterID string `json:"requester_id,omitempty"`

	// Scope is the fixed capability this token grants, e.g. "score:single".
	Scope string `json:"scope,omitempty"`

	// PIIDigest is a one-way hash of the sensitive identifier being
	// scored. The raw identifier never appears in the token.
	PIIDigest string `json:"pii_digest,omitempty"`
}

// ClaimsInput carries everything NewScoreClaims needs. The caller is
// responsible for having validated and digested the raw input already.
type ClaimsInput struct {
	Issuer        string
	Audience      string
	Scope         string
	CorrelationID string
	RequesterID   string
	PIIDigest     string
	Now           time.Time
	TTL           time.Duration
}

// NewScoreClaims builds a complete claim set with a fresh nonce and
// token id. Pure function of the input, the clock, and randomness.
func NewScoreClaims(in ClaimsInput) ScoreClaims {
	ttl := in.TTL
	if ttl <= 0 {
		ttl = TokenTTL
	}

	return ScoreClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    in.Issuer,
			Audience:  jwt.ClaimStrings{in.Audience},
			IssuedAt:  jwt.NewNumericDate(in.Now),
			ExpiresAt: jwt.NewNumericDate(in.Now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Nonce:         NewNonce(),
		CorrelationID: in.CorrelationID,
		RequesterID:   in.RequesterID,
		Scope:         in.Scope,
		PIIDigest:     in.PIIDigest,
	}
}

// NewNonce returns a URL-safe 128-bit random value for the nonce claim.
func NewNonce() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks if the issuer matches the expected value.
func (c *ScoreClaims) ValidateIssuer(expected string) error {
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks that the expected audience is present.
func (c *ScoreClaims) ValidateAudience(expected string) error {
	for _, aud := range c.Audience {
		if aud == expected {
			return nil
		}
	}
	return ErrAudience
}

// ValidateScope checks the capability string.
func (c *ScoreClaims) ValidateScope(expected string) error {
	if c.Scope != expected {
		return ErrScope
	}
	return nil
}

// ValidateRequired ensures every claim the verifier depends on is
// actually present. Tokens from older or buggy issuers that omit a
// claim are invalid, full stop.
func (c *ScoreClaims) ValidateRequired() error {
	switch {
	case c.Issuer == "",
		len(c.Audience) == 0,
		c.IssuedAt == nil,
		c.ExpiresAt == nil,
		c.ID == "",
		c.Nonce == "",
		c.CorrelationID == "",
		c.RequesterID == "",
		c.Scope == "",
		c.PIIDigest == "":
		return ErrMissingClaim
	}
	return nil
}

// ValidateExpiryAt reports whether the token is expired as of now.
func (c *ScoreClaims) ValidateExpiryAt(now time.Time) error {
	if c.ExpiresAt == nil || now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	return nil
}
