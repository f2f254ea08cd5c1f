package tokenx

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LegacyPrefix marks the unsigned demo token format accepted for
// backward compatibility while callers migrate to signed tokens. This
// is a transitional policy, not a security boundary: legacy tokens
// skip signature and claim checks but still go through expiry and
// replay enforcement.
const LegacyPrefix = "demo."

// LegacyClaims is the payload of a demo token: base64 JSON, no
// signature, no issuer/audience/scope.
type LegacyClaims struct {
	Nonce         string `json:"nonce"`
	CorrelationID string `json:"correlation_id"`
	Exp           int64  `json:"exp"`
}

// ExpiresAt returns the expiry as a time.
func (c *LegacyClaims) ExpiresAt() time.Time {
	return time.Unix(c.Exp, 0).UTC()
}

// IsLegacy reports whether raw is in the unsigned demo format.
func IsLegacy(raw string) bool {
	return strings.HasPrefix(raw, LegacyPrefix)
}

// ParseLegacy decodes a demo token. Pre-migration emitters used both
// raw-URL and standard base64, so both alphabets are accepted.
func ParseLegacy(raw string) (*LegacyClaims, error) {
	if !IsLegacy(raw) {
		return nil, fmt.Errorf("%w: not a legacy token", ErrMalformed)
	}

	payload := strings.TrimPrefix(raw, LegacyPrefix)

	data, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.StdEncoding.DecodeString(payload); err != nil {
			return nil, fmt.Errorf("%w: bad base64 payload", ErrMalformed)
		}
	}

	var claims LegacyClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("%w: bad json payload", ErrMalformed)
	}

	if claims.Nonce == "" || claims.Exp == 0 {
		return nil, fmt.Errorf("%w: legacy token missing nonce or exp", ErrMissingClaim)
	}

	return &claims, nil
}
