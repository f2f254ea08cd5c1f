package tokenx

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("tokenx: malformed token")
	ErrAlgMismatch = errors.New("tokenx: algorithm mismatch")
	ErrUnknownKID  = errors.New("tokenx: unknown kid")
	ErrInvalidSig  = errors.New("tokenx: invalid signature")

	ErrIssuer       = errors.New("tokenx: issuer mismatch")
	ErrAudience     = errors.New("tokenx: audience mismatch")
	ErrScope        = errors.New("tokenx: scope mismatch")
	ErrMissingClaim = errors.New("tokenx: required claim missing")
	ErrExpired      = errors.New("tokenx: token expired")
)

// Verifier validates signed score tokens against the loaded key
// material and the fixed issuer/audience/scope expectations.
//
// Claim checks run explicitly and in a fixed order (signature, then
// iss/aud/scope/required, then expiry) instead of relying on the jwt
// library's built-in validation, so rejection reasons are stable: an
// expired token with the wrong audience is invalid, not expired.
type Verifier struct {
	Keys     *KeyStore
	Issuer   string
	Audience string
	Scope    string

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Verify runs the full validation pipeline and returns the parsed
// claims on success.
func (v *Verifier) Verify(tokenStr string) (*ScoreClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &ScoreClaims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: missing kid header", ErrUnknownKID)
		}

		pub, ok := v.Keys.VerificationKey(kid)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKID, kid)
		}

		return ed25519.PublicKey(pub), nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := token.Claims.(*ScoreClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidSig
	}

	if err := claims.ValidateRequired(); err != nil {
		return nil, err
	}
	if err := claims.ValidateIssuer(v.Issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateAudience(v.Audience); err != nil {
		return nil, err
	}
	if err := claims.ValidateScope(v.Scope); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiryAt(v.now()); err != nil {
		// Expired tokens pass every other check, so hand the claims
		// back with the error: callers echo the correlation id when
		// rejecting.
		return claims, err
	}

	return claims, nil
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

// mapParseError normalizes golang-jwt errors onto our sentinels so
// callers can branch with errors.Is.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownKID):
		return err
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidSig, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// Covers unexpected signing methods when the keyfunc succeeded.
		return fmt.Errorf("%w: %v", ErrAlgMismatch, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidSig, err)
	}
}
