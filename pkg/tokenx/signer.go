package tokenx

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrSigning reports a failure to produce a signed token. Like key
// loading, this is issuer misconfiguration rather than caller error.
var ErrSigning = errors.New("tokenx: signing failed")

// Signer produces compact signed tokens from claims.
type Signer interface {
	Alg() string
	KID() string
	Sign(ScoreClaims) (string, error)
	Validate() error
}

// EdDSASigner signs score tokens with Ed25519. The only algorithm this
// service issues; the verifier rejects everything else.
type EdDSASigner struct {
	kid string
	key ed25519.PrivateKey
	alg string
}

func newEdDSASigner(kid string, key ed25519.PrivateKey) *EdDSASigner {
	return &EdDSASigner{
		kid: kid,
		key: key,
		alg: jwt.SigningMethodEdDSA.Alg(),
	}
}

func (s *EdDSASigner) Alg() string { return s.alg }
func (s *EdDSASigner) KID() string { return s.kid }

// Sign serializes and signs the claims. The header carries alg and kid
// so the verifier can select the matching key without guessing.
func (s *EdDSASigner) Sign(claims ScoreClaims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	t.Header["kid"] = s.kid

	signed, err := t.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return signed, nil
}

// Validate sanity-checks the key material.
func (s *EdDSASigner) Validate() error {
	if len(s.key) != ed25519.PrivateKeySize {
		return fmt.Errorf("%w: invalid Ed25519 private key size", ErrSigning)
	}
	if s.kid == "" {
		return fmt.Errorf("%w: empty kid", ErrSigning)
	}
	return nil
}
