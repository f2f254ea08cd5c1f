package tokenx

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/crediflow/scoregate/pkg/cryptox"
)

// ErrKeyLoad reports absent or malformed key material at load time.
// This is a process-fatal misconfiguration, not a per-request error.
var ErrKeyLoad = errors.New("tokenx: key load failed")

// KeyRole tags a key's position in the rotation overlap. Roles are
// resolved at load time; rotation swaps the configuration and restarts
// the process, it is never a runtime mutation.
type KeyRole string

const (
	// RolePrimary signs new tokens and verifies.
	RolePrimary KeyRole = "primary"
	// RoleSecondary only verifies. It is the outgoing key during a
	// rotation window.
	RoleSecondary KeyRole = "secondary"
)

// KeyMaterial is one key as fetched from the secret store: an id and a
// PEM blob, which may be a PKCS8 private key or a PKIX public key.
type KeyMaterial struct {
	ID  string
	PEM []byte
}

// Key is loaded, parsed key material. Immutable once loaded.
type Key struct {
	ID     string
	Role   KeyRole
	Public ed25519.PublicKey

	private ed25519.PrivateKey // nil for verification-only keys
}

// CanSign reports whether this key carries private material.
func (k *Key) CanSign() bool { return k.private != nil }

// KeyStore holds the primary key and, during a rotation window, the
// outgoing secondary key. Replaced wholesale on restart, never mutated.
type KeyStore struct {
	primary   *Key
	secondary *Key
}

// NewKeyStore parses key material into a KeyStore. The primary is
// mandatory and must be Ed25519; the secondary is optional and only
// ever used for verification.
func NewKeyStore(primary KeyMaterial, secondary *KeyMaterial) (*KeyStore, error) {
	p, err := parseKey(primary, RolePrimary)
	if err != nil {
		return nil, err
	}

	ks := &KeyStore{primary: p}

	if secondary != nil {
		s, err := parseKey(*secondary, RoleSecondary)
		if err != nil {
			return nil, err
		}
		ks.secondary = s
	}

	return ks, nil
}

func parseKey(m KeyMaterial, role KeyRole) (*Key, error) {
	if m.ID == "" {
		return nil, fmt.Errorf("%w: %s key has no id", ErrKeyLoad, role)
	}
	if len(m.PEM) == 0 {
		return nil, fmt.Errorf("%w: %s key material is empty", ErrKeyLoad, role)
	}

	// Private PEM first: it yields both halves.
	if priv, err := cryptox.ParseEd25519Private(m.PEM); err == nil {
		return &Key{
			ID:      m.ID,
			Role:    role,
			Public:  priv.Public().(ed25519.PublicKey),
			private: priv,
		}, nil
	}

	pub, err := cryptox.ParseEd25519Public(m.PEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %s key %q: %v", ErrKeyLoad, role, m.ID, err)
	}

	return &Key{ID: m.ID, Role: role, Public: pub}, nil
}

// Primary returns the primary key.
func (ks *KeyStore) Primary() *Key { return ks.primary }

// Signer returns an EdDSA signer backed by the primary key. Fails if
// the primary was loaded from public-only material.
func (ks *KeyStore) Signer() (Signer, error) {
	if !ks.primary.CanSign() {
		return nil, fmt.Errorf("%w: primary key %q has no private material", ErrKeyLoad, ks.primary.ID)
	}
	return newEdDSASigner(ks.primary.ID, ks.primary.private), nil
}

// VerificationKey returns the public key for the given kid, trying the
// primary first and then the secondary if one is loaded.
func (ks *KeyStore) VerificationKey(kid string) (ed25519.PublicKey, bool) {
	if ks.primary.ID == kid {
		return ks.primary.Public, true
	}
	if ks.secondary != nil && ks.secondary.ID == kid {
		return ks.secondary.Public, true
	}
	return nil, false
}

// Keys returns the loaded keys in verification order.
func (ks *KeyStore) Keys() []*Key {
	keys := []*Key{ks.primary}
	if ks.secondary != nil {
		keys = append(keys, ks.secondary)
	}
	return keys
}
