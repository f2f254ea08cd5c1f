package tokenx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/crediflow/scoregate/pkg/cryptox"
	"github.com/crediflow/scoregate/pkg/tokenx"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "scoregate-issuer"
	testAudience = "scoregate-checker"
	testScope    = "score:single"
)

// newKeyMaterial generates a fresh Ed25519 private key for tests.
func newKeyMaterial(t *testing.T, kid string) tokenx.KeyMaterial {
	t.Helper()

	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)

	return tokenx.KeyMaterial{ID: kid, PEM: pemKey}
}

func testClaims(now time.Time) tokenx.ScoreClaims {
	return tokenx.NewScoreClaims(tokenx.ClaimsInput{
		Issuer:        testIssuer,
		Audience:      testAudience,
		Scope:         testScope,
		CorrelationID: "11111111-2222-4333-8444-555555555555",
		RequesterID:   "req-digest",
		PIIDigest:     "pii-digest",
		Now:           now,
	})
}

func TestClaimsTTLIsExactly45Seconds(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	claims := testClaims(now)

	require.Equal(t, now, claims.IssuedAt.Time)
	require.Equal(t, 45*time.Second, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestNonceIsFreshPerClaimSet(t *testing.T) {
	now := time.Now().UTC()

	seen := make(map[string]struct{})
	for range 50 {
		c := testClaims(now)
		require.NotEmpty(t, c.Nonce)
		require.NotContains(t, seen, c.Nonce)
		seen[c.Nonce] = struct{}{}
	}
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	ks, err := tokenx.NewKeyStore(newKeyMaterial(t, "key-a"), nil)
	require.NoError(t, err)

	signer, err := ks.Signer()
	require.NoError(t, err)
	require.NoError(t, signer.Validate())
	require.Equal(t, "EdDSA", signer.Alg())
	require.Equal(t, "key-a", signer.KID())

	now := time.Now().UTC()
	claims := testClaims(now)

	token, err := signer.Sign(claims)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	v := &tokenx.Verifier{Keys: ks, Issuer: testIssuer, Audience: testAudience, Scope: testScope}

	got, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, claims.Nonce, got.Nonce)
	require.Equal(t, claims.CorrelationID, got.CorrelationID)
	require.Equal(t, claims.PIIDigest, got.PIIDigest)
	require.Equal(t, claims.ID, got.ID)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	ks, err := tokenx.NewKeyStore(newKeyMaterial(t, "key-a"), nil)
	require.NoError(t, err)

	signer, err := ks.Signer()
	require.NoError(t, err)

	token, err := signer.Sign(testClaims(time.Now().UTC()))
	require.NoError(t, err)

	v := &tokenx.Verifier{Keys: ks, Issuer: testIssuer, Audience: testAudience, Scope: testScope}

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	// Flip one character of the claims segment to a different value
	// from the base64url alphabet.
	claimsSeg := []byte(parts[1])
	mid := len(claimsSeg) / 2
	if claimsSeg[mid] == 'A' {
		claimsSeg[mid] = 'B'
	} else {
		claimsSeg[mid] = 'A'
	}
	tampered := parts[0] + "." + string(claimsSeg) + "." + parts[2]

	_, err = v.Verify(tampered)
	require.Error(t, err)

	// Same for the signature segment.
	sigSeg := []byte(parts[2])
	if sigSeg[0] == 'A' {
		sigSeg[0] = 'B'
	} else {
		sigSeg[0] = 'A'
	}
	tampered = parts[0] + "." + parts[1] + "." + string(sigSeg)

	_, err = v.Verify(tampered)
	require.ErrorIs(t, err, tokenx.ErrInvalidSig)
}

func TestVerifyRejectsUnknownKey(t *testing.T) {
	// Sign with a key the verifier has never seen.
	signerStore, err := tokenx.NewKeyStore(newKeyMaterial(t, "rogue"), nil)
	require.NoError(t, err)
	signer, err := signerStore.Signer()
	require.NoError(t, err)

	token, err := signer.Sign(testClaims(time.Now().UTC()))
	require.NoError(t, err)

	verifyStore, err := tokenx.NewKeyStore(newKeyMaterial(t, "known"), nil)
	require.NoError(t, err)

	v := &tokenx.Verifier{Keys: verifyStore, Issuer: testIssuer, Audience: testAudience, Scope: testScope}

	_, err = v.Verify(token)
	require.ErrorIs(t, err, tokenx.ErrUnknownKID)
}

func TestRotationOverlap(t *testing.T) {
	oldKey := newKeyMaterial(t, "key-old")
	newKey := newKeyMaterial(t, "key-new")

	oldStore, err := tokenx.NewKeyStore(oldKey, nil)
	require.NoError(t, err)
	oldSigner, err := oldStore.Signer()
	require.NoError(t, err)

	newStore, err := tokenx.NewKeyStore(newKey, nil)
	require.NoError(t, err)
	newSigner, err := newStore.Signer()
	require.NoError(t, err)

	oldToken, err := oldSigner.Sign(testClaims(time.Now().UTC()))
	require.NoError(t, err)
	newToken, err := newSigner.Sign(testClaims(time.Now().UTC()))
	require.NoError(t, err)

	// During the rotation window the verifier holds both keys.
	overlap, err := tokenx.NewKeyStore(newKey, &oldKey)
	require.NoError(t, err)

	v := &tokenx.Verifier{Keys: overlap, Issuer: testIssuer, Audience: testAudience, Scope: testScope}

	_, err = v.Verify(oldToken)
	require.NoError(t, err)
	_, err = v.Verify(newToken)
	require.NoError(t, err)

	// After the overlap ends only the new primary remains.
	afterwards, err := tokenx.NewKeyStore(newKey, nil)
	require.NoError(t, err)

	v = &tokenx.Verifier{Keys: afterwards, Issuer: testIssuer, Audience: testAudience, Scope: testScope}

	_, err = v.Verify(newToken)
	require.NoError(t, err)
	_, err = v.Verify(oldToken)
	require.ErrorIs(t, err, tokenx.ErrUnknownKID)
}

func TestVerifyExpired(t *testing.T) {
	ks, err := tokenx.NewKeyStore(newKeyMaterial(t, "key-a"), nil)
	require.NoError(t, err)
	signer, err := ks.Signer()
	require.NoError(t, err)

	issuedAt := time.Now().UTC()
	token, err := signer.Sign(testClaims(issuedAt))
	require.NoError(t, err)

	v := &tokenx.Verifier{
		Keys:     ks,
		Issuer:   testIssuer,
		Audience: testAudience,
		Scope:    testScope,
		Now:      func() time.Time { return issuedAt.Add(46 * time.Second) },
	}

	_, err = v.Verify(token)
	require.ErrorIs(t, err, tokenx.ErrExpired)
}

func TestClaimChecksRunBeforeExpiry(t *testing.T) {
	// An expired token with the wrong audience is invalid, not expired:
	// claim checks come first in the pipeline.
	ks, err := tokenx.NewKeyStore(newKeyMaterial(t, "key-a"), nil)
	require.NoError(t, err)
	signer, err := ks.Signer()
	require.NoError(t, err)

	issuedAt := time.Now().UTC()
	claims := testClaims(issuedAt)
	claims.Audience = []string{"someone-else"}

	token, err := signer.Sign(claims)
	require.NoError(t, err)

	v := &tokenx.Verifier{
		Keys:     ks,
		Issuer:   testIssuer,
		Audience: testAudience,
		Scope:    testScope,
		Now:      func() time.Time { return issuedAt.Add(time.Minute) },
	}

	_, err = v.Verify(token)
	require.ErrorIs(t, err, tokenx.ErrAudience)
}

func TestVerifyRejectsMissingClaims(t *testing.T) {
	ks, err := tokenx.NewKeyStore(newKeyMaterial(t, "key-a"), nil)
	require.NoError(t, err)
	signer, err := ks.Signer()
	require.NoError(t, err)

	claims := testClaims(time.Now().UTC())
	claims.PIIDigest = ""

	token, err := signer.Sign(claims)
	require.NoError(t, err)

	v := &tokenx.Verifier{Keys: ks, Issuer: testIssuer, Audience: testAudience, Scope: testScope}

	_, err = v.Verify(token)
	require.ErrorIs(t, err, tokenx.ErrMissingClaim)
}

func TestVerifyRejectsWrongIssuerAndScope(t *testing.T) {
	ks, err := tokenx.NewKeyStore(newKeyMaterial(t, "key-a"), nil)
	require.NoError(t, err)
	signer, err := ks.Signer()
	require.NoError(t, err)

	v := &tokenx.Verifier{Keys: ks, Issuer: testIssuer, Audience: testAudience, Scope: testScope}

	claims := testClaims(time.Now().UTC())
	claims.Issuer = "impostor"
	token, err := signer.Sign(claims)
	require.NoError(t, err)
	_, err = v.Verify(token)
	require.ErrorIs(t, err, tokenx.ErrIssuer)

	claims = testClaims(time.Now().UTC())
	claims.Scope = "score:batch"
	token, err = signer.Sign(claims)
	require.NoError(t, err)
	_, err = v.Verify(token)
	require.ErrorIs(t, err, tokenx.ErrScope)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	ks, err := tokenx.NewKeyStore(newKeyMaterial(t, "key-a"), nil)
	require.NoError(t, err)

	v := &tokenx.Verifier{Keys: ks, Issuer: testIssuer, Audience: testAudience, Scope: testScope}

	_, err = v.Verify("definitely-not-a-jwt")
	require.ErrorIs(t, err, tokenx.ErrMalformed)
}
