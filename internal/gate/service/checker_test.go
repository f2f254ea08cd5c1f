package service_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crediflow/scoregate/internal/gate/domain"
	"github.com/crediflow/scoregate/internal/gate/ledger"
	"github.com/crediflow/scoregate/internal/gate/scoring"
	"github.com/crediflow/scoregate/internal/gate/service"
	"github.com/crediflow/scoregate/pkg/tokenx"
)

// newTestPair wires an issuer and a checker around one key store, the
// way the two processes share key material in production.
func newTestPair(t *testing.T) (*service.Issuer, *service.Checker) {
	t.Helper()

	ks := newTestKeyStore(t, "key-1")
	iss := newTestIssuer(t, ks)

	chk := &service.Checker{
		Verifier: &tokenx.Verifier{Keys: ks, Issuer: testIssuer, Audience: testAudience, Scope: testScope},
		Ledger:   ledger.NewMemory(ledger.DefaultSweepInterval, nil),
		Scorer:   scoring.Stub{},
	}
	return iss, chk
}

func TestIssueThenVerifyOnce(t *testing.T) {
	iss, chk := newTestPair(t)
	ctx := context.Background()

	issued, err := iss.Issue(ctx, validRequest(), "")
	require.NoError(t, err)
	require.Equal(t, 45, issued.TTLSeconds)

	res, err := chk.Check(ctx, issued.Token, validRequest())
	require.NoError(t, err)
	require.Equal(t, issued.CorrelationID, res.CorrelationID)
	require.GreaterOrEqual(t, res.Result.Score, 300)
	require.LessOrEqual(t, res.Result.Score, 850)
	require.NotEmpty(t, res.Result.RiskBand)

	// Same token again: the nonce is spent.
	_, err = chk.Check(ctx, issued.Token, validRequest())
	var rej *service.Rejection
	require.ErrorAs(t, err, &rej)
	require.ErrorIs(t, rej, service.ErrTokenReplay)
	require.Equal(t, issued.CorrelationID, rej.CorrelationID)
}

func TestExpiredTokenRejectedWithCorrelationID(t *testing.T) {
	iss, chk := newTestPair(t)
	ctx := context.Background()

	base := time.Now().UTC()
	iss.Now = func() time.Time { return base }
	chk.Verifier.Now = func() time.Time { return base.Add(46 * time.Second) }

	issued, err := iss.Issue(ctx, validRequest(), "")
	require.NoError(t, err)

	_, err = chk.Check(ctx, issued.Token, validRequest())
	var rej *service.Rejection
	require.ErrorAs(t, err, &rej)
	require.ErrorIs(t, rej, service.ErrTokenExpired)
	require.Equal(t, issued.CorrelationID, rej.CorrelationID)
}

func TestFreshTokenSucceedsAfterOldOneExpires(t *testing.T) {
	iss, chk := newTestPair(t)
	ctx := context.Background()

	base := time.Now().UTC()
	iss.Now = func() time.Time { return base }
	chk.Verifier.Now = func() time.Time { return base.Add(46 * time.Second) }

	stale, err := iss.Issue(ctx, validRequest(), "")
	require.NoError(t, err)

	_, err = chk.Check(ctx, stale.Token, validRequest())
	require.ErrorIs(t, err, service.ErrTokenExpired)

	// Reissue at the checker's current time.
	iss.Now = func() time.Time { return base.Add(46 * time.Second) }
	fresh, err := iss.Issue(ctx, validRequest(), "")
	require.NoError(t, err)

	res, err := chk.Check(ctx, fresh.Token, validRequest())
	require.NoError(t, err)
	require.Equal(t, fresh.CorrelationID, res.CorrelationID)
}

func TestEmptyAndGarbageTokensAreInvalid(t *testing.T) {
	_, chk := newTestPair(t)
	ctx := context.Background()

	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		_, err := chk.Check(ctx, raw, validRequest())
		require.ErrorIs(t, err, service.ErrInvalidToken, "token %q", raw)
	}
}

func TestTokenFromUnknownKeyIsInvalid(t *testing.T) {
	_, chk := newTestPair(t)
	ctx := context.Background()

	otherIss := newTestIssuer(t, newTestKeyStore(t, "key-rogue"))
	issued, err := otherIss.Issue(ctx, validRequest(), "")
	require.NoError(t, err)

	_, err = chk.Check(ctx, issued.Token, validRequest())
	require.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestConcurrentVerificationsAcceptExactlyOne(t *testing.T) {
	iss, chk := newTestPair(t)
	ctx := context.Background()

	issued, err := iss.Issue(ctx, validRequest(), "")
	require.NoError(t, err)

	const n = 32
	var accepted, replayed atomic.Int64
	start := make(chan struct{})
	var wg sync.WaitGroup

	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := chk.Check(ctx, issued.Token, validRequest())
			switch {
			case err == nil:
				accepted.Add(1)
			default:
				require.ErrorIs(t, err, service.ErrTokenReplay)
				replayed.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	require.Equal(t, int64(1), accepted.Load())
	require.Equal(t, int64(n-1), replayed.Load())
}

func legacyToken(t *testing.T, claims tokenx.LegacyClaims) string {
	t.Helper()

	data, err := json.Marshal(claims)
	require.NoError(t, err)
	return tokenx.LegacyPrefix + base64.RawURLEncoding.EncodeToString(data)
}

func TestLegacyTokenAcceptedOnceThenReplayed(t *testing.T) {
	_, chk := newTestPair(t)
	ctx := context.Background()

	raw := legacyToken(t, tokenx.LegacyClaims{
		Nonce:         "legacy-nonce-1",
		CorrelationID: "legacy-corr-1",
		Exp:           time.Now().Add(30 * time.Second).Unix(),
	})

	res, err := chk.Check(ctx, raw, validRequest())
	require.NoError(t, err)
	require.Equal(t, "legacy-corr-1", res.CorrelationID)

	_, err = chk.Check(ctx, raw, validRequest())
	var rej *service.Rejection
	require.ErrorAs(t, err, &rej)
	require.ErrorIs(t, rej, service.ErrTokenReplay)
	require.Equal(t, "legacy-corr-1", rej.CorrelationID)
}

func TestLegacyTokenStillExpires(t *testing.T) {
	_, chk := newTestPair(t)
	ctx := context.Background()

	raw := legacyToken(t, tokenx.LegacyClaims{
		Nonce:         "legacy-nonce-2",
		CorrelationID: "legacy-corr-2",
		Exp:           time.Now().Add(-time.Second).Unix(),
	})

	_, err := chk.Check(ctx, raw, validRequest())
	var rej *service.Rejection
	require.ErrorAs(t, err, &rej)
	require.ErrorIs(t, rej, service.ErrTokenExpired)
	require.Equal(t, "legacy-corr-2", rej.CorrelationID)
}

func TestMalformedLegacyPayloadIsInvalid(t *testing.T) {
	_, chk := newTestPair(t)

	_, err := chk.Check(context.Background(), "demo.%%%not-base64%%%", validRequest())
	require.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestAcceptedIdentityReachesScorer(t *testing.T) {
	iss, chk := newTestPair(t)
	ctx := context.Background()
	req := validRequest()

	var got domain.IdentityContext
	var gotReq domain.ScoreRequest
	chk.Scorer = scoring.Func(func(_ context.Context, r domain.ScoreRequest, id domain.IdentityContext) (domain.ScoreResult, error) {
		gotReq = r
		got = id
		return domain.ScoreResult{Score: 700, RiskBand: "near-prime", ComputedAt: time.Now().UTC()}, nil
	})

	issued, err := iss.Issue(ctx, req, "")
	require.NoError(t, err)

	_, err = chk.Check(ctx, issued.Token, req)
	require.NoError(t, err)

	require.Equal(t, req, gotReq)
	require.Equal(t, domain.PIIDigest(req.Identifier), got.PIIDigest)
	require.Equal(t, domain.RequesterID(req.Email), got.RequesterID)
	require.Equal(t, issued.CorrelationID, got.CorrelationID)
	require.Equal(t, testScope, got.Scope)
	require.NotEmpty(t, got.TokenID)
}
