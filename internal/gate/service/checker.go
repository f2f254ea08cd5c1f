package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crediflow/scoregate/internal/gate/domain"
	"github.com/crediflow/scoregate/internal/gate/ledger"
	"github.com/crediflow/scoregate/internal/gate/metrics"
	"github.com/crediflow/scoregate/pkg/slogx"
	"github.com/crediflow/scoregate/pkg/tokenx"
)

// Rejection kinds, matching the wire error strings.
var (
	ErrInvalidToken = errors.New("invalid_token")
	ErrTokenExpired = errors.New("token_expired")
	ErrTokenReplay  = errors.New("token_replay")
)

// Rejection wraps a rejection kind with the correlation id recovered
// from the token, when there was one to recover.
type Rejection struct {
	Kind          error
	CorrelationID string
}

func (r *Rejection) Error() string { return r.Kind.Error() }
func (r *Rejection) Unwrap() error { return r.Kind }

// Scorer is the external scoring collaborator. It consumes the caller's
// identity fields plus the validated token context; its internals are
// out of this core's hands, and the checker only invokes it after a
// token is accepted.
type Scorer interface {
	ComputeScore(ctx context.Context, req domain.ScoreRequest, id domain.IdentityContext) (domain.ScoreResult, error)
}

// Checker runs the verification state machine and, on acceptance,
// hands the validated identity to the scoring collaborator.
type Checker struct {
	Verifier *tokenx.Verifier
	Ledger   ledger.Ledger
	Scorer   Scorer

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// CheckResult is the outcome of an accepted verification.
type CheckResult struct {
	Result        domain.ScoreResult
	CorrelationID string
}

// Check validates the presented token and runs the protected scoring
// computation over req. Rejections come back as *Rejection; anything
// else is an internal failure.
func (s *Checker) Check(ctx context.Context, rawToken string, req domain.ScoreRequest) (*CheckResult, error) {
	if rawToken == "" {
		metrics.Verifications.WithLabelValues("invalid_token").Inc()
		return nil, &Rejection{Kind: ErrInvalidToken}
	}

	if tokenx.IsLegacy(rawToken) {
		return s.checkLegacy(ctx, rawToken, req)
	}

	return s.checkSigned(ctx, rawToken, req)
}

// checkSigned is the standard path: signature, claims, expiry, replay.
func (s *Checker) checkSigned(ctx context.Context, rawToken string, req domain.ScoreRequest) (*CheckResult, error) {
	log := slogx.FromContext(ctx)

	claims, err := s.Verifier.Verify(rawToken)
	if err != nil {
		if errors.Is(err, tokenx.ErrExpired) {
			metrics.Verifications.WithLabelValues("token_expired").Inc()
			return nil, &Rejection{Kind: ErrTokenExpired, CorrelationID: claims.CorrelationID}
		}
		metrics.Verifications.WithLabelValues("invalid_token").Inc()
		log.Info("token rejected", "reason", err.Error())
		return nil, &Rejection{Kind: ErrInvalidToken}
	}

	if err := s.Ledger.TryConsume(ctx, claims.Nonce, claims.ExpiresAt.Time); err != nil {
		if errors.Is(err, ledger.ErrReplay) {
			metrics.Verifications.WithLabelValues("token_replay").Inc()
			// Replay means a caller bug or an attack; either way it
			// warrants more than an info line.
			log.Warn("token replay detected",
				"token_id", claims.ID,
				"correlation_id", claims.CorrelationID,
				"requester_id", claims.RequesterID,
			)
			return nil, &Rejection{Kind: ErrTokenReplay, CorrelationID: claims.CorrelationID}
		}
		return nil, fmt.Errorf("check: consume nonce: %w", err)
	}

	return s.accept(ctx, req, domain.IdentityContext{
		PIIDigest:     claims.PIIDigest,
		RequesterID:   claims.RequesterID,
		CorrelationID: claims.CorrelationID,
		TokenID:       claims.ID,
		Scope:         claims.Scope,
	})
}

// checkLegacy handles the unsigned demo format: no signature or claim
// checks, but expiry and replay are enforced exactly like the signed
// path. Transitional, kept only until the last caller migrates.
func (s *Checker) checkLegacy(ctx context.Context, rawToken string, req domain.ScoreRequest) (*CheckResult, error) {
	log := slogx.FromContext(ctx)

	claims, err := tokenx.ParseLegacy(rawToken)
	if err != nil {
		metrics.Verifications.WithLabelValues("invalid_token").Inc()
		return nil, &Rejection{Kind: ErrInvalidToken}
	}

	expiresAt := claims.ExpiresAt()
	if s.now().After(expiresAt) {
		metrics.Verifications.WithLabelValues("token_expired").Inc()
		return nil, &Rejection{Kind: ErrTokenExpired, CorrelationID: claims.CorrelationID}
	}

	if err := s.Ledger.TryConsume(ctx, claims.Nonce, expiresAt); err != nil {
		if errors.Is(err, ledger.ErrReplay) {
			metrics.Verifications.WithLabelValues("token_replay").Inc()
			log.Warn("legacy token replay detected", "correlation_id", claims.CorrelationID)
			return nil, &Rejection{Kind: ErrTokenReplay, CorrelationID: claims.CorrelationID}
		}
		return nil, fmt.Errorf("check: consume nonce: %w", err)
	}

	return s.accept(ctx, req, domain.IdentityContext{
		CorrelationID: claims.CorrelationID,
	})
}

// accept is the terminal ACCEPTED state: count it and hand off to the
// scoring collaborator.
func (s *Checker) accept(ctx context.Context, req domain.ScoreRequest, id domain.IdentityContext) (*CheckResult, error) {
	log := slogx.FromContext(ctx)

	metrics.Verifications.WithLabelValues("accepted").Inc()
	log.Info("token accepted",
		"token_id", id.TokenID,
		"correlation_id", id.CorrelationID,
	)

	result, err := s.Scorer.ComputeScore(ctx, req, id)
	if err != nil {
		return nil, fmt.Errorf("check: compute score: %w", err)
	}

	return &CheckResult{Result: result, CorrelationID: id.CorrelationID}, nil
}

func (s *Checker) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
