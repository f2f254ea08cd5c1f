package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crediflow/scoregate/internal/gate/domain"
	"github.com/crediflow/scoregate/internal/gate/metrics"
	"github.com/crediflow/scoregate/pkg/slogx"
	"github.com/crediflow/scoregate/pkg/tokenx"
)

// Issuer mints single-use score tokens: validate the caller's input,
// record the soft rate windows, sign with the primary key.
type Issuer struct {
	Signer  tokenx.Signer
	Limiter Limiter

	IssuerName string
	Audience   string
	Scope      string
	TTL        time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// IssuedToken is the issuance result handed back to the caller.
type IssuedToken struct {
	Token         string
	TTLSeconds    int
	CorrelationID string
	IssuedAt      time.Time
}

// Issue validates req and returns a freshly signed token. The caller's
// correlation id is propagated when present; otherwise a new one is
// generated. Rate windows are recorded but never block: exceedances
// are logged and counted only.
func (s *Issuer) Issue(ctx context.Context, req domain.ScoreRequest, correlationID string) (*IssuedToken, error) {
	log := slogx.FromContext(ctx)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	piiDigest := domain.PIIDigest(req.Identifier)
	requesterID := domain.RequesterID(req.Email)

	decision := s.Limiter.Record(piiDigest, requesterID)
	if decision.Subject.Exceeded {
		metrics.RateLimitExceeded.WithLabelValues("subject").Inc()
		log.Warn("subject rate window exceeded",
			"pii_digest", piiDigest,
			"count", decision.Subject.Count,
			"correlation_id", correlationID,
		)
	}
	if decision.Requester.Exceeded {
		metrics.RateLimitExceeded.WithLabelValues("requester").Inc()
		log.Warn("requester rate window exceeded",
			"requester_id", requesterID,
			"count", decision.Requester.Count,
			"correlation_id", correlationID,
		)
	}

	now := s.now()
	ttl := s.TTL
	if ttl <= 0 {
		ttl = tokenx.TokenTTL
	}

	claims := tokenx.NewScoreClaims(tokenx.ClaimsInput{
		Issuer:        s.IssuerName,
		Audience:      s.Audience,
		Scope:         s.Scope,
		CorrelationID: correlationID,
		RequesterID:   requesterID,
		PIIDigest:     piiDigest,
		Now:           now,
		TTL:           ttl,
	})

	token, err := s.Signer.Sign(claims)
	if err != nil {
		return nil, fmt.Errorf("issue: %w", err)
	}

	metrics.TokensIssued.Inc()
	log.Info("token issued",
		"token_id", claims.ID,
		"correlation_id", correlationID,
		"requester_id", requesterID,
	)

	return &IssuedToken{
		Token:         token,
		TTLSeconds:    int(ttl.Seconds()),
		CorrelationID: correlationID,
		IssuedAt:      now,
	}, nil
}

func (s *Issuer) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
