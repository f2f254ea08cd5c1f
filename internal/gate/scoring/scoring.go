// Package scoring holds the seam to the external credit-score
// computation. The real model lives elsewhere; this package only
// provides the adapters the checker is wired with.
package scoring

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/crediflow/scoregate/internal/gate/domain"
)

// Func adapts a plain function to the checker's Scorer interface.
type Func func(ctx context.Context, req domain.ScoreRequest, id domain.IdentityContext) (domain.ScoreResult, error)

func (f Func) ComputeScore(ctx context.Context, req domain.ScoreRequest, id domain.IdentityContext) (domain.ScoreResult, error) {
	return f(ctx, req, id)
}

// Stub is a deterministic placeholder used in dev wiring and tests:
// it derives a stable pseudo-score from the PII digest so repeated
// calls for one subject agree. Production wiring replaces this with
// the real collaborator.
type Stub struct{}

func (Stub) ComputeScore(_ context.Context, _ domain.ScoreRequest, id domain.IdentityContext) (domain.ScoreResult, error) {
	var seed byte
	if b, err := hex.DecodeString(id.PIIDigest); err == nil && len(b) > 0 {
		seed = b[0]
	}

	// Map onto the conventional 300-850 range.
	score := 300 + int(seed)*550/255

	band := "subprime"
	switch {
	case score >= 720:
		band = "prime"
	case score >= 580:
		band = "near-prime"
	}

	return domain.ScoreResult{
		Score:      score,
		RiskBand:   band,
		ComputedAt: time.Now().UTC(),
	}, nil
}
