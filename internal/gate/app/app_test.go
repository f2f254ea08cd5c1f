package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crediflow/scoregate/internal/gate/domain"
	"github.com/crediflow/scoregate/internal/gate/scoring"
	"github.com/crediflow/scoregate/pkg/cryptox"
)

func checkerConfig(t *testing.T) Config {
	t.Helper()

	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)

	cfg := LoadConfig()
	cfg.PrimaryKeyID = "key-1"
	cfg.PrimaryKeyFile = writeTempKey(t, pemKey)
	cfg.LogFormat = "text"
	return cfg
}

func TestCheckerDefaultsToStubScorer(t *testing.T) {
	application, err := New(ModeChecker, checkerConfig(t))
	require.NoError(t, err)
	require.IsType(t, scoring.Stub{}, application.checkerService.Scorer)
}

func TestWithScorerInjectsCollaborator(t *testing.T) {
	marker := scoring.Func(func(context.Context, domain.ScoreRequest, domain.IdentityContext) (domain.ScoreResult, error) {
		return domain.ScoreResult{Score: 999, RiskBand: "custom", ComputedAt: time.Now().UTC()}, nil
	})

	application, err := New(ModeChecker, checkerConfig(t), WithScorer(marker))
	require.NoError(t, err)

	res, err := application.checkerService.Scorer.ComputeScore(
		context.Background(), domain.ScoreRequest{}, domain.IdentityContext{},
	)
	require.NoError(t, err)
	require.Equal(t, 999, res.Score)
	require.Equal(t, "custom", res.RiskBand)
}

func TestIssuerModeIgnoresScorerOption(t *testing.T) {
	application, err := New(ModeIssuer, checkerConfig(t), WithScorer(scoring.Stub{}))
	require.NoError(t, err)
	require.Nil(t, application.checkerService)
	require.NotNil(t, application.issuerService)
}
