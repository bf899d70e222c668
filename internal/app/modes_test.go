package app

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictswipe/predictd/internal/config"
	"github.com/predictswipe/predictd/internal/crypto"
)

// Well-known throwaway key; never holds funds.
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testApp(cfg config.Config) *App {
	return New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBuildBetServiceRejectsUnparsableStake(t *testing.T) {
	cfg := config.Defaults()
	cfg.Markets.StakeWei = "not-a-number"
	a := testApp(cfg)

	svc, err := a.buildBetService(&Dependencies{})

	require.Error(t, err)
	assert.Nil(t, svc)
	assert.Contains(t, err.Error(), "stake_wei")
}

func TestBuildBetServiceUsesConfiguredStake(t *testing.T) {
	cfg := config.Defaults()
	cfg.Markets.StakeWei = "25000"
	a := testApp(cfg)

	signer, err := crypto.NewSigner(testKeyHex, cfg.Chain.ChainID)
	require.NoError(t, err)

	svc, err := a.buildBetService(&Dependencies{Signer: signer})

	require.NoError(t, err)
	assert.Equal(t, "25000", svc.Stake().String())
}

func TestParseSide(t *testing.T) {
	side, err := parseSide(" A ")
	require.NoError(t, err)
	assert.Equal(t, "option_a", string(side))

	side, err = parseSide("option_b")
	require.NoError(t, err)
	assert.Equal(t, "option_b", string(side))

	_, err = parseSide("maybe")
	require.Error(t, err)
}
