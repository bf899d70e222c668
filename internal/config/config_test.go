package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	cfg.Chain.PredictionContract = testAddr
	cfg.Chain.TokenContract = testAddr
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, int64(839999), cfg.Chain.ChainID)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, cfg.Markets.IDs)
	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 30*time.Second, cfg.Markets.RefreshInterval.Duration)
	// The default RPC read rate has to cover one snapshot cycle's
	// concurrent reads of the default id set inside a single window.
	assert.GreaterOrEqual(t, cfg.Chain.ReadRateLimit, len(cfg.Markets.IDs))

	stake, ok := cfg.Markets.Stake()
	require.True(t, ok)
	assert.Equal(t, "10000000000000", stake.String())
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "turbo" }, "unknown mode"},
		{"missing wallet", func(c *Config) { c.Wallet.PrivateKey = "" }, "wallet"},
		{"empty rpc url", func(c *Config) { c.Chain.RPCURL = "" }, "rpc_url"},
		{"bad contract address", func(c *Config) { c.Chain.PredictionContract = "not-an-address" }, "prediction_contract"},
		{"no market ids", func(c *Config) { c.Markets.IDs = nil }, "markets: ids"},
		{"negative market id", func(c *Config) { c.Markets.IDs = []int64{-1} }, "must be positive"},
		{"bad stake", func(c *Config) { c.Markets.StakeWei = "1.5" }, "stake_wei"},
		{"zero stake", func(c *Config) { c.Markets.StakeWei = "0" }, "stake_wei"},
		{"zero read rate", func(c *Config) { c.Chain.ReadRateLimit = 0 }, "read_rate_limit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateWatchModeNeedsNoWallet(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "watch"
	cfg.Wallet.PrivateKey = ""
	require.NoError(t, cfg.Validate())
}

func TestDiscoverAllowsEmptyIDList(t *testing.T) {
	cfg := validConfig()
	cfg.Markets.IDs = nil
	cfg.Markets.Discover = true
	require.NoError(t, cfg.Validate())
}

func TestDurationRoundTrip(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "watch"
log_level = "debug"

[chain]
rpc_url = "http://localhost:8545"
chain_id = 31337
read_timeout = "5s"

[markets]
ids = [2, 4]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "watch", cfg.Mode)
	assert.Equal(t, "http://localhost:8545", cfg.Chain.RPCURL)
	assert.Equal(t, int64(31337), cfg.Chain.ChainID)
	assert.Equal(t, 5*time.Second, cfg.Chain.ReadTimeout.Duration)
	assert.Equal(t, []int64{2, 4}, cfg.Markets.IDs)
	// Untouched sections keep their defaults.
	assert.Equal(t, "10000000000000", cfg.Markets.StakeWei)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "watch"`), 0o600))

	t.Setenv("PREDICTD_CHAIN_RPC_URL", "https://rpc.example.test")
	t.Setenv("PREDICTD_MARKETS_IDS", "10, 11,12")
	t.Setenv("PREDICTD_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("PREDICTD_ARCHIVE_ENABLED", "true")
	t.Setenv("PREDICTD_CHAIN_CONFIRM_TIMEOUT", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.test", cfg.Chain.RPCURL)
	assert.Equal(t, []int64{10, 11, 12}, cfg.Markets.IDs)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, 45*time.Second, cfg.Chain.ConfirmTimeout.Duration)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}
