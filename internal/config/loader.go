package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PREDICTD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDICTD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "PREDICTD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "PREDICTD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "PREDICTD_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "PREDICTD_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "PREDICTD_CHAIN_ID")
	setStr(&cfg.Chain.PredictionContract, "PREDICTD_CHAIN_PREDICTION_CONTRACT")
	setStr(&cfg.Chain.TokenContract, "PREDICTD_CHAIN_TOKEN_CONTRACT")
	setDuration(&cfg.Chain.ReadTimeout, "PREDICTD_CHAIN_READ_TIMEOUT")
	setDuration(&cfg.Chain.ConfirmTimeout, "PREDICTD_CHAIN_CONFIRM_TIMEOUT")
	setDuration(&cfg.Chain.ConfirmPoll, "PREDICTD_CHAIN_CONFIRM_POLL_INTERVAL")
	setInt(&cfg.Chain.ReadRateLimit, "PREDICTD_CHAIN_READ_RATE_LIMIT")

	// ── Markets ──
	setInt64Slice(&cfg.Markets.IDs, "PREDICTD_MARKETS_IDS")
	setBool(&cfg.Markets.Discover, "PREDICTD_MARKETS_DISCOVER")
	setStr(&cfg.Markets.StakeWei, "PREDICTD_MARKETS_STAKE_WEI")
	setDuration(&cfg.Markets.RefreshInterval, "PREDICTD_MARKETS_REFRESH_INTERVAL")

	// ── Database ──
	setStr(&cfg.Database.DSN, "PREDICTD_DATABASE_DSN")
	setStr(&cfg.Database.Host, "PREDICTD_DATABASE_HOST")
	setInt(&cfg.Database.Port, "PREDICTD_DATABASE_PORT")
	setStr(&cfg.Database.Database, "PREDICTD_DATABASE_NAME")
	setStr(&cfg.Database.User, "PREDICTD_DATABASE_USER")
	setStr(&cfg.Database.Password, "PREDICTD_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "PREDICTD_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "PREDICTD_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "PREDICTD_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "PREDICTD_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDICTD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICTD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICTD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICTD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICTD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICTD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PREDICTD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDICTD_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDICTD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDICTD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDICTD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDICTD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDICTD_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PREDICTD_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "PREDICTD_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "PREDICTD_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PREDICTD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PREDICTD_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "PREDICTD_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDICTD_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDICTD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDICTD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDICTD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDICTD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDICTD_MODE")
	setStr(&cfg.LogLevel, "PREDICTD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

func setInt64Slice(dst *[]int64, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]int64, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if n, err := strconv.ParseInt(p, 10, 64); err == nil {
				cleaned = append(cleaned, n)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
