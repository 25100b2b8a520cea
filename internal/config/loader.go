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
// built-in defaults, applies PORTFOLIO_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides lets operators inject secrets and per-deploy settings
// without touching the TOML file. Unset or empty variables leave the field
// alone.
func applyEnvOverrides(cfg *Config) {
	// ── Store ──
	setStr(&cfg.Store.Driver, "PORTFOLIO_STORE_DRIVER")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PORTFOLIO_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform alias
	setStr(&cfg.Postgres.Host, "PORTFOLIO_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PORTFOLIO_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PORTFOLIO_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PORTFOLIO_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PORTFOLIO_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PORTFOLIO_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PORTFOLIO_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PORTFOLIO_POSTGRES_POOL_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "PORTFOLIO_POSTGRES_MAX_CONN_LIFETIME")
	setBool(&cfg.Postgres.RunMigrations, "PORTFOLIO_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PORTFOLIO_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PORTFOLIO_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PORTFOLIO_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PORTFOLIO_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PORTFOLIO_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PORTFOLIO_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.StreamMaxLen, "PORTFOLIO_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PORTFOLIO_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PORTFOLIO_S3_REGION")
	setStr(&cfg.S3.Bucket, "PORTFOLIO_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PORTFOLIO_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PORTFOLIO_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PORTFOLIO_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PORTFOLIO_S3_FORCE_PATH_STYLE")

	// ── Ledger ──
	setStr(&cfg.Ledger.Marketplace, "PORTFOLIO_LEDGER_MARKETPLACE")
	setStr(&cfg.Ledger.AuctionHouse, "PORTFOLIO_LEDGER_AUCTION_HOUSE")
	setStr(&cfg.Ledger.StakeVault, "PORTFOLIO_LEDGER_STAKE_VAULT")
	setStr(&cfg.Ledger.PaymentAsset, "PORTFOLIO_LEDGER_PAYMENT_ASSET")
	setStr(&cfg.Ledger.StakeToken, "PORTFOLIO_LEDGER_STAKE_TOKEN")
	setStr(&cfg.Ledger.Collection, "PORTFOLIO_LEDGER_COLLECTION")
	setDuration(&cfg.Ledger.LockTTL, "PORTFOLIO_LEDGER_LOCK_TTL")
	setDuration(&cfg.Ledger.LockWait, "PORTFOLIO_LEDGER_LOCK_WAIT")

	// ── Workers ──
	setDuration(&cfg.Settler.Interval, "PORTFOLIO_SETTLER_INTERVAL")
	setInt(&cfg.Settler.Batch, "PORTFOLIO_SETTLER_BATCH")
	setDuration(&cfg.Archive.Interval, "PORTFOLIO_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.Batch, "PORTFOLIO_ARCHIVE_BATCH")

	// ── Price feed ──
	setBool(&cfg.PriceFeed.Enabled, "PORTFOLIO_PRICEFEED_ENABLED")
	setStr(&cfg.PriceFeed.BaseURL, "PORTFOLIO_PRICEFEED_BASE_URL")
	setStr(&cfg.PriceFeed.APIKey, "PORTFOLIO_PRICEFEED_API_KEY")
	setDuration(&cfg.PriceFeed.Interval, "PORTFOLIO_PRICEFEED_INTERVAL")

	// ── Server ──
	setInt(&cfg.Server.Port, "PORTFOLIO_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform alias
	setStringSlice(&cfg.Server.CORSOrigins, "PORTFOLIO_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PORTFOLIO_SERVER_API_KEY")
	setStr(&cfg.Server.APIKeyHash, "PORTFOLIO_SERVER_API_KEY_HASH")
	setInt(&cfg.Server.RateLimit, "PORTFOLIO_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PORTFOLIO_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PORTFOLIO_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PORTFOLIO_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PORTFOLIO_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PORTFOLIO_MODE")
	setStr(&cfg.LogLevel, "PORTFOLIO_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and parses.
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
