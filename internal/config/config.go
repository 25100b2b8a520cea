// Package config defines the configuration of the portfolio ledger service
// and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PORTFOLIO_* environment variables.
type Config struct {
	Store     StoreConfig     `toml:"store"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Settler   SettlerConfig   `toml:"settler"`
	Archive   ArchiveConfig   `toml:"archive"`
	PriceFeed PriceFeedConfig `toml:"pricefeed"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// StoreConfig selects the unit of work implementation.
type StoreConfig struct {
	// Driver is "postgres" or "memory". The memory driver keeps all state in
	// process and loses it on restart.
	Driver string `toml:"driver"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN             string   `toml:"dsn"`
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	Database        string   `toml:"database"`
	User            string   `toml:"user"`
	Password        string   `toml:"password"`
	SSLMode         string   `toml:"ssl_mode"`
	PoolMaxConns    int      `toml:"pool_max_conns"`
	PoolMinConns    int      `toml:"pool_min_conns"`
	MaxConnLifetime duration `toml:"max_conn_lifetime"`
	RunMigrations   bool     `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	StreamMaxLen int      `toml:"stream_max_len"`
	QuoteTTL     duration `toml:"quote_ttl"`
}

// S3Config holds S3-compatible object storage parameters for the event
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// LedgerConfig names the system accounts and asset contracts. Empty
// addresses fall back to the built-in derived ones.
type LedgerConfig struct {
	Marketplace  string   `toml:"marketplace"`
	AuctionHouse string   `toml:"auction_house"`
	StakeVault   string   `toml:"stake_vault"`
	PaymentAsset string   `toml:"payment_asset"`
	StakeToken   string   `toml:"stake_token"`
	Collection   string   `toml:"collection"`
	LockTTL      duration `toml:"lock_ttl"`
	LockWait     duration `toml:"lock_wait"`
}

// SettlerConfig drives the background auction settler.
type SettlerConfig struct {
	Interval duration `toml:"interval"`
	Batch    int      `toml:"batch"`
}

// ArchiveConfig drives the event archiver.
type ArchiveConfig struct {
	Interval duration `toml:"interval"`
	Batch    int      `toml:"batch"`
}

// PriceFeedConfig configures the display-only price poller.
type PriceFeedConfig struct {
	Enabled  bool     `toml:"enabled"`
	BaseURL  string   `toml:"base_url"`
	APIKey   string   `toml:"api_key"`
	Coin     string   `toml:"coin"`
	VS       string   `toml:"vs_currency"`
	Decimals int      `toml:"decimals"`
	Interval duration `toml:"interval"`
}

// duration wraps time.Duration so TOML strings such as "5m" decode into it.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters. When APIKey or APIKeyHash is
// set, mutating routes require the key in the X-API-Key header.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	APIKeyHash  string   `toml:"api_key_hash"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials and the event types
// to forward.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Store: StoreConfig{Driver: "postgres"},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "portfolio",
			User:            "postgres",
			SSLMode:         "disable",
			PoolMaxConns:    10,
			PoolMinConns:    2,
			MaxConnLifetime: duration{time.Hour},
			RunMigrations:   true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10000,
			QuoteTTL:     duration{10 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "portfolio-ledger",
			ForcePathStyle: true,
		},
		Ledger: LedgerConfig{
			LockTTL:  duration{10 * time.Second},
			LockWait: duration{2 * time.Second},
		},
		Settler: SettlerConfig{
			Interval: duration{15 * time.Second},
			Batch:    50,
		},
		Archive: ArchiveConfig{
			Interval: duration{time.Hour},
			Batch:    5000,
		},
		PriceFeed: PriceFeedConfig{
			Enabled:  false,
			BaseURL:  "https://api.coingecko.com/api/v3",
			Coin:     "ethereum",
			VS:       "usd",
			Decimals: 18,
			Interval: duration{time.Minute},
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"ListingSold", "AuctionSettled"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"api":     true,
	"settler": true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsServer reports whether the mode serves HTTP.
func (c *Config) NeedsServer() bool {
	m := strings.ToLower(c.Mode)
	return m == "api" || m == "full"
}

// NeedsArchive reports whether the mode runs the archiver and therefore needs
// object storage.
func (c *Config) NeedsArchive() bool {
	m := strings.ToLower(c.Mode)
	return m == "archive" || m == "full"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: api, settler, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Store
	driver := strings.ToLower(c.Store.Driver)
	switch driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Sprintf("store: unknown driver %q (valid: postgres, memory)", c.Store.Driver))
	}
	if driver == "memory" && strings.ToLower(c.Mode) == "settler" {
		errs = append(errs, "store: the memory driver cannot be shared with a separate settler process")
	}

	// Postgres
	if driver == "postgres" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.NeedsArchive() {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Ledger
	for _, f := range []struct{ name, value string }{
		{"marketplace", c.Ledger.Marketplace},
		{"auction_house", c.Ledger.AuctionHouse},
		{"stake_vault", c.Ledger.StakeVault},
		{"payment_asset", c.Ledger.PaymentAsset},
		{"stake_token", c.Ledger.StakeToken},
		{"collection", c.Ledger.Collection},
	} {
		if f.value != "" && !common.IsHexAddress(f.value) {
			errs = append(errs, fmt.Sprintf("ledger: %s is not a hex address: %q", f.name, f.value))
		}
	}
	if c.Ledger.LockTTL.Duration <= 0 {
		errs = append(errs, "ledger: lock_ttl must be > 0")
	}
	if c.Ledger.LockWait.Duration < 0 {
		errs = append(errs, "ledger: lock_wait must be >= 0")
	}
	if c.Ledger.LockWait.Duration >= c.Ledger.LockTTL.Duration {
		errs = append(errs, "ledger: lock_wait must be shorter than lock_ttl")
	}

	// Workers
	if c.Settler.Interval.Duration <= 0 {
		errs = append(errs, "settler: interval must be > 0")
	}
	if c.Settler.Batch < 1 {
		errs = append(errs, "settler: batch must be >= 1")
	}
	if c.NeedsArchive() && c.Archive.Interval.Duration <= 0 {
		errs = append(errs, "archive: interval must be > 0")
	}

	// Price feed
	if c.PriceFeed.Enabled {
		if c.PriceFeed.BaseURL == "" {
			errs = append(errs, "pricefeed: base_url must not be empty")
		}
		if c.PriceFeed.Coin == "" || c.PriceFeed.VS == "" {
			errs = append(errs, "pricefeed: coin and vs_currency must be set")
		}
		if c.PriceFeed.Decimals < 0 || c.PriceFeed.Decimals > 77 {
			errs = append(errs, fmt.Sprintf("pricefeed: decimals must be 0-77, got %d", c.PriceFeed.Decimals))
		}
		if c.PriceFeed.Interval.Duration < time.Second {
			errs = append(errs, "pricefeed: interval must be at least 1s")
		}
	}

	// Server
	if c.NeedsServer() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.APIKey != "" && c.Server.APIKeyHash != "" {
			errs = append(errs, "server: set api_key or api_key_hash, not both")
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
