package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	s3blob "github.com/alanyoungcy/portfolioledger/internal/blob/s3"
	"github.com/alanyoungcy/portfolioledger/internal/cache/redis"
	"github.com/alanyoungcy/portfolioledger/internal/config"
	"github.com/alanyoungcy/portfolioledger/internal/custody"
	"github.com/alanyoungcy/portfolioledger/internal/domain"
	"github.com/alanyoungcy/portfolioledger/internal/metrics"
	"github.com/alanyoungcy/portfolioledger/internal/notify"
	"github.com/alanyoungcy/portfolioledger/internal/platform/pricefeed"
	"github.com/alanyoungcy/portfolioledger/internal/server/handler"
	"github.com/alanyoungcy/portfolioledger/internal/service"
	"github.com/alanyoungcy/portfolioledger/internal/store/memory"
	"github.com/alanyoungcy/portfolioledger/internal/store/postgres"
)

// Dependencies bundles every component the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Ledger state
	UnitOfWork domain.UnitOfWork
	AuditStore domain.AuditStore
	Accounts   domain.SystemAccounts
	Contracts  domain.Contracts
	Clock      domain.Clock

	// Caches
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	PriceCache  domain.PriceCache

	// Blob storage; nil unless the mode archives.
	Archiver domain.Archiver

	// Metrics
	Registry *prometheus.Registry
	Metrics  *metrics.Ledger

	// Ledger components
	Committer *service.Committer
	Listings  *service.ListingRegistry
	Auctions  *service.AuctionHouse
	Stakes    *service.StakeLedger
	Custody   *service.CustodyService
	Events    *service.EventLog
	Settler   *service.Settler
	// Prices is nil when the price feed is disabled.
	Prices *service.PriceService

	// Notifications
	Notifier *notify.Notifier

	// Checks are the dependencies probed by the health endpoint.
	Checks map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	accounts, contracts := ledgerAddresses(cfg.Ledger)
	deps := &Dependencies{
		Accounts:  accounts,
		Contracts: contracts,
		Clock:     domain.SystemClock{},
		Checks:    make(map[string]handler.Pinger),
	}

	// --- Unit of work ---
	switch strings.ToLower(cfg.Store.Driver) {
	case "memory":
		logger.WarnContext(ctx, "wire: memory store selected, ledger state is lost on restart")
		store := memory.New(deps.Clock)
		deps.UnitOfWork = store
		deps.AuditStore = memory.NewAuditStore(deps.Clock)
	default:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:             cfg.Postgres.DSN,
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			Database:        cfg.Postgres.Database,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxConns:        cfg.Postgres.PoolMaxConns,
			MinConns:        cfg.Postgres.PoolMinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.UnitOfWork = postgres.NewUnitOfWork(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pgClient
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MaxRetries:   cfg.Redis.MaxRetries,
		TLSEnabled:   cfg.Redis.TLSEnabled,
		StreamMaxLen: int64(cfg.Redis.StreamMaxLen),
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.QuoteTTL.Duration)
	deps.Checks["redis"] = redisClient

	// --- S3 blob storage (only for modes that archive) ---
	if cfg.NeedsArchive() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.UnitOfWork,
			deps.AuditStore,
			cfg.Archive.Batch,
		)
		deps.Checks["s3"] = s3Client
	}

	// --- Metrics ---
	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.Metrics = metrics.New(deps.Registry)

	// --- Ledger components ---
	deps.Committer = service.NewCommitter(
		deps.UnitOfWork,
		deps.LockManager,
		deps.SignalBus,
		deps.AuditStore,
		deps.Metrics,
		service.CommitterConfig{
			LockTTL:  cfg.Ledger.LockTTL.Duration,
			LockWait: cfg.Ledger.LockWait.Duration,
		},
		logger,
	)
	d := service.Deps{
		Committer: deps.Committer,
		Vault:     custody.NewVault(deps.Clock),
		Accounts:  accounts,
		Contracts: contracts,
		Clock:     deps.Clock,
		Logger:    logger,
	}
	deps.Listings = service.NewListingRegistry(d)
	deps.Auctions = service.NewAuctionHouse(d)
	deps.Stakes = service.NewStakeLedger(d)
	deps.Custody = service.NewCustodyService(d)
	deps.Events = service.NewEventLog(deps.UnitOfWork)
	deps.Settler = service.NewSettler(deps.Auctions, cfg.Settler.Interval.Duration, cfg.Settler.Batch, deps.Metrics, logger)

	// --- Price feed ---
	if cfg.PriceFeed.Enabled {
		deps.Prices = service.NewPriceService(
			pricefeed.NewClient(cfg.PriceFeed.BaseURL, cfg.PriceFeed.APIKey),
			deps.PriceCache,
			deps.SignalBus,
			service.PriceServiceConfig{
				Coin:     cfg.PriceFeed.Coin,
				VS:       cfg.PriceFeed.VS,
				Decimals: int32(cfg.PriceFeed.Decimals),
				Interval: cfg.PriceFeed.Interval.Duration,
			},
			deps.Clock,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// ledgerAddresses resolves the configured system accounts and contracts,
// falling back to the derived defaults for empty entries. Config.Validate has
// already rejected malformed hex.
func ledgerAddresses(lc config.LedgerConfig) (domain.SystemAccounts, domain.Contracts) {
	accounts := domain.DefaultSystemAccounts()
	contracts := domain.DefaultContracts()

	for _, f := range []struct {
		value string
		dst   *domain.Address
	}{
		{lc.Marketplace, &accounts.Marketplace},
		{lc.AuctionHouse, &accounts.AuctionHouse},
		{lc.StakeVault, &accounts.StakeVault},
		{lc.PaymentAsset, &contracts.Payment},
		{lc.StakeToken, &contracts.StakeToken},
		{lc.Collection, &contracts.Collection},
	} {
		if f.value == "" {
			continue
		}
		if addr, err := domain.ParseAddress(f.value); err == nil {
			*f.dst = addr
		}
	}
	return accounts, contracts
}
