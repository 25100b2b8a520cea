package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// PriceSource fetches a spot rate, e.g. ("ethereum", "usd").
type PriceSource interface {
	SimplePrice(ctx context.Context, coin, vs string) (decimal.Decimal, error)
}

// PriceService keeps a display quote for the payment asset in the price
// cache. Quotes are for presentation only and never feed settlement.
type PriceService struct {
	source   PriceSource
	cache    domain.PriceCache
	bus      domain.SignalBus
	coin     string
	vs       string
	decimals int32
	interval time.Duration
	clock    domain.Clock
	logger   *slog.Logger
}

// PriceServiceConfig selects the quoted pair and the polling cadence.
type PriceServiceConfig struct {
	Coin     string
	VS       string
	Decimals int32
	Interval time.Duration
}

// NewPriceService creates a PriceService. bus may be nil.
func NewPriceService(source PriceSource, cache domain.PriceCache, bus domain.SignalBus, cfg PriceServiceConfig, clock domain.Clock, logger *slog.Logger) *PriceService {
	if cfg.Coin == "" {
		cfg.Coin = "ethereum"
	}
	if cfg.VS == "" {
		cfg.VS = "usd"
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = 18
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &PriceService{
		source:   source,
		cache:    cache,
		bus:      bus,
		coin:     cfg.Coin,
		vs:       cfg.VS,
		decimals: cfg.Decimals,
		interval: cfg.Interval,
		clock:    clock,
		logger:   logger.With(slog.String("component", "price_service")),
	}
}

// Pair returns the cache key of the quoted pair.
func (s *PriceService) Pair() string {
	return strings.ToUpper(s.coin + "/" + s.vs)
}

// Run refreshes the quote immediately and then every interval until ctx ends.
func (s *PriceService) Run(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		s.logger.WarnContext(ctx, "price_service: initial refresh failed", slog.String("error", err.Error()))
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.WarnContext(ctx, "price_service: refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Refresh fetches one quote and stores it.
func (s *PriceService) Refresh(ctx context.Context) error {
	price, err := s.source.SimplePrice(ctx, s.coin, s.vs)
	if err != nil {
		return fmt.Errorf("price_service: fetch %s: %w", s.Pair(), err)
	}
	q := domain.PriceQuote{Pair: s.Pair(), Price: price, FetchedAt: s.clock.Now()}
	if err := s.cache.SetQuote(ctx, q); err != nil {
		return fmt.Errorf("price_service: cache %s: %w", q.Pair, err)
	}

	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":     "price_quote",
			"pair":      q.Pair,
			"price":     q.Price.String(),
			"timestamp": q.FetchedAt.Format(time.RFC3339Nano),
		})
		if pubErr := s.bus.Publish(ctx, "prices", evt); pubErr != nil {
			s.logger.WarnContext(ctx, "price_service: publish quote failed",
				slog.String("pair", q.Pair),
				slog.String("error", pubErr.Error()),
			)
		}
	}
	return nil
}

// Quote returns the cached quote.
func (s *PriceService) Quote(ctx context.Context) (domain.PriceQuote, error) {
	q, err := s.cache.GetQuote(ctx, s.Pair())
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("price_service: get %s: %w", s.Pair(), err)
	}
	return q, nil
}

// Value converts an amount of base units of the payment asset into the quote
// currency, rounded to cents.
func (s *PriceService) Value(ctx context.Context, amount domain.Amount) (decimal.Decimal, error) {
	q, err := s.Quote(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	units := decimal.NewFromBigInt(amount.Big(), -s.decimals)
	return units.Mul(q.Price).Round(2), nil
}
