package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
	"github.com/alanyoungcy/portfolioledger/internal/metrics"
)

// Settler periodically settles auctions that have ended. Settle is open to
// anyone, so a racing manual settlement is harmless.
type Settler struct {
	house    *AuctionHouse
	interval time.Duration
	batch    int
	metrics  *metrics.Ledger
	logger   *slog.Logger
}

// NewSettler creates a Settler. m may be nil.
func NewSettler(house *AuctionHouse, interval time.Duration, batch int, m *metrics.Ledger, logger *slog.Logger) *Settler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Settler{
		house:    house,
		interval: interval,
		batch:    batch,
		metrics:  m,
		logger:   logger.With(slog.String("component", "settler")),
	}
}

// Run ticks until ctx is cancelled.
func (s *Settler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "settler: started", slog.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.logger.WarnContext(ctx, "settler: tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick settles one batch of due auctions and returns how many it settled.
func (s *Settler) Tick(ctx context.Context) (int, error) {
	due, err := s.house.ListSettleable(ctx, s.batch)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, a := range due {
		_, err := s.house.Settle(ctx, a.TokenID)
		switch {
		case err == nil:
			settled++
			s.metrics.AuctionSettled()
		case errors.Is(err, domain.ErrAlreadySettled):
		case ctx.Err() != nil:
			return settled, ctx.Err()
		default:
			s.logger.WarnContext(ctx, "settler: settle failed",
				slog.Uint64("token_id", uint64(a.TokenID)),
				slog.String("error", err.Error()),
			)
		}
	}
	if settled > 0 {
		s.logger.InfoContext(ctx, "settler: settled auctions", slog.Int("count", settled))
	}
	return settled, nil
}
