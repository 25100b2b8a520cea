package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// PriceCache implements domain.PriceCache. Each quote is stored as JSON at
// "price:<pair>" and expires after ttl so a stalled poller stops serving
// stale display prices.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache. A zero ttl keeps quotes until replaced.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(pair string) string {
	return "price:" + pair
}

// SetQuote stores q under its pair.
func (pc *PriceCache) SetQuote(ctx context.Context, q domain.PriceQuote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("redis: marshal quote %s: %w", q.Pair, err)
	}
	if err := pc.rdb.Set(ctx, priceKey(q.Pair), data, pc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Pair, err)
	}
	return nil
}

// GetQuote returns the cached quote for pair, or domain.ErrNotFound.
func (pc *PriceCache) GetQuote(ctx context.Context, pair string) (domain.PriceQuote, error) {
	data, err := pc.rdb.Get(ctx, priceKey(pair)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %s: %w", pair, err)
	}
	var q domain.PriceQuote
	if err := json.Unmarshal(data, &q); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: decode quote %s: %w", pair, err)
	}
	return q, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
