// Package pricefeed fetches display exchange rates from a CoinGecko-style
// simple price endpoint.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client queries {baseURL}/simple/price.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a price feed client, e.g. NewClient("https://api.coingecko.com/api/v3", "").
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SimplePrice returns the price of coin quoted in vs, e.g. ("ethereum", "usd").
func (c *Client) SimplePrice(ctx context.Context, coin, vs string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ids", coin)
	q.Set("vs_currencies", vs)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("pricefeed: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("pricefeed: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("pricefeed: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("pricefeed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Decimal{}, fmt.Errorf("pricefeed: decode: %w", err)
	}
	price, ok := result[coin][vs]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("pricefeed: no %s/%s quote in response", coin, vs)
	}
	return price, nil
}
