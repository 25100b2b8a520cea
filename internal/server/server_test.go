package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/portfolioledger/internal/custody"
	"github.com/alanyoungcy/portfolioledger/internal/domain"
	"github.com/alanyoungcy/portfolioledger/internal/metrics"
	"github.com/alanyoungcy/portfolioledger/internal/server/handler"
	"github.com/alanyoungcy/portfolioledger/internal/server/middleware"
	"github.com/alanyoungcy/portfolioledger/internal/service"
	"github.com/alanyoungcy/portfolioledger/internal/store/memory"
)

const testKey = "secret-key"

var (
	sellerAddr = domain.DeriveAccount("http.seller")
	buyerAddr  = domain.DeriveAccount("http.buyer")
)

type testAPI struct {
	t     *testing.T
	srv   *httptest.Server
	clock *domain.ManualClock
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := domain.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := memory.New(clock)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	committer := service.NewCommitter(store, nil, nil, memory.NewAuditStore(clock), m, service.CommitterConfig{}, logger)

	d := service.Deps{
		Committer: committer,
		Vault:     custody.NewVault(clock),
		Accounts:  domain.DefaultSystemAccounts(),
		Contracts: domain.DefaultContracts(),
		Clock:     clock,
		Logger:    logger,
	}
	handlers := Handlers{
		Health:   handler.NewHealthHandler(nil, logger),
		Status:   handler.NewStatusHandler("api", clock.Now(), d.Accounts, d.Contracts),
		Listings: handler.NewListingHandler(service.NewListingRegistry(d), d.Contracts, logger),
		Auctions: handler.NewAuctionHandler(service.NewAuctionHouse(d), nil, logger),
		Stakes:   handler.NewStakeHandler(service.NewStakeLedger(d), logger),
		Custody:  handler.NewCustodyHandler(service.NewCustodyService(d), d.Accounts, d.Contracts, logger),
		Events:   handler.NewEventHandler(service.NewEventLog(store), logger),
	}
	cfg := Config{Auth: middleware.AuthConfig{APIKey: testKey}}
	s := NewServer(cfg, handlers, Options{Gatherer: reg, Recorder: m}, logger)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &testAPI{t: t, srv: ts, clock: clock}
}

func (a *testAPI) do(method, path string, body any, authed bool) (int, map[string]any, http.Header) {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, a.srv.URL+path, rd)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("X-API-Key", testKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(a.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out, resp.Header
}

func (a *testAPI) post(path string, body any) (int, map[string]any) {
	a.t.Helper()
	code, out, _ := a.do(http.MethodPost, path, body, true)
	return code, out
}

func (a *testAPI) get(path string) (int, map[string]any) {
	a.t.Helper()
	code, out, _ := a.do(http.MethodGet, path, nil, false)
	return code, out
}

func TestListingLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	seller, buyer := sellerAddr.Hex(), buyerAddr.Hex()

	code, _ := api.post("/api/custody/credits", map[string]any{"asset": "stake_token", "holder": seller, "amount": "100"})
	require.Equal(t, http.StatusOK, code)
	code, _ = api.post("/api/custody/credits", map[string]any{"asset": "payment", "holder": buyer, "amount": "500"})
	require.Equal(t, http.StatusOK, code)
	code, _ = api.post("/api/custody/approvals", map[string]any{
		"owner": seller, "spender": "marketplace", "standard": "erc20", "amount": "40",
	})
	require.Equal(t, http.StatusOK, code)

	code, body := api.post("/api/listings", map[string]any{"seller": seller, "standard": "erc20", "amount": "40", "price": "500"})
	require.Equal(t, http.StatusCreated, code, body)
	assert.EqualValues(t, 0, body["id"])

	code, body = api.get("/api/listings/next-id")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["next_id"])

	code, body = api.post("/api/listings/0/buy", map[string]any{"buyer": buyer, "payment": "500"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "500", body["price"])

	code, body = api.post("/api/listings/0/buy", map[string]any{"buyer": buyer, "payment": "500"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "already_sold", body["code"])
	assert.Equal(t, "state", body["kind"])

	code, body = api.get("/api/listings/0")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["active"])

	code, body = api.get("/api/balances/" + seller + "?asset=payment")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "500", body["balance"])

	code, body = api.get("/api/events?after=0")
	require.Equal(t, http.StatusOK, code)
	events, ok := body["events"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, events)
	last := events[len(events)-1].(map[string]any)
	assert.Equal(t, string(domain.EventListingSold), last["type"])
	assert.EqualValues(t, last["seq"], body["next"])
}

func TestWritesRequireAPIKey(t *testing.T) {
	api := newTestAPI(t)

	code, _, _ := api.do(http.MethodPost, "/api/stakes", map[string]any{"holder": sellerAddr.Hex(), "amount": "1"}, false)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = api.get("/api/stakes/" + sellerAddr.Hex())
	assert.Equal(t, http.StatusOK, code)
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t)

	code, body := api.get("/api/listings/42")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "listing_not_found", body["code"])

	code, _ = api.get("/api/listings/abc")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = api.post("/api/listings", map[string]any{"seller": "not-an-address", "standard": "erc20", "price": "1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "seller")

	code, body = api.post("/api/listings", map[string]any{"seller": sellerAddr.Hex(), "standard": "erc20", "amount": "5", "price": "0"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_price", body["code"])

	code, body = api.post("/api/listings/0/cancel", map[string]any{"caller": buyerAddr.Hex()})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "listing_not_found", body["code"])

	code, body = api.post("/api/stakes/"+sellerAddr.Hex()+"/unstake", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "nothing_staked", body["code"])
}

func TestAuctionOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	seller, buyer := sellerAddr.Hex(), buyerAddr.Hex()

	code, body := api.post("/api/auctions/mint", map[string]any{
		"seller": seller, "duration_days": 1, "start_price": "10", "uri": "ipfs://art",
	})
	require.Equal(t, http.StatusCreated, code, body)
	assert.EqualValues(t, 1, body["token_id"])

	code, _ = api.post("/api/custody/credits", map[string]any{"asset": "payment", "holder": buyer, "amount": "50"})
	require.Equal(t, http.StatusOK, code)

	code, body = api.post("/api/auctions/1/bids", map[string]any{"bidder": buyer, "amount": "5"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "bid_too_low", body["code"])

	code, _ = api.post("/api/auctions/1/bids", map[string]any{"bidder": buyer, "amount": "12"})
	require.Equal(t, http.StatusOK, code)

	code, body = api.get("/api/auctions/1")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "active", body["state"])
	assert.Equal(t, "13", body["minimum_bid"])

	code, body = api.post("/api/auctions/1/settle", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "auction_not_ended", body["code"])

	api.clock.Advance(25 * time.Hour)
	code, body = api.post("/api/auctions/1/settle", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "12", body["final_amount"])

	code, body = api.get("/api/nfts/1")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, strings.ToLower(buyerAddr.Hex()), body["owner"])
}

func TestStatusAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	code, body := api.get("/api/status")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "api", body["mode"])

	code, body = api.get("/api/health")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	resp, err := http.Get(api.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "portfolio_http_requests_total")
}
