package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/portfolioledger/internal/custody"
	"github.com/alanyoungcy/portfolioledger/internal/domain"
	"github.com/alanyoungcy/portfolioledger/internal/metrics"
	"github.com/alanyoungcy/portfolioledger/internal/store/memory"
)

var (
	seller  = domain.DeriveAccount("test.seller")
	buyer   = domain.DeriveAccount("test.buyer")
	bidderA = domain.DeriveAccount("test.bidder_a")
	bidderB = domain.DeriveAccount("test.bidder_b")
	holder  = domain.DeriveAccount("test.holder")
	tokenT  = domain.DeriveAccount("test.token_t")
)

type harness struct {
	t         *testing.T
	ctx       context.Context
	clock     *domain.ManualClock
	store     *memory.Store
	audit     *memory.AuditStore
	accounts  domain.SystemAccounts
	contracts domain.Contracts

	listings *ListingRegistry
	auctions *AuctionHouse
	stakes   *StakeLedger
	custody  *CustodyService
	events   *EventLog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := domain.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New(clock)
	audit := memory.NewAuditStore(clock)
	committer := NewCommitter(store, nil, nil, audit, metrics.New(prometheus.NewRegistry()), CommitterConfig{}, logger)

	d := Deps{
		Committer: committer,
		Vault:     custody.NewVault(clock),
		Accounts:  domain.DefaultSystemAccounts(),
		Contracts: domain.DefaultContracts(),
		Clock:     clock,
		Logger:    logger,
	}
	return &harness{
		t:         t,
		ctx:       context.Background(),
		clock:     clock,
		store:     store,
		audit:     audit,
		accounts:  d.Accounts,
		contracts: d.Contracts,
		listings:  NewListingRegistry(d),
		auctions:  NewAuctionHouse(d),
		stakes:    NewStakeLedger(d),
		custody:   NewCustodyService(d),
		events:    NewEventLog(store),
	}
}

func (h *harness) credit(contract, who domain.Address, n uint64) {
	h.t.Helper()
	require.NoError(h.t, h.custody.Credit(h.ctx, contract, who, domain.NewAmount(n)))
}

func (h *harness) approve(owner, spender domain.Address, asset domain.Asset) {
	h.t.Helper()
	require.NoError(h.t, h.custody.Approve(h.ctx, owner, spender, asset))
}

func (h *harness) balance(contract, who domain.Address) uint64 {
	h.t.Helper()
	bal, err := h.custody.Balance(h.ctx, contract, who)
	require.NoError(h.t, err)
	return bal.Big().Uint64()
}

func (h *harness) pay(who domain.Address) uint64 { return h.balance(h.contracts.Payment, who) }

// mintTo mints tokens to owner until the collection reaches id.
func (h *harness) mintTo(owner domain.Address, id domain.TokenID) {
	h.t.Helper()
	for {
		minted, err := h.custody.MintNFT(h.ctx, owner, "ipfs://token", domain.NewAmount(1))
		require.NoError(h.t, err)
		if minted >= id {
			return
		}
	}
}

func (h *harness) owner(id domain.TokenID) domain.Address {
	h.t.Helper()
	tok, err := h.custody.Token(h.ctx, id)
	require.NoError(h.t, err)
	return tok.Owner
}

func (h *harness) eventTypes() []domain.EventType {
	h.t.Helper()
	events, err := h.events.After(h.ctx, 0, 0)
	require.NoError(h.t, err)
	out := make([]domain.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func amt(n uint64) domain.Amount { return domain.NewAmount(n) }
