package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

func (h *harness) auctionToken(id domain.TokenID, startPrice uint64, d time.Duration) {
	h.t.Helper()
	h.mintTo(seller, id)
	h.approve(seller, h.accounts.AuctionHouse, domain.NonFungibleAsset(h.contracts.Collection, id))
	_, err := h.auctions.CreateAuction(h.ctx, seller, id, amt(startPrice), d)
	require.NoError(h.t, err)
}

func TestBidLadder(t *testing.T) {
	h := newHarness(t)
	h.auctionToken(7, 1, time.Hour)
	h.credit(h.contracts.Payment, bidderA, 10)
	h.credit(h.contracts.Payment, bidderB, 10)

	require.NoError(t, h.auctions.PlaceBid(h.ctx, 7, bidderA, amt(1)), "first bid may equal the start price")

	err := h.auctions.PlaceBid(h.ctx, 7, bidderB, amt(1))
	assert.ErrorIs(t, err, domain.ErrBidTooLow)
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, h.auctions.PlaceBid(h.ctx, 7, bidderB, amt(2)))

	assert.Equal(t, uint64(10), h.pay(bidderA), "outbid bidder is refunded")
	assert.Equal(t, uint64(8), h.pay(bidderB))
	assert.Equal(t, uint64(2), h.pay(h.accounts.AuctionHouse), "only the high bid is escrowed")

	view, err := h.auctions.GetAuction(h.ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionStateActive, view.State)
	require.NotNil(t, view.HighBidder)
	assert.Equal(t, bidderB, *view.HighBidder)
	assert.Equal(t, "2", view.CurrentBid.String())
}

func TestFirstBidBelowStartPrice(t *testing.T) {
	h := newHarness(t)
	h.auctionToken(1, 5, time.Hour)
	h.credit(h.contracts.Payment, bidderA, 10)

	err := h.auctions.PlaceBid(h.ctx, 1, bidderA, amt(4))
	assert.ErrorIs(t, err, domain.ErrBidTooLow)
	assert.Equal(t, uint64(10), h.pay(bidderA))
}

func TestBidWithoutFundsLeavesAuctionUnchanged(t *testing.T) {
	h := newHarness(t)
	h.auctionToken(1, 5, time.Hour)
	h.credit(h.contracts.Payment, bidderA, 5)
	require.NoError(t, h.auctions.PlaceBid(h.ctx, 1, bidderA, amt(5)))

	err := h.auctions.PlaceBid(h.ctx, 1, bidderB, amt(6))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	view, err := h.auctions.GetAuction(h.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, bidderA, *view.HighBidder)
	assert.Equal(t, uint64(5), h.pay(h.accounts.AuctionHouse))
}

func TestSettleBeforeAndAfterEnd(t *testing.T) {
	h := newHarness(t)
	h.auctionToken(7, 1, time.Hour)

	_, err := h.auctions.Settle(h.ctx, 7)
	assert.ErrorIs(t, err, domain.ErrAuctionNotEnded)

	h.clock.Advance(time.Hour)
	result, err := h.auctions.Settle(h.ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, result.Winner)
	assert.True(t, result.FinalAmount.IsZero())
	assert.Equal(t, seller, h.owner(7), "no bids means nothing moves")

	view, err := h.auctions.GetAuction(h.ctx, 7)
	require.NoError(t, err)
	assert.True(t, view.Settled)
	assert.Equal(t, domain.AuctionStateSettled, view.State)
}

func TestSettleWithWinnerIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.auctionToken(3, 10, time.Minute)
	h.credit(h.contracts.Payment, bidderA, 50)
	require.NoError(t, h.auctions.PlaceBid(h.ctx, 3, bidderA, amt(12)))

	h.clock.Advance(time.Minute)
	err := h.auctions.PlaceBid(h.ctx, 3, bidderA, amt(20))
	assert.ErrorIs(t, err, domain.ErrAuctionEnded)

	result, err := h.auctions.Settle(h.ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, result.Winner)
	assert.Equal(t, bidderA, *result.Winner)

	assert.Equal(t, bidderA, h.owner(3))
	assert.Equal(t, uint64(12), h.pay(seller))
	assert.Equal(t, uint64(38), h.pay(bidderA))
	assert.Equal(t, uint64(0), h.pay(h.accounts.AuctionHouse))

	for i := 0; i < 3; i++ {
		_, err = h.auctions.Settle(h.ctx, 3)
		assert.ErrorIs(t, err, domain.ErrAlreadySettled)
	}
	assert.Equal(t, uint64(12), h.pay(seller), "repeated settle moves nothing")
	assert.Equal(t, bidderA, h.owner(3))
}

func TestSettleRefundsBidWhenSellerReapprovedToken(t *testing.T) {
	h := newHarness(t)
	h.auctionToken(1, 1, time.Minute)
	h.credit(h.contracts.Payment, bidderA, 5)
	require.NoError(t, h.auctions.PlaceBid(h.ctx, 1, bidderA, amt(5)))

	// Seller re-points the token approval elsewhere.
	h.approve(seller, buyer, domain.NonFungibleAsset(h.contracts.Collection, 1))
	h.clock.Advance(time.Minute)

	result, err := h.auctions.Settle(h.ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, result.Winner)
	require.NotNil(t, result.RefundedBidder)
	assert.Equal(t, bidderA, *result.RefundedBidder)
	assert.Equal(t, "5", result.RefundedAmount.String())
	assert.True(t, result.FinalAmount.IsZero())

	assert.Equal(t, uint64(5), h.pay(bidderA))
	assert.Equal(t, uint64(0), h.pay(h.accounts.AuctionHouse))
	assert.Equal(t, uint64(0), h.pay(seller))
	assert.Equal(t, seller, h.owner(1))

	view, err := h.auctions.GetAuction(h.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionStateSettled, view.State)

	_, err = h.auctions.Settle(h.ctx, 1)
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)
	assert.Equal(t, uint64(5), h.pay(bidderA), "refund happens once")
}

func TestSettleRefundsBidWhenTokenSoldThroughMarketplace(t *testing.T) {
	h := newHarness(t)
	h.auctionToken(1, 1, time.Minute)
	h.credit(h.contracts.Payment, bidderA, 5)
	h.credit(h.contracts.Payment, buyer, 9)
	require.NoError(t, h.auctions.PlaceBid(h.ctx, 1, bidderA, amt(5)))

	nft := domain.NonFungibleAsset(h.contracts.Collection, 1)
	h.approve(seller, h.accounts.Marketplace, nft)
	id, err := h.listings.ListItem(h.ctx, seller, nft, amt(9))
	require.NoError(t, err)
	_, err = h.listings.BuyItem(h.ctx, id, buyer, amt(9))
	require.NoError(t, err)
	require.Equal(t, buyer, h.owner(1))

	h.clock.Advance(time.Minute)
	result, err := h.auctions.Settle(h.ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, result.RefundedBidder)
	assert.Equal(t, bidderA, *result.RefundedBidder)

	assert.Equal(t, uint64(5), h.pay(bidderA), "escrowed bid is not stranded")
	assert.Equal(t, uint64(0), h.pay(h.accounts.AuctionHouse))
	assert.Equal(t, uint64(9), h.pay(seller))
	assert.Equal(t, buyer, h.owner(1))

	types := h.eventTypes()
	assert.Equal(t, domain.EventAuctionSettled, types[len(types)-1])
}

func TestCreateAuctionRejections(t *testing.T) {
	h := newHarness(t)
	h.mintTo(seller, 2)

	_, err := h.auctions.CreateAuction(h.ctx, buyer, 1, amt(1), time.Hour)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = h.auctions.CreateAuction(h.ctx, seller, 1, amt(1), time.Hour)
	assert.ErrorIs(t, err, domain.ErrNoCustodyGrant)

	_, err = h.auctions.CreateAuction(h.ctx, seller, 1, amt(0), time.Hour)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = h.auctions.CreateAuction(h.ctx, seller, 1, amt(1), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidDuration)

	_, err = h.auctions.CreateAuction(h.ctx, seller, 99, amt(1), time.Hour)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)

	h.approve(seller, h.accounts.AuctionHouse, domain.NonFungibleAsset(h.contracts.Collection, 1))
	first, err := h.auctions.CreateAuction(h.ctx, seller, 1, amt(1), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionID(1), first)

	_, err = h.auctions.CreateAuction(h.ctx, seller, 1, amt(1), time.Hour)
	assert.ErrorIs(t, err, domain.ErrAuctionExists)

	// Ended but unsettled still blocks a new auction.
	h.clock.Advance(time.Hour)
	_, err = h.auctions.CreateAuction(h.ctx, seller, 1, amt(1), time.Hour)
	assert.ErrorIs(t, err, domain.ErrAuctionExists)

	_, err = h.auctions.Settle(h.ctx, 1)
	require.NoError(t, err)
	second, err := h.auctions.CreateAuction(h.ctx, seller, 1, amt(1), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionID(2), second)
}

func TestAuctionNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.auctions.GetAuction(h.ctx, 5)
	assert.ErrorIs(t, err, domain.ErrAuctionNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = h.auctions.PlaceBid(h.ctx, 5, bidderA, amt(1))
	assert.ErrorIs(t, err, domain.ErrAuctionNotFound)
	_, err = h.auctions.Settle(h.ctx, 5)
	assert.ErrorIs(t, err, domain.ErrAuctionNotFound)
}

func TestMintWithAuction(t *testing.T) {
	h := newHarness(t)
	tokenID, auctionID, err := h.auctions.MintWithAuction(h.ctx, seller, 2, amt(3), "ipfs://art")
	require.NoError(t, err)
	assert.Equal(t, domain.TokenID(1), tokenID)
	assert.Equal(t, domain.AuctionID(1), auctionID)

	view, err := h.auctions.GetAuction(h.ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now().Add(48*time.Hour), view.EndTime)
	assert.Equal(t, "3", view.StartPrice.String())

	tok, err := h.custody.Token(h.ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://art", tok.URI)
	require.NotNil(t, tok.Approved)
	assert.Equal(t, h.accounts.AuctionHouse, *tok.Approved)

	assert.Equal(t, []domain.EventType{domain.EventTokenMinted, domain.EventApproval, domain.EventAuctionCreated}, h.eventTypes())

	_, _, err = h.auctions.MintWithAuction(h.ctx, seller, 0, amt(3), "")
	assert.ErrorIs(t, err, domain.ErrInvalidDuration)
}

func TestMintWithAuctionDurationBounds(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.auctions.MintWithAuction(h.ctx, seller, int(MaxAuctionDays)+1, amt(1), "x")
	assert.ErrorIs(t, err, domain.ErrInvalidDuration)
	_, _, err = h.auctions.MintWithAuction(h.ctx, seller, 213504, amt(1), "x")
	assert.ErrorIs(t, err, domain.ErrInvalidDuration, "would wrap to a short duration")
	assert.Empty(t, h.eventTypes())

	tokenID, _, err := h.auctions.MintWithAuction(h.ctx, seller, int(MaxAuctionDays), amt(1), "x")
	require.NoError(t, err)
	view, err := h.auctions.GetAuction(h.ctx, tokenID)
	require.NoError(t, err)
	assert.True(t, view.EndTime.After(h.clock.Now().Add(100*365*24*time.Hour)))
}

func TestMintWithAuctionFailureMintsNothing(t *testing.T) {
	h := newHarness(t)
	// A stale unsettled auction already claims the next token id, so opening
	// the auction fails after the mint inside the same commit.
	_, err := h.store.Do(h.ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Auctions().Insert(ctx, domain.Auction{
			Collection: h.contracts.Collection,
			TokenID:    1,
			Seller:     bidderB,
			StartPrice: amt(1),
			EndTime:    h.clock.Now().Add(time.Hour),
			CreatedAt:  h.clock.Now(),
		})
		return err
	})
	require.NoError(t, err)

	_, _, err = h.auctions.MintWithAuction(h.ctx, seller, 1, amt(3), "ipfs://art")
	assert.ErrorIs(t, err, domain.ErrAuctionExists)

	_, err = h.custody.Token(h.ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound, "token must not be minted")
	tokens, err := h.custody.TokensOf(h.ctx, seller)
	require.NoError(t, err)
	assert.Empty(t, tokens)
	assert.Empty(t, h.eventTypes())

	next, err := h.custody.MintNFT(h.ctx, seller, "ipfs://other", amt(1))
	require.NoError(t, err)
	assert.Equal(t, domain.TokenID(1), next, "token id is not consumed")
}

func TestSettlerSettlesDueAuctions(t *testing.T) {
	h := newHarness(t)
	h.auctionToken(1, 1, time.Minute)
	h.auctionToken(2, 1, time.Hour)
	h.credit(h.contracts.Payment, bidderA, 1)
	require.NoError(t, h.auctions.PlaceBid(h.ctx, 1, bidderA, amt(1)))

	settler := NewSettler(h.auctions, time.Second, 10, nil, h.auctions.logger)

	n, err := settler.Tick(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	h.clock.Advance(time.Minute)
	n, err = settler.Tick(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, bidderA, h.owner(1))

	n, err = settler.Tick(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAtMostOneEscrowedBid(t *testing.T) {
	h := newHarness(t)
	h.auctionToken(1, 1, time.Hour)
	bidders := []domain.Address{bidderA, bidderB, buyer}
	for _, b := range bidders {
		h.credit(h.contracts.Payment, b, 100)
	}
	for i := uint64(1); i <= 9; i++ {
		require.NoError(t, h.auctions.PlaceBid(h.ctx, 1, bidders[i%3], amt(i*3)))
		view, err := h.auctions.GetAuction(h.ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, view.CurrentBid.String(), amt(h.pay(h.accounts.AuctionHouse)).String())
	}
}
