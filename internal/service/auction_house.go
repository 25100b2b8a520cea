package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/portfolioledger/internal/custody"
	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// MaxAuctionDays is the longest duration in days a time.Duration can hold.
const MaxAuctionDays = math.MaxInt64 / int64(24*time.Hour)

// AuctionHouse runs timed ascending auctions for tokens of the configured
// collection. Bids are escrowed in the auction house account; the previous
// high bid is refunded in the same commit that accepts a new one.
type AuctionHouse struct {
	committer  *Committer
	vault      *custody.Vault
	house      domain.Address
	payment    domain.Address
	collection domain.Address
	clock      domain.Clock
	logger     *slog.Logger
}

// NewAuctionHouse creates an AuctionHouse.
func NewAuctionHouse(d Deps) *AuctionHouse {
	return &AuctionHouse{
		committer:  d.Committer,
		vault:      d.Vault,
		house:      d.Accounts.AuctionHouse,
		payment:    d.Contracts.Payment,
		collection: d.Contracts.Collection,
		clock:      d.clock(),
		logger:     d.logger("auction_house"),
	}
}

// Collection returns the collection this house auctions.
func (h *AuctionHouse) Collection() domain.Address { return h.collection }

// CreateAuction opens an auction for a token the seller owns and has
// approved to the auction house.
func (h *AuctionHouse) CreateAuction(ctx context.Context, seller domain.Address, tokenID domain.TokenID, startPrice domain.Amount, duration time.Duration) (domain.AuctionID, error) {
	if err := validateAuctionParams(seller, startPrice, duration); err != nil {
		return 0, err
	}

	var id domain.AuctionID
	in := intent{
		name:   "create_auction",
		keys:   []string{auctionKey(h.collection, tokenID)},
		detail: map[string]any{"seller": seller.Hex(), "token_id": uint64(tokenID), "start_price": startPrice.String()},
	}
	_, err := h.committer.Commit(ctx, in, func(ctx context.Context, tx domain.Tx) error {
		var err error
		id, err = h.open(ctx, tx, seller, tokenID, startPrice, duration)
		return err
	})
	if err != nil {
		return 0, err
	}

	h.logger.InfoContext(ctx, "auction_house: auction created",
		slog.Uint64("auction_id", uint64(id)),
		slog.Uint64("token_id", uint64(tokenID)),
		slog.Duration("duration", duration),
	)
	return id, nil
}

// MintWithAuction mints a new token to seller and auctions it for
// durationDays days in one commit.
func (h *AuctionHouse) MintWithAuction(ctx context.Context, seller domain.Address, durationDays int, startPrice domain.Amount, uri string) (domain.TokenID, domain.AuctionID, error) {
	if durationDays <= 0 {
		return 0, 0, domain.ErrInvalidDuration.Withf("duration must be at least one day")
	}
	if int64(durationDays) > MaxAuctionDays {
		return 0, 0, domain.ErrInvalidDuration.Withf("duration %d days exceeds %d", durationDays, MaxAuctionDays)
	}
	duration := time.Duration(durationDays) * 24 * time.Hour
	if err := validateAuctionParams(seller, startPrice, duration); err != nil {
		return 0, 0, err
	}

	var (
		tokenID   domain.TokenID
		auctionID domain.AuctionID
	)
	in := intent{
		name:   "mint_with_auction",
		detail: map[string]any{"seller": seller.Hex(), "duration_days": durationDays, "start_price": startPrice.String()},
	}
	_, err := h.committer.Commit(ctx, in, func(ctx context.Context, tx domain.Tx) error {
		var err error
		tokenID, err = h.vault.Mint(ctx, tx, h.collection, seller, uri, startPrice)
		if err != nil {
			return err
		}
		if err := h.vault.Approve(ctx, tx, seller, h.house, domain.NonFungibleAsset(h.collection, tokenID)); err != nil {
			return err
		}
		auctionID, err = h.open(ctx, tx, seller, tokenID, startPrice, duration)
		return err
	})
	if err != nil {
		return 0, 0, err
	}

	h.logger.InfoContext(ctx, "auction_house: minted with auction",
		slog.Uint64("token_id", uint64(tokenID)),
		slog.Uint64("auction_id", uint64(auctionID)),
	)
	return tokenID, auctionID, nil
}

func (h *AuctionHouse) open(ctx context.Context, tx domain.Tx, seller domain.Address, tokenID domain.TokenID, startPrice domain.Amount, duration time.Duration) (domain.AuctionID, error) {
	tok, err := tx.Custody().Token(ctx, h.collection, tokenID)
	if err != nil {
		return 0, err
	}
	if tok.Owner != seller {
		return 0, domain.ErrNotOwner.Withf("token %d", tokenID)
	}
	if tok.Approved == nil || *tok.Approved != h.house {
		return 0, domain.ErrNoCustodyGrant.Withf("token %d not approved to the auction house", tokenID)
	}

	prev, err := tx.Auctions().Latest(ctx, h.collection, tokenID)
	switch {
	case errors.Is(err, domain.ErrAuctionNotFound):
	case err != nil:
		return 0, err
	case !prev.Settled:
		return 0, domain.ErrAuctionExists.Withf("token %d has auction %d", tokenID, prev.ID)
	}

	now := h.clock.Now()
	a := domain.Auction{
		Collection: h.collection,
		TokenID:    tokenID,
		Seller:     seller,
		StartPrice: startPrice,
		EndTime:    now.Add(duration),
		CreatedAt:  now,
	}
	id, err := tx.Auctions().Insert(ctx, a)
	if err != nil {
		return 0, fmt.Errorf("auction_house: insert: %w", err)
	}
	err = tx.Emit(ctx, domain.EventAuctionCreated, domain.AuctionCreated{
		AuctionID:  id,
		Collection: h.collection,
		TokenID:    tokenID,
		Seller:     seller,
		StartPrice: startPrice,
		EndTime:    a.EndTime,
	})
	return id, err
}

// PlaceBid escrows amount from bidder and refunds the previous high bidder.
func (h *AuctionHouse) PlaceBid(ctx context.Context, tokenID domain.TokenID, bidder domain.Address, amount domain.Amount) error {
	if err := requireAddress(bidder, "bidder"); err != nil {
		return err
	}

	in := intent{
		name:   "place_bid",
		keys:   []string{auctionKey(h.collection, tokenID)},
		detail: map[string]any{"token_id": uint64(tokenID), "bidder": bidder.Hex(), "amount": amount.String()},
	}
	_, err := h.committer.Commit(ctx, in, func(ctx context.Context, tx domain.Tx) error {
		a, err := tx.Auctions().Latest(ctx, h.collection, tokenID)
		if err != nil {
			return err
		}
		if a.State(h.clock.Now()) != domain.AuctionStateActive {
			return domain.ErrAuctionEnded.Withf("token %d", tokenID)
		}
		minBid, err := a.MinimumBid()
		if err != nil {
			return err
		}
		if amount.Lt(minBid) {
			return domain.ErrBidTooLow.Withf("bid %s, minimum %s", amount, minBid)
		}

		if err := h.vault.Transfer(ctx, tx, bidder, h.house, domain.FungibleAsset(h.payment, amount)); err != nil {
			return err
		}

		ev := domain.BidPlaced{TokenID: tokenID, Bidder: bidder, Amount: amount}
		if a.HighBidder != nil {
			refundTo := *a.HighBidder
			if err := h.vault.Transfer(ctx, tx, h.house, refundTo, domain.FungibleAsset(h.payment, a.CurrentBid)); err != nil {
				return fmt.Errorf("auction_house: refund %s: %w", refundTo.Hex(), err)
			}
			ev.RefundedBidder = &refundTo
			ev.RefundedAmount = a.CurrentBid
		}

		b := bidder
		a.HighBidder = &b
		a.CurrentBid = amount
		if err := tx.Auctions().Update(ctx, a); err != nil {
			return fmt.Errorf("auction_house: update %d: %w", a.ID, err)
		}
		return tx.Emit(ctx, domain.EventBidPlaced, ev)
	})
	if err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "auction_house: bid placed",
		slog.Uint64("token_id", uint64(tokenID)),
		slog.String("bidder", bidder.Hex()),
		slog.String("amount", amount.String()),
	)
	return nil
}

// Settle closes an ended auction. With a winner the token moves to the
// winner and the escrowed bid to the seller; without one nothing moves. If
// the seller no longer holds the token or no longer grants it to the house,
// the high bid is refunded and the auction settles without a winner.
// Anyone may settle.
func (h *AuctionHouse) Settle(ctx context.Context, tokenID domain.TokenID) (domain.AuctionSettled, error) {
	var result domain.AuctionSettled
	in := intent{
		name:   "settle",
		keys:   []string{auctionKey(h.collection, tokenID)},
		detail: map[string]any{"token_id": uint64(tokenID)},
	}
	_, err := h.committer.Commit(ctx, in, func(ctx context.Context, tx domain.Tx) error {
		a, err := tx.Auctions().Latest(ctx, h.collection, tokenID)
		if err != nil {
			return err
		}
		switch a.State(h.clock.Now()) {
		case domain.AuctionStateSettled:
			return domain.ErrAlreadySettled.Withf("token %d", tokenID)
		case domain.AuctionStateActive:
			return domain.ErrAuctionNotEnded.Withf("token %d ends at %s", tokenID, a.EndTime.Format(time.RFC3339))
		}

		result = domain.AuctionSettled{TokenID: tokenID, FinalAmount: a.CurrentBid}
		if a.HighBidder != nil {
			winner := *a.HighBidder
			err := h.vault.TransferFrom(ctx, tx, h.house, a.Seller, winner, domain.NonFungibleAsset(h.collection, tokenID))
			switch {
			case err == nil:
				if err := h.vault.Transfer(ctx, tx, h.house, a.Seller, domain.FungibleAsset(h.payment, a.CurrentBid)); err != nil {
					return err
				}
				result.Winner = &winner
			case errors.Is(err, domain.ErrNotOwner), errors.Is(err, domain.ErrNoCustodyGrant):
				// The token left the seller or its grant to the house was
				// replaced. Hand the escrowed bid back.
				if err := h.vault.Transfer(ctx, tx, h.house, winner, domain.FungibleAsset(h.payment, a.CurrentBid)); err != nil {
					return fmt.Errorf("auction_house: refund %s: %w", winner.Hex(), err)
				}
				h.logger.WarnContext(ctx, "auction_house: token undeliverable, high bid refunded",
					slog.Uint64("token_id", uint64(tokenID)),
					slog.String("bidder", winner.Hex()),
					slog.String("reason", err.Error()),
				)
				result.FinalAmount = domain.NewAmount(0)
				result.RefundedBidder = &winner
				result.RefundedAmount = a.CurrentBid
			default:
				return err
			}
		}

		a.Settled = true
		if err := tx.Auctions().Update(ctx, a); err != nil {
			return fmt.Errorf("auction_house: settle %d: %w", a.ID, err)
		}
		return tx.Emit(ctx, domain.EventAuctionSettled, result)
	})
	if err != nil {
		return domain.AuctionSettled{}, err
	}

	attrs := []any{slog.Uint64("token_id", uint64(tokenID)), slog.String("final_amount", result.FinalAmount.String())}
	if result.Winner != nil {
		attrs = append(attrs, slog.String("winner", result.Winner.Hex()))
	}
	h.logger.InfoContext(ctx, "auction_house: settled", attrs...)
	return result, nil
}

// GetAuction returns the latest auction for a token with its current state.
func (h *AuctionHouse) GetAuction(ctx context.Context, tokenID domain.TokenID) (domain.AuctionView, error) {
	var view domain.AuctionView
	err := h.committer.UnitOfWork().View(ctx, func(ctx context.Context, tx domain.Tx) error {
		a, err := tx.Auctions().Latest(ctx, h.collection, tokenID)
		if err != nil {
			return err
		}
		view = domain.AuctionView{Auction: a, State: a.State(h.clock.Now())}
		return nil
	})
	return view, err
}

// ListAuctions returns auctions in id order with their current state.
func (h *AuctionHouse) ListAuctions(ctx context.Context, f domain.AuctionFilter) ([]domain.AuctionView, error) {
	var out []domain.AuctionView
	err := h.committer.UnitOfWork().View(ctx, func(ctx context.Context, tx domain.Tx) error {
		auctions, err := tx.Auctions().List(ctx, f)
		if err != nil {
			return err
		}
		now := h.clock.Now()
		out = make([]domain.AuctionView, 0, len(auctions))
		for _, a := range auctions {
			out = append(out, domain.AuctionView{Auction: a, State: a.State(now)})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("auction_house: list: %w", err)
	}
	return out, nil
}

// ListSettleable returns ended, unsettled auctions.
func (h *AuctionHouse) ListSettleable(ctx context.Context, limit int) ([]domain.Auction, error) {
	var out []domain.Auction
	err := h.committer.UnitOfWork().View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.Auctions().ListSettleable(ctx, h.clock.Now(), limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("auction_house: list settleable: %w", err)
	}
	return out, nil
}

func validateAuctionParams(seller domain.Address, startPrice domain.Amount, duration time.Duration) error {
	if err := requireAddress(seller, "seller"); err != nil {
		return err
	}
	if startPrice.IsZero() {
		return domain.ErrInvalidPrice.Withf("start price must be positive")
	}
	if duration <= 0 {
		return domain.ErrInvalidDuration.Withf("duration must be positive")
	}
	return nil
}
