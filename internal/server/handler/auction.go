package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// AuctionService defines the methods that the auction handler requires from
// the service layer.
type AuctionService interface {
	CreateAuction(ctx context.Context, seller domain.Address, tokenID domain.TokenID, startPrice domain.Amount, duration time.Duration) (domain.AuctionID, error)
	MintWithAuction(ctx context.Context, seller domain.Address, durationDays int, startPrice domain.Amount, uri string) (domain.TokenID, domain.AuctionID, error)
	PlaceBid(ctx context.Context, tokenID domain.TokenID, bidder domain.Address, amount domain.Amount) error
	Settle(ctx context.Context, tokenID domain.TokenID) (domain.AuctionSettled, error)
	GetAuction(ctx context.Context, tokenID domain.TokenID) (domain.AuctionView, error)
	ListAuctions(ctx context.Context, f domain.AuctionFilter) ([]domain.AuctionView, error)
}

// Valuer converts payment-asset amounts into the display currency.
type Valuer interface {
	Value(ctx context.Context, amount domain.Amount) (decimal.Decimal, error)
}

// AuctionHandler serves auction endpoints.
type AuctionHandler struct {
	auctions AuctionService
	valuer   Valuer
	logger   *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler. valuer may be nil, in which
// case responses carry no display value.
func NewAuctionHandler(auctions AuctionService, valuer Valuer, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctions: auctions,
		valuer:   valuer,
		logger:   logHandler(logger, "auction"),
	}
}

// maxDurationSeconds keeps DurationSeconds * time.Second within int64.
const maxDurationSeconds = math.MaxInt64 / int64(time.Second)

type createAuctionRequest struct {
	Seller          string `json:"seller" validate:"required,eth_addr"`
	TokenID         uint64 `json:"token_id" validate:"required"`
	StartPrice      string `json:"start_price" validate:"required,amount"`
	DurationSeconds int64  `json:"duration_seconds" validate:"required,gt=0"`
}

type mintWithAuctionRequest struct {
	Seller       string `json:"seller" validate:"required,eth_addr"`
	DurationDays int    `json:"duration_days" validate:"required,gt=0"`
	StartPrice   string `json:"start_price" validate:"required,amount"`
	URI          string `json:"uri" validate:"max=2048"`
}

type placeBidRequest struct {
	Bidder string `json:"bidder" validate:"required,eth_addr"`
	Amount string `json:"amount" validate:"required,amount"`
}

type auctionResponse struct {
	domain.AuctionView
	MinimumBid    *domain.Amount   `json:"minimum_bid,omitempty"`
	CurrentBidUSD *decimal.Decimal `json:"current_bid_usd,omitempty"`
}

type listAuctionsResponse struct {
	Auctions []domain.AuctionView `json:"auctions"`
}

// CreateAuction opens an auction for a token the seller owns and has
// approved to the auction house.
// POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if !decode(w, r, &req) {
		return
	}

	if req.DurationSeconds > maxDurationSeconds {
		writeDomainError(w, r, h.logger,
			domain.ErrInvalidDuration.Withf("duration %ds exceeds %ds", req.DurationSeconds, maxDurationSeconds),
			"failed to create auction")
		return
	}
	duration := time.Duration(req.DurationSeconds) * time.Second
	id, err := h.auctions.CreateAuction(r.Context(), addressOf(req.Seller), domain.TokenID(req.TokenID), amountOf(req.StartPrice), duration)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to create auction")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"auction_id": id, "token_id": req.TokenID})
}

// MintWithAuction mints a new token to the seller and auctions it.
// POST /api/auctions/mint
func (h *AuctionHandler) MintWithAuction(w http.ResponseWriter, r *http.Request) {
	var req mintWithAuctionRequest
	if !decode(w, r, &req) {
		return
	}

	tokenID, auctionID, err := h.auctions.MintWithAuction(r.Context(), addressOf(req.Seller), req.DurationDays, amountOf(req.StartPrice), req.URI)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to mint with auction")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"auction_id": auctionID, "token_id": tokenID})
}

// PlaceBid escrows a bid and refunds the previous high bidder.
// POST /api/auctions/{tokenId}/bids
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := pathUint(w, r, "tokenId")
	if !ok {
		return
	}
	var req placeBidRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.auctions.PlaceBid(r.Context(), domain.TokenID(tokenID), addressOf(req.Bidder), amountOf(req.Amount)); err != nil {
		writeDomainError(w, r, h.logger, err, "failed to place bid")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token_id": tokenID, "bidder": addressOf(req.Bidder), "amount": req.Amount})
}

// Settle closes an ended auction. Anyone may call it.
// POST /api/auctions/{tokenId}/settle
func (h *AuctionHandler) Settle(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := pathUint(w, r, "tokenId")
	if !ok {
		return
	}
	result, err := h.auctions.Settle(r.Context(), domain.TokenID(tokenID))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to settle auction")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetAuction returns the latest auction of a token with its state.
// GET /api/auctions/{tokenId}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := pathUint(w, r, "tokenId")
	if !ok {
		return
	}
	view, err := h.auctions.GetAuction(r.Context(), domain.TokenID(tokenID))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to get auction")
		return
	}

	resp := auctionResponse{AuctionView: view}
	if view.State == domain.AuctionStateActive {
		if minBid, err := view.MinimumBid(); err == nil {
			resp.MinimumBid = &minBid
		}
	}
	if h.valuer != nil && !view.CurrentBid.IsZero() {
		// Display only; a missing quote is not an error.
		if usd, err := h.valuer.Value(r.Context(), view.CurrentBid); err == nil {
			resp.CurrentBidUSD = &usd
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListAuctions returns auctions in id order.
// GET /api/auctions?settled=false&seller=0x...&limit=50&offset=0
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	var f domain.AuctionFilter
	var err error
	if f.Settled, err = queryBool(r, "settled"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settled parameter")
		return
	}
	if f.Seller, err = queryAddress(r, "seller"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid seller parameter")
		return
	}
	f.Limit, f.Offset = parseListOpts(r)

	auctions, err := h.auctions.ListAuctions(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list auctions")
		return
	}
	if auctions == nil {
		auctions = []domain.AuctionView{}
	}
	writeJSON(w, http.StatusOK, listAuctionsResponse{Auctions: auctions})
}
