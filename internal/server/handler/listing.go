package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// ListingService defines the methods that the listing handler requires from
// the service layer.
type ListingService interface {
	ListItem(ctx context.Context, seller domain.Address, asset domain.Asset, price domain.Amount) (domain.ListingID, error)
	BuyItem(ctx context.Context, id domain.ListingID, buyer domain.Address, payment domain.Amount) (domain.Receipt, error)
	CancelListing(ctx context.Context, id domain.ListingID, caller domain.Address) error
	GetListing(ctx context.Context, id domain.ListingID) (domain.Listing, error)
	NextListingID(ctx context.Context) (domain.ListingID, error)
	ListListings(ctx context.Context, f domain.ListingFilter) ([]domain.Listing, error)
}

// ListingHandler serves marketplace listing endpoints.
type ListingHandler struct {
	listings  ListingService
	contracts domain.Contracts
	logger    *slog.Logger
}

// NewListingHandler creates a ListingHandler. contracts supply the default
// asset contract when a request omits it.
func NewListingHandler(listings ListingService, contracts domain.Contracts, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		listings:  listings,
		contracts: contracts,
		logger:    logHandler(logger, "listing"),
	}
}

type listItemRequest struct {
	Seller   string `json:"seller" validate:"required,eth_addr"`
	Standard string `json:"standard" validate:"required,standard"`
	Contract string `json:"contract" validate:"omitempty,eth_addr"`
	TokenID  uint64 `json:"token_id"`
	Amount   string `json:"amount" validate:"omitempty,amount"`
	Price    string `json:"price" validate:"required,amount"`
}

type buyItemRequest struct {
	Buyer   string `json:"buyer" validate:"required,eth_addr"`
	Payment string `json:"payment" validate:"required,amount"`
}

type cancelListingRequest struct {
	Caller string `json:"caller" validate:"required,eth_addr"`
}

type listListingsResponse struct {
	Listings []domain.Listing `json:"listings"`
}

// ListItem opens a fixed-price listing. The asset stays with the seller
// until a purchase pulls it.
// POST /api/listings
func (h *ListingHandler) ListItem(w http.ResponseWriter, r *http.Request) {
	var req listItemRequest
	if !decode(w, r, &req) {
		return
	}

	kind, _ := domain.ParseAssetKind(req.Standard)
	asset := domain.Asset{
		Kind:    kind,
		Amount:  amountOf(req.Amount),
		TokenID: domain.TokenID(req.TokenID),
	}
	switch {
	case req.Contract != "":
		asset.Contract = addressOf(req.Contract)
	case kind == domain.AssetNonFungible:
		asset.Contract = h.contracts.Collection
	default:
		asset.Contract = h.contracts.StakeToken
	}

	id, err := h.listings.ListItem(r.Context(), addressOf(req.Seller), asset, amountOf(req.Price))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list item")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// BuyItem purchases an active listing.
// POST /api/listings/{id}/buy
func (h *ListingHandler) BuyItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	var req buyItemRequest
	if !decode(w, r, &req) {
		return
	}

	receipt, err := h.listings.BuyItem(r.Context(), domain.ListingID(id), addressOf(req.Buyer), amountOf(req.Payment))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to buy item")
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// CancelListing closes an active listing. Nothing moves.
// POST /api/listings/{id}/cancel
func (h *ListingHandler) CancelListing(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	var req cancelListingRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.listings.CancelListing(r.Context(), domain.ListingID(id), addressOf(req.Caller)); err != nil {
		writeDomainError(w, r, h.logger, err, "failed to cancel listing")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "cancelled": true})
}

// GetListing returns one listing, open or closed.
// GET /api/listings/{id}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	l, err := h.listings.GetListing(r.Context(), domain.ListingID(id))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to get listing")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// NextListingID returns the id the next listing will receive. Clients
// enumerate listings as 0..next-1.
// GET /api/listings/next-id
func (h *ListingHandler) NextListingID(w http.ResponseWriter, r *http.Request) {
	id, err := h.listings.NextListingID(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to read next listing id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"next_id": id})
}

// ListListings returns listings in id order.
// GET /api/listings?active=true&seller=0x...&standard=erc721&limit=50&offset=0
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	var f domain.ListingFilter
	var err error
	if f.Active, err = queryBool(r, "active"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid active parameter")
		return
	}
	if f.Seller, err = queryAddress(r, "seller"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid seller parameter")
		return
	}
	if s := r.URL.Query().Get("standard"); s != "" {
		kind, err := domain.ParseAssetKind(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid standard parameter")
			return
		}
		f.Kind = &kind
	}
	f.Limit, f.Offset = parseListOpts(r)

	listings, err := h.listings.ListListings(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list listings")
		return
	}
	if listings == nil {
		listings = []domain.Listing{}
	}
	writeJSON(w, http.StatusOK, listListingsResponse{Listings: listings})
}
