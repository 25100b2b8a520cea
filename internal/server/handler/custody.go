package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// CustodyService defines the methods that the custody handler requires from
// the service layer.
type CustodyService interface {
	Approve(ctx context.Context, owner, spender domain.Address, asset domain.Asset) error
	Credit(ctx context.Context, contract, holder domain.Address, amount domain.Amount) error
	MintNFT(ctx context.Context, owner domain.Address, uri string, price domain.Amount) (domain.TokenID, error)
	Balance(ctx context.Context, contract, holder domain.Address) (domain.Amount, error)
	Allowance(ctx context.Context, contract, owner, spender domain.Address) (domain.Amount, error)
	Token(ctx context.Context, id domain.TokenID) (domain.Token, error)
	TokensOf(ctx context.Context, owner domain.Address) ([]domain.Token, error)
}

// CustodyHandler serves approvals, balances and the NFT collection.
type CustodyHandler struct {
	custody   CustodyService
	accounts  domain.SystemAccounts
	contracts domain.Contracts
	logger    *slog.Logger
}

// NewCustodyHandler creates a CustodyHandler. Requests may name system
// accounts and contracts by alias ("marketplace", "payment", ...).
func NewCustodyHandler(custody CustodyService, accounts domain.SystemAccounts, contracts domain.Contracts, logger *slog.Logger) *CustodyHandler {
	return &CustodyHandler{
		custody:   custody,
		accounts:  accounts,
		contracts: contracts,
		logger:    logHandler(logger, "custody"),
	}
}

type approveRequest struct {
	Owner    string `json:"owner" validate:"required,eth_addr"`
	Spender  string `json:"spender" validate:"required,eth_addr|oneof=marketplace auction_house stake_vault"`
	Standard string `json:"standard" validate:"required,standard"`
	Contract string `json:"contract" validate:"omitempty,eth_addr|oneof=payment stake_token collection"`
	TokenID  uint64 `json:"token_id"`
	Amount   string `json:"amount" validate:"omitempty,amount"`
}

type creditRequest struct {
	Asset  string `json:"asset" validate:"required,eth_addr|oneof=payment stake_token"`
	Holder string `json:"holder" validate:"required,eth_addr"`
	Amount string `json:"amount" validate:"required,amount"`
}

type mintNFTRequest struct {
	Owner string `json:"owner" validate:"required,eth_addr"`
	URI   string `json:"uri" validate:"max=2048"`
	Price string `json:"price" validate:"omitempty,amount"`
}

type listTokensResponse struct {
	Tokens []domain.Token `json:"tokens"`
}

// resolveAccount maps a system account alias or a hex address.
func (h *CustodyHandler) resolveAccount(s string) (domain.Address, bool) {
	switch strings.ToLower(s) {
	case "marketplace":
		return h.accounts.Marketplace, true
	case "auction_house":
		return h.accounts.AuctionHouse, true
	case "stake_vault":
		return h.accounts.StakeVault, true
	}
	addr, err := domain.ParseAddress(s)
	return addr, err == nil
}

// resolveContract maps a contract alias or a hex address. ok is false for
// an unknown alias that is not an address either.
func (h *CustodyHandler) resolveContract(s string) (domain.Address, bool) {
	switch strings.ToLower(s) {
	case "payment", "native":
		return h.contracts.Payment, true
	case "stake_token", "token":
		return h.contracts.StakeToken, true
	case "collection", "nft":
		return h.contracts.Collection, true
	}
	addr, err := domain.ParseAddress(s)
	return addr, err == nil
}

// Approve records a custody grant from owner to spender.
// POST /api/custody/approvals
func (h *CustodyHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
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
		asset.Contract, _ = h.resolveContract(req.Contract)
	case kind == domain.AssetNonFungible:
		asset.Contract = h.contracts.Collection
	default:
		asset.Contract = h.contracts.StakeToken
	}

	spender, _ := h.resolveAccount(req.Spender)
	if err := h.custody.Approve(r.Context(), addressOf(req.Owner), spender, asset); err != nil {
		writeDomainError(w, r, h.logger, err, "failed to approve")
		return
	}
	writeJSON(w, http.StatusOK, domain.Approval{Owner: addressOf(req.Owner), Spender: spender, Asset: asset})
}

// Credit deposits units of a fungible asset to a holder.
// POST /api/custody/credits
func (h *CustodyHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if !decode(w, r, &req) {
		return
	}

	contract, _ := h.resolveContract(req.Asset)
	if err := h.custody.Credit(r.Context(), contract, addressOf(req.Holder), amountOf(req.Amount)); err != nil {
		writeDomainError(w, r, h.logger, err, "failed to credit")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"asset": contract, "holder": addressOf(req.Holder), "amount": req.Amount})
}

// MintNFT mints a token of the collection.
// POST /api/nfts
func (h *CustodyHandler) MintNFT(w http.ResponseWriter, r *http.Request) {
	var req mintNFTRequest
	if !decode(w, r, &req) {
		return
	}

	id, err := h.custody.MintNFT(r.Context(), addressOf(req.Owner), req.URI, amountOf(req.Price))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to mint")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"collection": h.contracts.Collection, "token_id": id})
}

// GetToken returns one token of the collection.
// GET /api/nfts/{tokenId}
func (h *CustodyHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "tokenId")
	if !ok {
		return
	}
	tok, err := h.custody.Token(r.Context(), domain.TokenID(id))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to get token")
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// ListTokens returns the tokens held by an owner.
// GET /api/nfts?owner=0x...
func (h *CustodyHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	owner, err := queryAddress(r, "owner")
	if err != nil || owner == nil {
		writeError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}
	tokens, err := h.custody.TokensOf(r.Context(), *owner)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list tokens")
		return
	}
	if tokens == nil {
		tokens = []domain.Token{}
	}
	writeJSON(w, http.StatusOK, listTokensResponse{Tokens: tokens})
}

// GetBalance returns a holder's balance of one asset, or of the payment and
// stake assets when no asset is given.
// GET /api/balances/{holder}?asset=payment
func (h *CustodyHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	holder, ok := pathAddress(w, r, "holder")
	if !ok {
		return
	}

	if asset := r.URL.Query().Get("asset"); asset != "" {
		contract, ok := h.resolveContract(asset)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid asset parameter")
			return
		}
		bal, err := h.custody.Balance(r.Context(), contract, holder)
		if err != nil {
			writeDomainError(w, r, h.logger, err, "failed to read balance")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"holder": holder, "asset": contract, "balance": bal})
		return
	}

	payment, err := h.custody.Balance(r.Context(), h.contracts.Payment, holder)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to read balance")
		return
	}
	stake, err := h.custody.Balance(r.Context(), h.contracts.StakeToken, holder)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to read balance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"holder":      holder,
		"payment":     payment,
		"stake_token": stake,
	})
}

// GetAllowance returns the fungible grant an owner gave a spender.
// GET /api/allowances/{owner}?spender=marketplace&asset=stake_token
func (h *CustodyHandler) GetAllowance(w http.ResponseWriter, r *http.Request) {
	owner, ok := pathAddress(w, r, "owner")
	if !ok {
		return
	}
	q := r.URL.Query()
	spender, ok := h.resolveAccount(q.Get("spender"))
	if !ok {
		writeError(w, http.StatusBadRequest, "spender query parameter required")
		return
	}
	contract := h.contracts.StakeToken
	if asset := q.Get("asset"); asset != "" {
		if contract, ok = h.resolveContract(asset); !ok {
			writeError(w, http.StatusBadRequest, "invalid asset parameter")
			return
		}
	}

	allowance, err := h.custody.Allowance(r.Context(), contract, owner, spender)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to read allowance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "spender": spender, "asset": contract, "allowance": allowance})
}
