package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// StakeService defines the methods that the stake handler requires from the
// service layer.
type StakeService interface {
	Stake(ctx context.Context, holder domain.Address, amount domain.Amount) (domain.StakePosition, error)
	Unstake(ctx context.Context, holder domain.Address) (domain.Amount, error)
	Position(ctx context.Context, holder domain.Address) (domain.StakePosition, error)
	AvailableBalance(ctx context.Context, holder domain.Address) (domain.Amount, error)
}

// StakeHandler serves staking endpoints.
type StakeHandler struct {
	stakes StakeService
	logger *slog.Logger
}

// NewStakeHandler creates a StakeHandler.
func NewStakeHandler(stakes StakeService, logger *slog.Logger) *StakeHandler {
	return &StakeHandler{stakes: stakes, logger: logHandler(logger, "stake")}
}

type stakeRequest struct {
	Holder string `json:"holder" validate:"required,eth_addr"`
	Amount string `json:"amount" validate:"required,amount"`
}

type stakeResponse struct {
	Holder    domain.Address `json:"holder"`
	Staked    domain.Amount  `json:"staked"`
	StakedAt  *time.Time     `json:"staked_at"`
	Available *domain.Amount `json:"available,omitempty"`
}

func newStakeResponse(pos domain.StakePosition) stakeResponse {
	resp := stakeResponse{Holder: pos.Holder, Staked: pos.Staked}
	if !pos.StakedAt.IsZero() {
		at := pos.StakedAt
		resp.StakedAt = &at
	}
	return resp
}

// Stake locks units of the stake token.
// POST /api/stakes
func (h *StakeHandler) Stake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if !decode(w, r, &req) {
		return
	}
	pos, err := h.stakes.Stake(r.Context(), addressOf(req.Holder), amountOf(req.Amount))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to stake")
		return
	}
	writeJSON(w, http.StatusOK, newStakeResponse(pos))
}

// Unstake returns the holder's whole stake.
// POST /api/stakes/{holder}/unstake
func (h *StakeHandler) Unstake(w http.ResponseWriter, r *http.Request) {
	holder, ok := pathAddress(w, r, "holder")
	if !ok {
		return
	}
	returned, err := h.stakes.Unstake(r.Context(), holder)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to unstake")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"holder": holder, "amount_returned": returned})
}

// GetStake returns the staked balance, the last staking time and the
// unstaked balance of the stake token.
// GET /api/stakes/{holder}
func (h *StakeHandler) GetStake(w http.ResponseWriter, r *http.Request) {
	holder, ok := pathAddress(w, r, "holder")
	if !ok {
		return
	}
	pos, err := h.stakes.Position(r.Context(), holder)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to read stake")
		return
	}
	available, err := h.stakes.AvailableBalance(r.Context(), holder)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to read balance")
		return
	}
	pos.Holder = holder
	resp := newStakeResponse(pos)
	resp.Available = &available
	writeJSON(w, http.StatusOK, resp)
}
