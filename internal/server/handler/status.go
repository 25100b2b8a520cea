package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// StatusHandler serves the backend status for dashboards and operators.
type StatusHandler struct {
	Mode      string
	StartedAt time.Time
	Accounts  domain.SystemAccounts
	Contracts domain.Contracts
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, accounts domain.SystemAccounts, contracts domain.Contracts) *StatusHandler {
	return &StatusHandler{Mode: mode, StartedAt: startedAt, Accounts: accounts, Contracts: contracts}
}

// GetStatus responds with the mode, uptime and the ledger's system accounts
// and asset contracts.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"started_at":     h.StartedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
		"accounts": map[string]domain.Address{
			"marketplace":   h.Accounts.Marketplace,
			"auction_house": h.Accounts.AuctionHouse,
			"stake_vault":   h.Accounts.StakeVault,
		},
		"contracts": map[string]domain.Address{
			"payment":     h.Contracts.Payment,
			"stake_token": h.Contracts.StakeToken,
			"collection":  h.Contracts.Collection,
		},
	})
}
