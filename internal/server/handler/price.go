package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// PriceService defines the display quote methods the price handler needs.
type PriceService interface {
	Quote(ctx context.Context) (domain.PriceQuote, error)
	Value(ctx context.Context, amount domain.Amount) (decimal.Decimal, error)
}

// PriceHandler serves the display quote of the payment asset.
type PriceHandler struct {
	prices PriceService
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(prices PriceService, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{prices: prices, logger: logHandler(logger, "price")}
}

// GetQuote returns the cached quote, and the converted value of amount when
// the amount query parameter is set.
// GET /api/price?amount=1000000000000000000
func (h *PriceHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	q, err := h.prices.Quote(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to read quote")
		return
	}

	resp := map[string]any{"quote": q}
	if v := r.URL.Query().Get("amount"); v != "" {
		amount, err := domain.ParseAmount(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid amount parameter")
			return
		}
		value, err := h.prices.Value(r.Context(), amount)
		if err != nil {
			writeDomainError(w, r, h.logger, err, "failed to value amount")
			return
		}
		resp["amount"] = amount
		resp["value"] = value
	}
	writeJSON(w, http.StatusOK, resp)
}
