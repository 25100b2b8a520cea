package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// EventReader reads the committed event log.
type EventReader interface {
	After(ctx context.Context, after uint64, limit int) ([]domain.Event, error)
}

// EventHandler serves the ledger event log.
type EventHandler struct {
	events EventReader
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(events EventReader, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logHandler(logger, "events")}
}

type listEventsResponse struct {
	Events []domain.Event `json:"events"`
	// Next is the cursor to pass as after for the following page.
	Next uint64 `json:"next"`
}

// ListEvents returns committed events with seq greater than after, in seq
// order.
// GET /api/events?after=0&limit=100
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var after uint64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after parameter")
			return
		}
		after = n
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = n
	}

	events, err := h.events.After(r.Context(), after, limit)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list events")
		return
	}
	resp := listEventsResponse{Events: events, Next: after}
	if resp.Events == nil {
		resp.Events = []domain.Event{}
	}
	if n := len(events); n > 0 {
		resp.Next = events[n-1].Seq
	}
	writeJSON(w, http.StatusOK, resp)
}
