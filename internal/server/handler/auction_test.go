package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

type recordingAuctions struct {
	duration time.Duration
	calls    int
}

func (f *recordingAuctions) CreateAuction(_ context.Context, _ domain.Address, _ domain.TokenID, _ domain.Amount, d time.Duration) (domain.AuctionID, error) {
	f.calls++
	f.duration = d
	return 1, nil
}

func (f *recordingAuctions) MintWithAuction(context.Context, domain.Address, int, domain.Amount, string) (domain.TokenID, domain.AuctionID, error) {
	return 1, 1, nil
}

func (f *recordingAuctions) PlaceBid(context.Context, domain.TokenID, domain.Address, domain.Amount) error {
	return nil
}

func (f *recordingAuctions) Settle(context.Context, domain.TokenID) (domain.AuctionSettled, error) {
	return domain.AuctionSettled{}, nil
}

func (f *recordingAuctions) GetAuction(context.Context, domain.TokenID) (domain.AuctionView, error) {
	return domain.AuctionView{}, domain.ErrAuctionNotFound
}

func (f *recordingAuctions) ListAuctions(context.Context, domain.AuctionFilter) ([]domain.AuctionView, error) {
	return nil, nil
}

func TestCreateAuctionDurationBounds(t *testing.T) {
	cases := []struct {
		name    string
		seconds int64
		status  int
	}{
		{"one hour", 3600, http.StatusCreated},
		{"largest representable", maxDurationSeconds, http.StatusCreated},
		{"one past largest", maxDurationSeconds + 1, http.StatusBadRequest},
		{"int64 max", 1<<63 - 1, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &recordingAuctions{}
			h := NewAuctionHandler(svc, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

			body := fmt.Sprintf(`{"seller":"0x00000000000000000000000000000000000000a1","token_id":1,"start_price":"5","duration_seconds":%d}`, tc.seconds)
			rec := httptest.NewRecorder()
			h.CreateAuction(rec, httptest.NewRequest(http.MethodPost, "/api/auctions", strings.NewReader(body)))

			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.status != http.StatusCreated {
				var resp errorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, "invalid_duration", resp.Code)
				assert.Zero(t, svc.calls)
				return
			}
			assert.Equal(t, time.Duration(tc.seconds)*time.Second, svc.duration)
			assert.Positive(t, svc.duration)
		})
	}
}
