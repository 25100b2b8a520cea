package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

func TestWriteDomainError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cases := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"validation", domain.ErrPaymentMismatch.Withf("sent 1"), http.StatusBadRequest, "payment_mismatch", false},
		{"authorization", fmt.Errorf("wrapped: %w", domain.ErrNotSeller), http.StatusForbidden, "not_seller", false},
		{"not found", domain.ErrAuctionNotFound.Withf("token 9"), http.StatusNotFound, "auction_not_found", false},
		{"state", domain.ErrAlreadySettled, http.StatusUnprocessableEntity, "already_settled", false},
		{"conflict", domain.ErrLockTimeout.Withf("listing:1"), http.StatusConflict, "lock_timeout", true},
		{"plain not found", fmt.Errorf("cache: %w", domain.ErrNotFound), http.StatusNotFound, "", false},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			writeDomainError(rec, req, logger, tc.err, "failed")

			assert.Equal(t, tc.status, rec.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Code)
			assert.Equal(t, tc.retryable, body.Retryable)
			if tc.retryable {
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			}
			if tc.status == http.StatusInternalServerError {
				assert.Equal(t, "failed", body.Error)
			}
		})
	}
}

func TestDecodeValidation(t *testing.T) {
	valid := `{"seller":"0x00000000000000000000000000000000000000a1","standard":"erc721","token_id":3,"price":"100"}`
	cases := []struct {
		name string
		body string
		ok   bool
		want string
	}{
		{"valid", valid, true, ""},
		{"bad address", `{"seller":"0x12","standard":"erc20","price":"1"}`, false, "seller: eth_addr"},
		{"bad standard", `{"seller":"0x00000000000000000000000000000000000000a1","standard":"erc1155","price":"1"}`, false, "standard: standard"},
		{"negative price", `{"seller":"0x00000000000000000000000000000000000000a1","standard":"erc20","price":"-1"}`, false, "price: amount"},
		{"missing price", `{"seller":"0x00000000000000000000000000000000000000a1","standard":"erc20"}`, false, "price: required"},
		{"unknown field", `{"seller":"0x00000000000000000000000000000000000000a1","standard":"erc20","price":"1","extra":1}`, false, "unknown field"},
		{"not json", `nope`, false, "invalid request body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dst listItemRequest
			ok := decode(rec, req, &dst)
			assert.Equal(t, tc.ok, ok)
			if !tc.ok {
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Contains(t, rec.Body.String(), tc.want)
			}
		})
	}
}

func TestAmountRuleRejectsOverflow(t *testing.T) {
	tooBig := "1" + strings.Repeat("0", 78)
	err := validate.Struct(buyItemRequest{Buyer: "0x00000000000000000000000000000000000000a1", Payment: tooBig})
	require.Error(t, err)
	assert.Contains(t, validationMessage(err), "payment: amount")
}

func TestParseListOpts(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=9000&offset=-3", nil)
	limit, offset := parseListOpts(req)
	assert.Equal(t, 500, limit)
	assert.Equal(t, 0, offset)

	req = httptest.NewRequest(http.MethodGet, "/?limit=20&offset=40", nil)
	limit, offset = parseListOpts(req)
	assert.Equal(t, 20, limit)
	assert.Equal(t, 40, offset)
}
