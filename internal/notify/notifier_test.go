package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

type recordingSender struct {
	name   string
	titles []string
	bodies []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, message string) error {
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, message)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func event(t *testing.T, typ domain.EventType, payload any) domain.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return domain.Event{Seq: 9, Type: typ, Payload: raw}
}

func TestNotifierFiltersByEventType(t *testing.T) {
	rec := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{rec}, []string{"ListingSold", " AuctionSettled "}, quietLogger())
	ctx := context.Background()

	buyer := domain.DeriveAccount("buyer")
	require.NoError(t, n.HandleEvent(ctx, event(t, domain.EventListingSold, domain.ListingSold{ID: 3, Buyer: buyer, Price: domain.NewAmount(5)})))
	require.NoError(t, n.HandleEvent(ctx, event(t, domain.EventBidPlaced, domain.BidPlaced{TokenID: 1})))
	require.NoError(t, n.HandleEvent(ctx, event(t, domain.EventAuctionSettled, domain.AuctionSettled{TokenID: 7})))

	assert.Equal(t, []string{"Listing sold", "Auction settled"}, rec.titles)
	assert.Equal(t, "Listing 3 sold to "+buyer.Hex()+" for 5", rec.bodies[0])
	assert.Equal(t, "Token 7 closed without bids", rec.bodies[1])
}

func TestNotifierEmptyFilterForwardsEverything(t *testing.T) {
	rec := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{rec}, nil, quietLogger())

	require.NoError(t, n.HandleEvent(context.Background(), event(t, domain.EventCredited, map[string]string{"amount": "1"})))
	require.Len(t, rec.titles, 1)
	assert.Equal(t, "Credited", rec.titles[0])
	assert.Equal(t, `seq 9: {"amount":"1"}`, rec.bodies[0])
}

func TestNotifierContinuesPastFailingSender(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("down")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, quietLogger())

	err := n.HandleEvent(context.Background(), event(t, domain.EventListingCancelled, domain.ListingCancelled{ID: 1}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Len(t, good.titles, 1)
	assert.True(t, n.Enabled())
}

func TestDiscordAndTelegramSenders(t *testing.T) {
	var got []map[string]string
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		got = append(got, body)
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/fail" {
			http.Error(w, "nope", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	ctx := context.Background()

	require.NoError(t, NewDiscordSender(srv.URL+"/hook").Send(ctx, "T", "m"))
	require.NoError(t, NewTelegramSender(srv.URL+"/", "tok", "42").Send(ctx, "T", "m"))
	err := NewDiscordSender(srv.URL + "/fail").Send(ctx, "T", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 400")

	require.Len(t, got, 3)
	assert.Equal(t, "**T**\nm", got[0]["content"])
	assert.Equal(t, "/bottok/sendMessage", paths[1])
	assert.Equal(t, "42", got[1]["chat_id"])
	assert.Equal(t, "*T*\nm", got[1]["text"])
}
