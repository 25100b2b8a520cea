// Package notify forwards selected committed ledger events to operator chat
// channels (Telegram, Discord).
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches events to every sender. Only event types in the
// configured set are forwarded; an empty set forwards everything.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for the given senders and event type names.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventType(e)] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Run relays events published on the ledger channel until ctx is cancelled.
// Send failures are logged and do not stop the loop.
func (n *Notifier) Run(ctx context.Context, bus domain.SignalBus) error {
	msgs, err := bus.Subscribe(ctx, domain.LedgerChannel)
	if err != nil {
		return fmt.Errorf("notify: subscribe: %w", err)
	}
	n.logger.InfoContext(ctx, "notifier: started", slog.Int("senders", len(n.senders)))

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev domain.Event
			if err := json.Unmarshal(payload, &ev); err != nil {
				n.logger.WarnContext(ctx, "notifier: undecodable event", slog.String("error", err.Error()))
				continue
			}
			if err := n.HandleEvent(ctx, ev); err != nil {
				n.logger.WarnContext(ctx, "notifier: delivery failed",
					slog.Uint64("seq", ev.Seq),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// HandleEvent sends ev if its type is selected.
func (n *Notifier) HandleEvent(ctx context.Context, ev domain.Event) error {
	if len(n.events) > 0 && !n.events[ev.Type] {
		return nil
	}
	title, message := describe(ev)
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notifier: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notifier: sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// describe renders a human readable title and body for ev.
func describe(ev domain.Event) (string, string) {
	switch ev.Type {
	case domain.EventListingSold:
		var p domain.ListingSold
		if json.Unmarshal(ev.Payload, &p) == nil {
			return "Listing sold", fmt.Sprintf("Listing %d sold to %s for %s", p.ID, p.Buyer.Hex(), p.Price)
		}
	case domain.EventAuctionSettled:
		var p domain.AuctionSettled
		if json.Unmarshal(ev.Payload, &p) == nil {
			if p.RefundedBidder != nil {
				return "Auction settled", fmt.Sprintf("Token %d was not deliverable, %s refunded %s",
					p.TokenID, p.RefundedBidder.Hex(), p.RefundedAmount)
			}
			if p.Winner == nil {
				return "Auction settled", fmt.Sprintf("Token %d closed without bids", p.TokenID)
			}
			return "Auction settled", fmt.Sprintf("Token %d won by %s for %s", p.TokenID, p.Winner.Hex(), p.FinalAmount)
		}
	case domain.EventAuctionCreated:
		var p domain.AuctionCreated
		if json.Unmarshal(ev.Payload, &p) == nil {
			return "Auction opened", fmt.Sprintf("Token %d from %s, start price %s, ends %s",
				p.TokenID, p.Seller.Hex(), p.StartPrice, p.EndTime.Format("2006-01-02 15:04 MST"))
		}
	case domain.EventBidPlaced:
		var p domain.BidPlaced
		if json.Unmarshal(ev.Payload, &p) == nil {
			return "Bid placed", fmt.Sprintf("Token %d: %s bid %s", p.TokenID, p.Bidder.Hex(), p.Amount)
		}
	}
	return string(ev.Type), fmt.Sprintf("seq %d: %s", ev.Seq, ev.Payload)
}
