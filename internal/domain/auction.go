package domain

import "time"

// AuctionID is assigned from 1 upward.
type AuctionID uint64

// AuctionState is derived from an auction's fields and the current time.
type AuctionState uint8

const (
	AuctionStateNone AuctionState = iota
	AuctionStateActive
	AuctionStateEnded
	AuctionStateSettled
)

func (s AuctionState) String() string {
	switch s {
	case AuctionStateActive:
		return "active"
	case AuctionStateEnded:
		return "ended"
	case AuctionStateSettled:
		return "settled"
	default:
		return "none"
	}
}

func (s AuctionState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Auction is a timed English auction for one non-fungible token. EndTime is
// fixed at creation; Settled moves from false to true exactly once.
type Auction struct {
	ID         AuctionID `json:"id"`
	Collection Address   `json:"collection"`
	TokenID    TokenID   `json:"token_id"`
	Seller     Address   `json:"seller"`
	StartPrice Amount    `json:"start_price"`
	CurrentBid Amount    `json:"current_bid"`
	HighBidder *Address  `json:"high_bidder,omitempty"`
	EndTime    time.Time `json:"end_time"`
	Settled    bool      `json:"settled"`
	CreatedAt  time.Time `json:"created_at"`
}

// State reports the lifecycle phase at now. An auction is active strictly
// before EndTime.
func (a *Auction) State(now time.Time) AuctionState {
	switch {
	case a == nil:
		return AuctionStateNone
	case a.Settled:
		return AuctionStateSettled
	case now.Before(a.EndTime):
		return AuctionStateActive
	default:
		return AuctionStateEnded
	}
}

// MinimumBid is the smallest amount PlaceBid accepts: the start price when no
// bid exists, otherwise anything strictly above the current bid.
func (a *Auction) MinimumBid() (Amount, error) {
	if a.HighBidder == nil {
		return a.StartPrice, nil
	}
	return a.CurrentBid.Add(NewAmount(1))
}

// AuctionView is an auction together with its state at query time.
type AuctionView struct {
	Auction
	State AuctionState `json:"state"`
}

// AuctionFilter narrows auction queries.
type AuctionFilter struct {
	Seller  *Address
	Settled *bool
	Limit   int
	Offset  int
}

// Match reports whether a satisfies every set field of f.
func (f AuctionFilter) Match(a Auction) bool {
	if f.Seller != nil && a.Seller != *f.Seller {
		return false
	}
	if f.Settled != nil && a.Settled != *f.Settled {
		return false
	}
	return true
}
