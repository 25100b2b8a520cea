package domain

import (
	"encoding/json"
	"time"
)

// EventType names a committed state change.
type EventType string

const (
	EventListingCreated   EventType = "ListingCreated"
	EventListingSold      EventType = "ListingSold"
	EventListingCancelled EventType = "ListingCancelled"
	EventStaked           EventType = "Staked"
	EventUnstaked         EventType = "Unstaked"
	EventAuctionCreated   EventType = "AuctionCreated"
	EventBidPlaced        EventType = "BidPlaced"
	EventAuctionSettled   EventType = "AuctionSettled"
	EventTokenMinted      EventType = "TokenMinted"
	EventApproval         EventType = "Approval"
	EventCredited         EventType = "Credited"
)

// Event is one entry of the append-only ledger event log. Seq is gapless and
// follows commit order.
type Event struct {
	Seq         uint64          `json:"seq"`
	Type        EventType       `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	CommittedAt time.Time       `json:"committed_at"`
}

type ListingCreated struct {
	ID     ListingID `json:"id"`
	Seller Address   `json:"seller"`
	Asset  Asset     `json:"asset"`
	Price  Amount    `json:"price"`
}

type ListingSold struct {
	ID     ListingID `json:"id"`
	Buyer  Address   `json:"buyer"`
	Seller Address   `json:"seller"`
	Price  Amount    `json:"price"`
}

type ListingCancelled struct {
	ID ListingID `json:"id"`
}

type Staked struct {
	Holder         Address `json:"holder"`
	Amount         Amount  `json:"amount"`
	NewStakedTotal Amount  `json:"new_staked_total"`
}

type Unstaked struct {
	Holder         Address `json:"holder"`
	AmountReturned Amount  `json:"amount_returned"`
}

type AuctionCreated struct {
	AuctionID  AuctionID `json:"auction_id"`
	Collection Address   `json:"collection"`
	TokenID    TokenID   `json:"token_id"`
	Seller     Address   `json:"seller"`
	StartPrice Amount    `json:"start_price"`
	EndTime    time.Time `json:"end_time"`
}

type BidPlaced struct {
	TokenID        TokenID  `json:"token_id"`
	Bidder         Address  `json:"bidder"`
	Amount         Amount   `json:"amount"`
	RefundedBidder *Address `json:"refunded_bidder,omitempty"`
	RefundedAmount Amount   `json:"refunded_amount"`
}

// AuctionSettled carries RefundedBidder instead of Winner when the seller no
// longer let the house deliver the token and the high bid went back.
type AuctionSettled struct {
	TokenID        TokenID  `json:"token_id"`
	Winner         *Address `json:"winner,omitempty"`
	FinalAmount    Amount   `json:"final_amount"`
	RefundedBidder *Address `json:"refunded_bidder,omitempty"`
	RefundedAmount Amount   `json:"refunded_amount"`
}

type TokenMinted struct {
	Collection Address `json:"collection"`
	TokenID    TokenID `json:"token_id"`
	Owner      Address `json:"owner"`
	URI        string  `json:"uri"`
}

type Approval struct {
	Owner   Address `json:"owner"`
	Spender Address `json:"spender"`
	Asset   Asset   `json:"asset"`
}

type Credited struct {
	Asset  Address `json:"asset"`
	Holder Address `json:"holder"`
	Amount Amount  `json:"amount"`
}
