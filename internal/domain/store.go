package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ListingStore persists marketplace listings.
type ListingStore interface {
	// NextID returns the id the next Insert will assign.
	NextID(ctx context.Context) (ListingID, error)
	// Insert assigns the next id to l and stores it.
	Insert(ctx context.Context, l Listing) (ListingID, error)
	Get(ctx context.Context, id ListingID) (Listing, error)
	Update(ctx context.Context, l Listing) error
	List(ctx context.Context, f ListingFilter) ([]Listing, error)
}

// AuctionStore persists auctions. Several auctions may exist for one token
// over time but at most one of them is unsettled.
type AuctionStore interface {
	Insert(ctx context.Context, a Auction) (AuctionID, error)
	// Latest returns the most recently created auction for the token.
	Latest(ctx context.Context, collection Address, id TokenID) (Auction, error)
	Update(ctx context.Context, a Auction) error
	// ListSettleable returns unsettled auctions whose end time is not after now.
	ListSettleable(ctx context.Context, now time.Time, limit int) ([]Auction, error)
	List(ctx context.Context, f AuctionFilter) ([]Auction, error)
}

// StakeStore persists stake positions.
type StakeStore interface {
	// Get returns the holder's position, or a zero position if none exists.
	Get(ctx context.Context, holder Address) (StakePosition, error)
	Put(ctx context.Context, p StakePosition) error
}

// CustodyStore persists balances, allowances and non-fungible tokens.
type CustodyStore interface {
	Balance(ctx context.Context, contract, holder Address) (Amount, error)
	SetBalance(ctx context.Context, contract, holder Address, amount Amount) error
	Allowance(ctx context.Context, contract, owner, spender Address) (Amount, error)
	SetAllowance(ctx context.Context, contract, owner, spender Address, amount Amount) error
	Token(ctx context.Context, collection Address, id TokenID) (Token, error)
	PutToken(ctx context.Context, t Token) error
	// NextTokenID allocates the next token id of the collection, starting at 1.
	NextTokenID(ctx context.Context, collection Address) (TokenID, error)
	ListTokens(ctx context.Context, collection, owner Address) ([]Token, error)
}

// Tx is the view of every store inside one unit of work. Effects made through
// a Tx become visible to others only when the unit of work commits.
type Tx interface {
	Listings() ListingStore
	Auctions() AuctionStore
	Stakes() StakeStore
	Custody() CustodyStore
	// Emit appends an event that is committed together with the state change.
	Emit(ctx context.Context, typ EventType, payload any) error
}

// UnitOfWork executes intents one at a time per entity, atomically.
type UnitOfWork interface {
	// Do runs fn in a new transaction. If fn returns an error nothing is
	// persisted. On success it returns the events fn emitted with their
	// assigned sequence numbers.
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) ([]Event, error)
	// View runs fn against committed state. Mutations return ErrReadOnly.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Events returns committed events with Seq > after, in order.
	Events(ctx context.Context, after uint64, limit int) ([]Event, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
