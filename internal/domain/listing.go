package domain

import "time"

// ListingID is assigned from 0 upward without gaps and never reused.
type ListingID uint64

// Listing is a fixed-price sale offer. Active moves from true to false
// exactly once, by a sale or a cancellation.
type Listing struct {
	ID        ListingID  `json:"id"`
	Seller    Address    `json:"seller"`
	Asset     Asset      `json:"asset"`
	Price     Amount     `json:"price"`
	Active    bool       `json:"active"`
	Buyer     *Address   `json:"buyer,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// Sold reports whether the listing was closed by a purchase.
func (l Listing) Sold() bool { return !l.Active && l.Buyer != nil }

// Cancelled reports whether the listing was closed by its seller.
func (l Listing) Cancelled() bool { return !l.Active && l.Buyer == nil }

// ListingFilter narrows listing queries.
type ListingFilter struct {
	Seller *Address
	Kind   *AssetKind
	Active *bool
	Limit  int
	Offset int
}

// Match reports whether l satisfies every set field of f.
func (f ListingFilter) Match(l Listing) bool {
	if f.Seller != nil && l.Seller != *f.Seller {
		return false
	}
	if f.Kind != nil && l.Asset.Kind != *f.Kind {
		return false
	}
	if f.Active != nil && l.Active != *f.Active {
		return false
	}
	return true
}

// Receipt describes a completed purchase.
type Receipt struct {
	ListingID ListingID `json:"listing_id"`
	Buyer     Address   `json:"buyer"`
	Seller    Address   `json:"seller"`
	Asset     Asset     `json:"asset"`
	Price     Amount    `json:"price"`
	Seq       uint64    `json:"seq"`
}
