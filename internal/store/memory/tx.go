package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// txn overlays pending writes on the committed state. Reads check the
// overlay first. No locking is needed: writers hold the store's commit mutex
// and readers hold its state read lock for the whole call.
type txn struct {
	st       *state
	readOnly bool

	listings    map[domain.ListingID]domain.Listing
	newListings []domain.Listing
	auctions    map[domain.AuctionID]domain.Auction
	newAuctions []domain.Auction
	stakes      map[domain.Address]domain.StakePosition
	balances    map[balanceKey]domain.Amount
	allowances  map[allowanceKey]domain.Amount
	tokens      map[tokenKey]domain.Token
	lastToken   map[domain.Address]domain.TokenID
	events      []domain.Event
}

func newTxn(st *state, readOnly bool) *txn {
	return &txn{
		st:         st,
		readOnly:   readOnly,
		listings:   make(map[domain.ListingID]domain.Listing),
		auctions:   make(map[domain.AuctionID]domain.Auction),
		stakes:     make(map[domain.Address]domain.StakePosition),
		balances:   make(map[balanceKey]domain.Amount),
		allowances: make(map[allowanceKey]domain.Amount),
		tokens:     make(map[tokenKey]domain.Token),
		lastToken:  make(map[domain.Address]domain.TokenID),
	}
}

func (t *txn) Listings() domain.ListingStore { return listingTx{t} }
func (t *txn) Auctions() domain.AuctionStore { return auctionTx{t} }
func (t *txn) Stakes() domain.StakeStore     { return stakeTx{t} }
func (t *txn) Custody() domain.CustodyStore  { return custodyTx{t} }

func (t *txn) Emit(_ context.Context, typ domain.EventType, payload any) error {
	if t.readOnly {
		return domain.ErrReadOnly
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("memory: marshal %s event: %w", typ, err)
	}
	t.events = append(t.events, domain.Event{Type: typ, Payload: raw})
	return nil
}

func (t *txn) writable() error {
	if t.readOnly {
		return domain.ErrReadOnly
	}
	return nil
}

// --- listings ---

type listingTx struct{ t *txn }

func (s listingTx) count() int { return len(s.t.st.listings) + len(s.t.newListings) }

func (s listingTx) NextID(context.Context) (domain.ListingID, error) {
	return domain.ListingID(s.count()), nil
}

func (s listingTx) Insert(_ context.Context, l domain.Listing) (domain.ListingID, error) {
	if err := s.t.writable(); err != nil {
		return 0, err
	}
	l.ID = domain.ListingID(s.count())
	s.t.newListings = append(s.t.newListings, cloneListing(l))
	return l.ID, nil
}

func (s listingTx) Get(_ context.Context, id domain.ListingID) (domain.Listing, error) {
	committed := len(s.t.st.listings)
	switch {
	case int(id) >= s.count():
		return domain.Listing{}, domain.ErrListingNotFound.Withf("listing %d", id)
	case int(id) >= committed:
		return cloneListing(s.t.newListings[int(id)-committed]), nil
	}
	if l, ok := s.t.listings[id]; ok {
		return cloneListing(l), nil
	}
	return cloneListing(s.t.st.listings[id]), nil
}

func (s listingTx) Update(_ context.Context, l domain.Listing) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	committed := len(s.t.st.listings)
	switch {
	case int(l.ID) >= s.count():
		return domain.ErrListingNotFound.Withf("listing %d", l.ID)
	case int(l.ID) >= committed:
		s.t.newListings[int(l.ID)-committed] = cloneListing(l)
	default:
		s.t.listings[l.ID] = cloneListing(l)
	}
	return nil
}

func (s listingTx) List(ctx context.Context, f domain.ListingFilter) ([]domain.Listing, error) {
	var out []domain.Listing
	skipped := 0
	for i := 0; i < s.count(); i++ {
		l, err := s.Get(ctx, domain.ListingID(i))
		if err != nil {
			return nil, err
		}
		if !f.Match(l) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, l)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// --- auctions ---

type auctionTx struct{ t *txn }

func (s auctionTx) count() int { return len(s.t.st.auctions) + len(s.t.newAuctions) }

func (s auctionTx) get(id domain.AuctionID) (domain.Auction, bool) {
	committed := len(s.t.st.auctions)
	switch {
	case id == 0 || int(id) > s.count():
		return domain.Auction{}, false
	case int(id) > committed:
		return s.t.newAuctions[int(id)-committed-1], true
	}
	if a, ok := s.t.auctions[id]; ok {
		return a, true
	}
	return s.t.st.auctions[id-1], true
}

func (s auctionTx) Insert(_ context.Context, a domain.Auction) (domain.AuctionID, error) {
	if err := s.t.writable(); err != nil {
		return 0, err
	}
	a.ID = domain.AuctionID(s.count() + 1)
	s.t.newAuctions = append(s.t.newAuctions, cloneAuction(a))
	return a.ID, nil
}

func (s auctionTx) Latest(_ context.Context, collection domain.Address, id domain.TokenID) (domain.Auction, error) {
	for i := len(s.t.newAuctions) - 1; i >= 0; i-- {
		a := s.t.newAuctions[i]
		if a.Collection == collection && a.TokenID == id {
			return cloneAuction(a), nil
		}
	}
	aid, ok := s.t.st.latest[tokenKey{collection, id}]
	if !ok {
		return domain.Auction{}, domain.ErrAuctionNotFound.Withf("token %d", id)
	}
	a, _ := s.get(aid)
	return cloneAuction(a), nil
}

func (s auctionTx) Update(_ context.Context, a domain.Auction) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	committed := len(s.t.st.auctions)
	switch {
	case a.ID == 0 || int(a.ID) > s.count():
		return domain.ErrAuctionNotFound.Withf("auction %d", a.ID)
	case int(a.ID) > committed:
		s.t.newAuctions[int(a.ID)-committed-1] = cloneAuction(a)
	default:
		s.t.auctions[a.ID] = cloneAuction(a)
	}
	return nil
}

func (s auctionTx) ListSettleable(_ context.Context, now time.Time, limit int) ([]domain.Auction, error) {
	var out []domain.Auction
	for id := 1; id <= s.count(); id++ {
		a, _ := s.get(domain.AuctionID(id))
		if a.Settled || now.Before(a.EndTime) {
			continue
		}
		out = append(out, cloneAuction(a))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s auctionTx) List(_ context.Context, f domain.AuctionFilter) ([]domain.Auction, error) {
	var out []domain.Auction
	skipped := 0
	for id := 1; id <= s.count(); id++ {
		a, _ := s.get(domain.AuctionID(id))
		if !f.Match(a) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, cloneAuction(a))
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// --- stakes ---

type stakeTx struct{ t *txn }

func (s stakeTx) Get(_ context.Context, holder domain.Address) (domain.StakePosition, error) {
	if p, ok := s.t.stakes[holder]; ok {
		return p, nil
	}
	if p, ok := s.t.st.stakes[holder]; ok {
		return p, nil
	}
	return domain.StakePosition{Holder: holder}, nil
}

func (s stakeTx) Put(_ context.Context, p domain.StakePosition) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	s.t.stakes[p.Holder] = p
	return nil
}

// --- custody ---

type custodyTx struct{ t *txn }

func (s custodyTx) Balance(_ context.Context, contract, holder domain.Address) (domain.Amount, error) {
	k := balanceKey{contract, holder}
	if v, ok := s.t.balances[k]; ok {
		return v, nil
	}
	return s.t.st.balances[k], nil
}

func (s custodyTx) SetBalance(_ context.Context, contract, holder domain.Address, amount domain.Amount) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	s.t.balances[balanceKey{contract, holder}] = amount
	return nil
}

func (s custodyTx) Allowance(_ context.Context, contract, owner, spender domain.Address) (domain.Amount, error) {
	k := allowanceKey{contract, owner, spender}
	if v, ok := s.t.allowances[k]; ok {
		return v, nil
	}
	return s.t.st.allowances[k], nil
}

func (s custodyTx) SetAllowance(_ context.Context, contract, owner, spender domain.Address, amount domain.Amount) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	s.t.allowances[allowanceKey{contract, owner, spender}] = amount
	return nil
}

func (s custodyTx) Token(_ context.Context, collection domain.Address, id domain.TokenID) (domain.Token, error) {
	k := tokenKey{collection, id}
	if tok, ok := s.t.tokens[k]; ok {
		return cloneToken(tok), nil
	}
	if tok, ok := s.t.st.tokens[k]; ok {
		return cloneToken(tok), nil
	}
	return domain.Token{}, domain.ErrTokenNotFound.Withf("token %d", id)
}

func (s custodyTx) PutToken(_ context.Context, tok domain.Token) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	s.t.tokens[tokenKey{tok.Collection, tok.ID}] = cloneToken(tok)
	return nil
}

func (s custodyTx) NextTokenID(_ context.Context, collection domain.Address) (domain.TokenID, error) {
	if err := s.t.writable(); err != nil {
		return 0, err
	}
	last, ok := s.t.lastToken[collection]
	if !ok {
		last = s.t.st.lastToken[collection]
	}
	s.t.lastToken[collection] = last + 1
	return last + 1, nil
}

func (s custodyTx) ListTokens(_ context.Context, collection, owner domain.Address) ([]domain.Token, error) {
	merged := make(map[tokenKey]domain.Token)
	for k, tok := range s.t.st.tokens {
		merged[k] = tok
	}
	for k, tok := range s.t.tokens {
		merged[k] = tok
	}
	var out []domain.Token
	for k, tok := range merged {
		if k.collection == collection && tok.Owner == owner {
			out = append(out, cloneToken(tok))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- copies ---

func cloneListing(l domain.Listing) domain.Listing {
	if l.Buyer != nil {
		b := *l.Buyer
		l.Buyer = &b
	}
	if l.ClosedAt != nil {
		c := *l.ClosedAt
		l.ClosedAt = &c
	}
	return l
}

func cloneAuction(a domain.Auction) domain.Auction {
	if a.HighBidder != nil {
		b := *a.HighBidder
		a.HighBidder = &b
	}
	return a
}

func cloneToken(tok domain.Token) domain.Token {
	if tok.Approved != nil {
		a := *tok.Approved
		tok.Approved = &a
	}
	return tok
}

var _ domain.Tx = (*txn)(nil)
