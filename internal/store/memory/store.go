// Package memory implements domain.UnitOfWork in process memory.
//
// Writers are totally ordered by a commit mutex. Each Do call stages its
// effects in an overlay that is merged into the committed state in one step,
// so a failed intent leaves no trace and readers never observe a partial
// intent.
package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

type balanceKey struct {
	contract domain.Address
	holder   domain.Address
}

type allowanceKey struct {
	contract domain.Address
	owner    domain.Address
	spender  domain.Address
}

type tokenKey struct {
	collection domain.Address
	id         domain.TokenID
}

// state is the committed data set. It is only written by commit.
type state struct {
	listings   []domain.Listing // index == id
	auctions   []domain.Auction // index == id-1
	latest     map[tokenKey]domain.AuctionID
	stakes     map[domain.Address]domain.StakePosition
	balances   map[balanceKey]domain.Amount
	allowances map[allowanceKey]domain.Amount
	tokens     map[tokenKey]domain.Token
	lastToken  map[domain.Address]domain.TokenID
	events     []domain.Event // index == seq-1
}

// Store is an in-memory domain.UnitOfWork.
type Store struct {
	commitMu sync.Mutex
	stateMu  sync.RWMutex
	st       *state
	clock    domain.Clock
}

// New returns an empty Store. clock stamps committed events.
func New(clock domain.Clock) *Store {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Store{
		clock: clock,
		st: &state{
			latest:     make(map[tokenKey]domain.AuctionID),
			stakes:     make(map[domain.Address]domain.StakePosition),
			balances:   make(map[balanceKey]domain.Amount),
			allowances: make(map[allowanceKey]domain.Amount),
			tokens:     make(map[tokenKey]domain.Token),
			lastToken:  make(map[domain.Address]domain.TokenID),
		},
	}
}

// Do runs fn as one atomic intent.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	t := newTxn(s.st, false)
	if err := fn(ctx, t); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.commit(t), nil
}

// View runs fn against a consistent snapshot of committed state.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return fn(ctx, newTxn(s.st, true))
}

// Events returns committed events after seq, at most limit (0 means all).
func (s *Store) Events(ctx context.Context, after uint64, limit int) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	if after >= uint64(len(s.st.events)) {
		return nil, nil
	}
	src := s.st.events[after:]
	if limit > 0 && len(src) > limit {
		src = src[:limit]
	}
	out := make([]domain.Event, len(src))
	copy(out, src)
	return out, nil
}

func (s *Store) commit(t *txn) []domain.Event {
	now := s.clock.Now()

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	st := s.st

	for id, l := range t.listings {
		if int(id) < len(st.listings) {
			st.listings[id] = l
		}
	}
	st.listings = append(st.listings, t.newListings...)

	for id, a := range t.auctions {
		if int(id) <= len(st.auctions) {
			st.auctions[id-1] = a
		}
	}
	for _, a := range t.newAuctions {
		st.auctions = append(st.auctions, a)
		st.latest[tokenKey{a.Collection, a.TokenID}] = a.ID
	}
	for k, v := range t.stakes {
		st.stakes[k] = v
	}
	for k, v := range t.balances {
		st.balances[k] = v
	}
	for k, v := range t.allowances {
		st.allowances[k] = v
	}
	for k, v := range t.tokens {
		st.tokens[k] = v
	}
	for k, v := range t.lastToken {
		st.lastToken[k] = v
	}

	committed := make([]domain.Event, len(t.events))
	for i, ev := range t.events {
		ev.Seq = uint64(len(st.events)) + 1
		ev.CommittedAt = now
		st.events = append(st.events, ev)
		committed[i] = ev
	}
	return committed
}

var _ domain.UnitOfWork = (*Store)(nil)
