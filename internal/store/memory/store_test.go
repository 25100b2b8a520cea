package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

var (
	alice = domain.DeriveAccount("test.alice")
	bob   = domain.DeriveAccount("test.bob")
	coin  = domain.DeriveAccount("test.coin")
)

func newTestStore() *Store {
	return New(domain.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestDoCommitsAllEffects(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	events, err := s.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		id, err := tx.Listings().Insert(ctx, domain.Listing{Seller: alice, Price: domain.NewAmount(5), Active: true})
		require.NoError(t, err)
		assert.Equal(t, domain.ListingID(0), id)
		require.NoError(t, tx.Custody().SetBalance(ctx, coin, alice, domain.NewAmount(10)))
		return tx.Emit(ctx, domain.EventListingCreated, domain.ListingCreated{ID: id, Seller: alice})
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), events[0].Seq)

	err = s.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		l, err := tx.Listings().Get(ctx, 0)
		require.NoError(t, err)
		assert.True(t, l.Active)
		bal, err := tx.Custody().Balance(ctx, coin, alice)
		require.NoError(t, err)
		assert.Equal(t, "10", bal.String())
		return nil
	})
	require.NoError(t, err)
}

func TestDoRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	boom := errors.New("boom")

	_, err := s.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Listings().Insert(ctx, domain.Listing{Seller: alice, Price: domain.NewAmount(1), Active: true})
		require.NoError(t, err)
		require.NoError(t, tx.Custody().SetBalance(ctx, coin, bob, domain.NewAmount(99)))
		require.NoError(t, tx.Emit(ctx, domain.EventListingCreated, domain.ListingCreated{}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		next, err := tx.Listings().NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.ListingID(0), next, "rolled back insert must not consume an id")
		bal, err := tx.Custody().Balance(ctx, coin, bob)
		require.NoError(t, err)
		assert.True(t, bal.IsZero())
		return nil
	})
	require.NoError(t, err)

	events, err := s.Events(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	err := s.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Listings().Insert(ctx, domain.Listing{})
		return err
	})
	require.ErrorIs(t, err, domain.ErrReadOnly)
}

func TestListingIDsAreGapless(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	for i := 0; i < 3; i++ {
		_, err := s.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
			a, err := tx.Listings().Insert(ctx, domain.Listing{Seller: alice, Active: true})
			require.NoError(t, err)
			b, err := tx.Listings().Insert(ctx, domain.Listing{Seller: bob, Active: true})
			require.NoError(t, err)
			assert.Equal(t, a+1, b)
			return nil
		})
		require.NoError(t, err)
	}

	err := s.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		all, err := tx.Listings().List(ctx, domain.ListingFilter{})
		require.NoError(t, err)
		require.Len(t, all, 6)
		for i, l := range all {
			assert.Equal(t, domain.ListingID(i), l.ID)
		}
		seller := bob
		mine, err := tx.Listings().List(ctx, domain.ListingFilter{Seller: &seller, Offset: 1, Limit: 1})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, domain.ListingID(3), mine[0].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateWithinSameTransaction(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	_, err := s.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		id, err := tx.Listings().Insert(ctx, domain.Listing{Seller: alice, Active: true})
		require.NoError(t, err)
		l, err := tx.Listings().Get(ctx, id)
		require.NoError(t, err)
		l.Active = false
		return tx.Listings().Update(ctx, l)
	})
	require.NoError(t, err)

	err = s.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		l, err := tx.Listings().Get(ctx, 0)
		require.NoError(t, err)
		assert.False(t, l.Active)
		_, err = tx.Listings().Get(ctx, 1)
		assert.ErrorIs(t, err, domain.ErrListingNotFound)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestAuctionLatestAndSettleable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	end := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := s.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		id, err := tx.Auctions().Insert(ctx, domain.Auction{Collection: coin, TokenID: 7, Seller: alice, EndTime: end})
		require.NoError(t, err)
		assert.Equal(t, domain.AuctionID(1), id)
		return nil
	})
	require.NoError(t, err)

	_, err = s.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		a, err := tx.Auctions().Latest(ctx, coin, 7)
		require.NoError(t, err)
		a.Settled = true
		require.NoError(t, tx.Auctions().Update(ctx, a))
		id, err := tx.Auctions().Insert(ctx, domain.Auction{Collection: coin, TokenID: 7, Seller: bob, EndTime: end})
		require.NoError(t, err)
		assert.Equal(t, domain.AuctionID(2), id)
		return nil
	})
	require.NoError(t, err)

	err = s.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		a, err := tx.Auctions().Latest(ctx, coin, 7)
		require.NoError(t, err)
		assert.Equal(t, bob, a.Seller)

		due, err := tx.Auctions().ListSettleable(ctx, end.Add(-time.Second), 0)
		require.NoError(t, err)
		assert.Empty(t, due)
		due, err = tx.Auctions().ListSettleable(ctx, end, 0)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, domain.AuctionID(2), due[0].ID)

		_, err = tx.Auctions().Latest(ctx, coin, 8)
		assert.ErrorIs(t, err, domain.ErrAuctionNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestTokenIDsStartAtOne(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	_, err := s.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		first, err := tx.Custody().NextTokenID(ctx, coin)
		require.NoError(t, err)
		second, err := tx.Custody().NextTokenID(ctx, coin)
		require.NoError(t, err)
		assert.Equal(t, domain.TokenID(1), first)
		assert.Equal(t, domain.TokenID(2), second)
		return nil
	})
	require.NoError(t, err)
}

func TestEventsPaging(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	for i := 0; i < 5; i++ {
		_, err := s.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
			return tx.Emit(ctx, domain.EventCredited, domain.Credited{Holder: alice})
		})
		require.NoError(t, err)
	}
	page, err := s.Events(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(3), page[0].Seq)
	assert.Equal(t, uint64(4), page[1].Seq)

	rest, err := s.Events(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestCancelledContextRollsBack(t *testing.T) {
	s := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		require.NoError(t, tx.Custody().SetBalance(ctx, coin, alice, domain.NewAmount(1)))
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	err = s.View(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		bal, err := tx.Custody().Balance(ctx, coin, alice)
		require.NoError(t, err)
		assert.True(t, bal.IsZero())
		return nil
	})
	require.NoError(t, err)
}
