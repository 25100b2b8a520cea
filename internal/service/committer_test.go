package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
	"github.com/alanyoungcy/portfolioledger/internal/store/memory"
)

type stubLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *stubLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}

type stubBus struct {
	mu        sync.Mutex
	published [][]byte
	streamed  [][]byte
}

func (b *stubBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, payload)
	return nil
}

func (b *stubBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *stubBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed = append(b.streamed, payload)
	return nil
}

func (b *stubBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func newTestCommitter(locks domain.LockManager, bus domain.SignalBus, audit domain.AuditStore) *Committer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCommitter(memory.New(nil), locks, bus, audit, nil, CommitterConfig{LockWait: 50 * time.Millisecond}, logger)
}

func TestCommitPublishesCommittedEvents(t *testing.T) {
	bus := &stubBus{}
	c := newTestCommitter(nil, bus, nil)

	events, err := c.Commit(context.Background(), intent{name: "test"}, func(ctx context.Context, tx domain.Tx) error {
		return tx.Emit(ctx, domain.EventListingCancelled, domain.ListingCancelled{ID: 4})
	})
	require.NoError(t, err)
	require.Len(t, events, 1)

	require.Len(t, bus.streamed, 1)
	require.Len(t, bus.published, 1)
	var ev domain.Event
	require.NoError(t, json.Unmarshal(bus.published[0], &ev))
	assert.Equal(t, uint64(1), ev.Seq)
	assert.Equal(t, domain.EventListingCancelled, ev.Type)
	assert.JSONEq(t, `{"id":4}`, string(ev.Payload))
}

func TestCommitDoesNotPublishRejectedIntent(t *testing.T) {
	bus := &stubBus{}
	audit := memory.NewAuditStore(nil)
	c := newTestCommitter(nil, bus, audit)

	_, err := c.Commit(context.Background(), intent{name: "buy_item", detail: map[string]any{"listing_id": 3}}, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.Emit(ctx, domain.EventListingSold, domain.ListingSold{ID: 3}); err != nil {
			return err
		}
		return domain.ErrAlreadySold
	})
	require.ErrorIs(t, err, domain.ErrAlreadySold)
	assert.Empty(t, bus.published)

	entries, err := audit.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "intent_rejected", entries[0].Event)
	assert.Equal(t, "already_sold", entries[0].Detail["code"])
	assert.Equal(t, "buy_item", entries[0].Detail["intent"])
}

func TestCommitLockTimeoutIsConflict(t *testing.T) {
	locks := &stubLocks{}
	c := newTestCommitter(locks, nil, nil)

	unlock, err := locks.Acquire(context.Background(), "listing:1", time.Second)
	require.NoError(t, err)
	defer unlock()

	ran := false
	_, err = c.Commit(context.Background(), intent{name: "buy_item", keys: []string{"listing:1"}}, func(context.Context, domain.Tx) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.False(t, ran)
}

func TestCommitReleasesLocks(t *testing.T) {
	locks := &stubLocks{}
	c := newTestCommitter(locks, nil, nil)
	keys := []string{"stake:b", "stake:a"}

	for i := 0; i < 2; i++ {
		_, err := c.Commit(context.Background(), intent{name: "x", keys: keys}, func(context.Context, domain.Tx) error {
			assert.Len(t, locks.held, 2)
			return nil
		})
		require.NoError(t, err)
	}
	assert.Empty(t, locks.held)
}
