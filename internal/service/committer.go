package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
	"github.com/alanyoungcy/portfolioledger/internal/metrics"
)

const lockPollInterval = 10 * time.Millisecond

// CommitterConfig tunes per-entity locking.
type CommitterConfig struct {
	// LockTTL bounds how long a crashed holder can block an entity.
	LockTTL time.Duration
	// LockWait is how long an intent waits for a busy entity before it is
	// rejected with a concurrency conflict.
	LockWait time.Duration
}

// Committer executes intents: it takes the entity locks, runs the intent in a
// unit of work, relays committed events and audits rejections.
type Committer struct {
	uow     domain.UnitOfWork
	locks   domain.LockManager
	bus     domain.SignalBus
	audit   domain.AuditStore
	metrics *metrics.Ledger
	cfg     CommitterConfig
	logger  *slog.Logger
}

// NewCommitter creates a Committer. locks, bus, audit and m may be nil.
func NewCommitter(
	uow domain.UnitOfWork,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	m *metrics.Ledger,
	cfg CommitterConfig,
	logger *slog.Logger,
) *Committer {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 2 * time.Second
	}
	return &Committer{
		uow:     uow,
		locks:   locks,
		bus:     bus,
		audit:   audit,
		metrics: m,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "committer")),
	}
}

// UnitOfWork returns the underlying unit of work for read paths.
func (c *Committer) UnitOfWork() domain.UnitOfWork { return c.uow }

// intent describes one effectful operation.
type intent struct {
	name   string
	keys   []string
	detail map[string]any
}

// Commit runs fn as a single intent and returns the committed events.
func (c *Committer) Commit(ctx context.Context, in intent, fn func(ctx context.Context, tx domain.Tx) error) ([]domain.Event, error) {
	start := time.Now()

	unlock, err := c.lock(ctx, in.keys)
	if err != nil {
		c.finish(ctx, in, err, start)
		return nil, err
	}
	defer unlock()

	events, err := c.uow.Do(ctx, fn)
	c.finish(ctx, in, err, start)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, events)
	return events, nil
}

// lock acquires every key in a fixed order so two intents touching the same
// pair of entities cannot deadlock.
func (c *Committer) lock(ctx context.Context, keys []string) (func(), error) {
	if c.locks == nil || len(keys) == 0 {
		return func() {}, nil
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var held []func()
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}

	deadline := time.Now().Add(c.cfg.LockWait)
	for _, key := range sorted {
		for {
			unlock, err := c.locks.Acquire(ctx, key, c.cfg.LockTTL)
			if err == nil {
				held = append(held, unlock)
				break
			}
			if !errors.Is(err, domain.ErrLockHeld) {
				release()
				return nil, fmt.Errorf("committer: lock %s: %w", key, err)
			}
			if time.Now().After(deadline) {
				release()
				return nil, domain.ErrLockTimeout.Withf("%s busy", key)
			}
			select {
			case <-ctx.Done():
				release()
				return nil, ctx.Err()
			case <-time.After(lockPollInterval):
			}
		}
	}
	return release, nil
}

func (c *Committer) finish(ctx context.Context, in intent, err error, start time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = domain.CodeOf(err)
		if outcome == "" {
			outcome = "error"
		}
	}
	c.metrics.ObserveIntent(in.name, outcome, time.Since(start).Seconds())
	if err == nil {
		return
	}

	attrs := []any{slog.String("intent", in.name), slog.String("error", err.Error())}
	if domain.KindOf(err) == 0 {
		c.logger.WarnContext(ctx, "committer: intent failed", attrs...)
	} else {
		c.logger.InfoContext(ctx, "committer: intent rejected", attrs...)
	}

	if c.audit == nil {
		return
	}
	detail := make(map[string]any, len(in.detail)+3)
	for k, v := range in.detail {
		detail[k] = v
	}
	detail["intent"] = in.name
	detail["code"] = outcome
	detail["error"] = err.Error()
	// The caller's context may already be cancelled; the audit row should
	// still be written.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if auditErr := c.audit.Log(auditCtx, "intent_rejected", detail); auditErr != nil {
		c.logger.WarnContext(ctx, "committer: audit log failed",
			slog.String("intent", in.name),
			slog.String("error", auditErr.Error()),
		)
	}
}

func (c *Committer) publish(ctx context.Context, events []domain.Event) {
	if c.bus == nil {
		return
	}
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			c.metrics.PublishFailed()
			continue
		}
		if err := c.bus.StreamAppend(ctx, domain.LedgerStream, payload); err != nil {
			c.metrics.PublishFailed()
			c.logger.WarnContext(ctx, "committer: stream append failed",
				slog.Uint64("seq", ev.Seq),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := c.bus.Publish(ctx, domain.LedgerChannel, payload); err != nil {
			c.logger.WarnContext(ctx, "committer: publish failed",
				slog.Uint64("seq", ev.Seq),
				slog.String("error", err.Error()),
			)
		}
		c.metrics.EventPublished()
	}
}

func listingKey(id domain.ListingID) string { return fmt.Sprintf("listing:%d", id) }

func auctionKey(collection domain.Address, id domain.TokenID) string {
	return fmt.Sprintf("auction:%s:%d", collection.Hex(), id)
}

func stakeKey(holder domain.Address) string { return "stake:" + holder.Hex() }

func custodyKey(holder domain.Address) string { return "custody:" + holder.Hex() }
