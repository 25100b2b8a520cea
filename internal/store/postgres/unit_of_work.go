package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// Counter names in ledger_counters. Each row holds the last value handed
// out; allocation happens inside the intent's transaction, so a rolled back
// intent never consumes an id and ids follow commit order.
const (
	counterListing = "listing"
	counterAuction = "auction"
	counterEvent   = "event"
)

func tokenCounter(collection domain.Address) string {
	return "token:" + collection.Hex()
}

// UnitOfWork implements domain.UnitOfWork with one PostgreSQL transaction per
// intent. Rows an intent touches are locked with SELECT ... FOR UPDATE, so
// intents on the same entity run one after another.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork creates a UnitOfWork backed by pool.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// Do runs fn in a read-committed transaction and commits it if fn succeeds.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) ([]domain.Event, error) {
	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", classify(err))
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	t := &pgTx{tx: tx}
	if err := fn(ctx, t); err != nil {
		return nil, classify(err)
	}
	events, err := t.flushEvents(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit: %w", classify(err))
	}
	return events, nil
}

// View runs fn in a read-only repeatable-read transaction, which gives it a
// single consistent snapshot without taking row locks.
func (u *UnitOfWork) View(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("postgres: begin view: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()
	return fn(ctx, &pgTx{tx: tx, readOnly: true})
}

// Events returns committed events with seq > after.
func (u *UnitOfWork) Events(ctx context.Context, after uint64, limit int) ([]domain.Event, error) {
	query := `SELECT seq, type, payload, committed_at FROM ledger_events WHERE seq > $1 ORDER BY seq`
	args := []any{int64(after)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := u.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			ev  domain.Event
			seq int64
			typ string
		)
		if err := rows.Scan(&seq, &typ, &ev.Payload, &ev.CommittedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		ev.Seq = uint64(seq)
		ev.Type = domain.EventType(typ)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return out, nil
}

var _ domain.UnitOfWork = (*UnitOfWork)(nil)

// pgTx is the domain.Tx view of one pgx transaction.
type pgTx struct {
	tx       pgx.Tx
	readOnly bool
	pending  []domain.Event
}

func (t *pgTx) Listings() domain.ListingStore { return &listingStore{t} }
func (t *pgTx) Auctions() domain.AuctionStore { return &auctionStore{t} }
func (t *pgTx) Stakes() domain.StakeStore     { return &stakeStore{t} }
func (t *pgTx) Custody() domain.CustodyStore  { return &custodyStore{t} }

func (t *pgTx) Emit(_ context.Context, typ domain.EventType, payload any) error {
	if t.readOnly {
		return domain.ErrReadOnly
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("postgres: marshal %s event: %w", typ, err)
	}
	t.pending = append(t.pending, domain.Event{Type: typ, Payload: raw})
	return nil
}

func (t *pgTx) writable() error {
	if t.readOnly {
		return domain.ErrReadOnly
	}
	return nil
}

// forUpdate returns the row-locking suffix for writable transactions.
func (t *pgTx) forUpdate() string {
	if t.readOnly {
		return ""
	}
	return " FOR UPDATE"
}

// allocate hands out the next value of counter, starting at start.
func (t *pgTx) allocate(ctx context.Context, counter string, start int64) (int64, error) {
	const q = `
		INSERT INTO ledger_counters (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = ledger_counters.value + 1
		RETURNING value`
	var v int64
	if err := t.tx.QueryRow(ctx, q, counter, start).Scan(&v); err != nil {
		return 0, fmt.Errorf("postgres: allocate %s: %w", counter, err)
	}
	return v, nil
}

// peek returns the value the next allocate would return.
func (t *pgTx) peek(ctx context.Context, counter string, start int64) (int64, error) {
	const q = `SELECT COALESCE((SELECT value + 1 FROM ledger_counters WHERE name = $1), $2)`
	var v int64
	if err := t.tx.QueryRow(ctx, q, counter, start).Scan(&v); err != nil {
		return 0, fmt.Errorf("postgres: peek %s: %w", counter, err)
	}
	return v, nil
}

// flushEvents writes buffered events. The event counter is taken last so its
// row lock is held only for the tail of the transaction.
func (t *pgTx) flushEvents(ctx context.Context) ([]domain.Event, error) {
	if len(t.pending) == 0 {
		return nil, nil
	}
	out := make([]domain.Event, 0, len(t.pending))
	for _, ev := range t.pending {
		seq, err := t.allocate(ctx, counterEvent, 1)
		if err != nil {
			return nil, err
		}
		var committedAt time.Time
		err = t.tx.QueryRow(ctx,
			`INSERT INTO ledger_events (seq, type, payload) VALUES ($1, $2, $3) RETURNING committed_at`,
			seq, string(ev.Type), []byte(ev.Payload),
		).Scan(&committedAt)
		if err != nil {
			return nil, fmt.Errorf("postgres: append event %s: %w", ev.Type, err)
		}
		ev.Seq = uint64(seq)
		ev.CommittedAt = committedAt
		out = append(out, ev)
	}
	return out, nil
}

// --- column codecs ---

func addrArg(a domain.Address) []byte { return a.Bytes() }

func optAddrArg(a *domain.Address) any {
	if a == nil {
		return nil
	}
	return a.Bytes()
}

func scanAddr(b []byte) domain.Address { return common.BytesToAddress(b) }

func scanOptAddr(b []byte) *domain.Address {
	if b == nil {
		return nil
	}
	a := common.BytesToAddress(b)
	return &a
}

// amountArg encodes an amount for a NUMERIC(78,0) column. Reads select the
// column as ::text and go through parseAmount.
func amountArg(a domain.Amount) pgtype.Numeric {
	return pgtype.Numeric{Int: a.Big(), Valid: true}
}

func parseAmount(s string) (domain.Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return domain.Amount{}, fmt.Errorf("postgres: malformed numeric %q", s)
	}
	return domain.AmountFromBig(v)
}
