package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

const auctionColumns = `id, collection, token_id, seller, start_price::text, current_bid::text, high_bidder, end_time, settled, created_at`

// auctionStore implements domain.AuctionStore inside a transaction.
type auctionStore struct {
	t *pgTx
}

func (s *auctionStore) Insert(ctx context.Context, a domain.Auction) (domain.AuctionID, error) {
	if err := s.t.writable(); err != nil {
		return 0, err
	}
	id, err := s.t.allocate(ctx, counterAuction, 1)
	if err != nil {
		return 0, err
	}
	const q = `
		INSERT INTO auctions (id, collection, token_id, seller, start_price, current_bid, high_bidder, end_time, settled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = s.t.tx.Exec(ctx, q,
		id, addrArg(a.Collection), int64(a.TokenID), addrArg(a.Seller),
		amountArg(a.StartPrice), amountArg(a.CurrentBid), optAddrArg(a.HighBidder),
		a.EndTime, a.Settled, a.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert auction for token %d: %w", a.TokenID, err)
	}
	return domain.AuctionID(id), nil
}

func (s *auctionStore) Latest(ctx context.Context, collection domain.Address, id domain.TokenID) (domain.Auction, error) {
	q := `SELECT ` + auctionColumns + ` FROM auctions
		WHERE collection = $1 AND token_id = $2
		ORDER BY id DESC LIMIT 1` + s.t.forUpdate()
	a, err := scanAuction(s.t.tx.QueryRow(ctx, q, addrArg(collection), int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Auction{}, domain.ErrAuctionNotFound.Withf("token %d", id)
	}
	if err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: latest auction for token %d: %w", id, err)
	}
	return a, nil
}

func (s *auctionStore) Update(ctx context.Context, a domain.Auction) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	const q = `UPDATE auctions SET current_bid = $2, high_bidder = $3, settled = $4 WHERE id = $1`
	tag, err := s.t.tx.Exec(ctx, q, int64(a.ID), amountArg(a.CurrentBid), optAddrArg(a.HighBidder), a.Settled)
	if err != nil {
		return fmt.Errorf("postgres: update auction %d: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAuctionNotFound.Withf("auction %d", a.ID)
	}
	return nil
}

func (s *auctionStore) ListSettleable(ctx context.Context, now time.Time, limit int) ([]domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE NOT settled AND end_time <= $1 ORDER BY id`
	args := []any{now}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

func (s *auctionStore) List(ctx context.Context, f domain.AuctionFilter) ([]domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Seller != nil {
		query += fmt.Sprintf(" AND seller = $%d", argIdx)
		args = append(args, addrArg(*f.Seller))
		argIdx++
	}
	if f.Settled != nil {
		query += fmt.Sprintf(" AND settled = $%d", argIdx)
		args = append(args, *f.Settled)
		argIdx++
	}

	query += " ORDER BY id"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}
	return s.query(ctx, query, args...)
}

func (s *auctionStore) query(ctx context.Context, query string, args ...any) ([]domain.Auction, error) {
	rows, err := s.t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list auctions: %w", err)
	}
	defer rows.Close()

	var out []domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan auction: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list auctions rows: %w", err)
	}
	return out, nil
}

func scanAuction(row pgx.Row) (domain.Auction, error) {
	var (
		a                              domain.Auction
		id, tokenID                    int64
		collection, seller, highBidder []byte
		startPrice, currentBid         string
	)
	if err := row.Scan(&id, &collection, &tokenID, &seller, &startPrice, &currentBid, &highBidder, &a.EndTime, &a.Settled, &a.CreatedAt); err != nil {
		return domain.Auction{}, err
	}
	var err error
	if a.StartPrice, err = parseAmount(startPrice); err != nil {
		return domain.Auction{}, err
	}
	if a.CurrentBid, err = parseAmount(currentBid); err != nil {
		return domain.Auction{}, err
	}
	a.ID = domain.AuctionID(id)
	a.Collection = scanAddr(collection)
	a.TokenID = domain.TokenID(tokenID)
	a.Seller = scanAddr(seller)
	a.HighBidder = scanOptAddr(highBidder)
	a.EndTime = a.EndTime.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}
