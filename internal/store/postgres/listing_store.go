package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

const listingColumns = `id, seller, standard, contract, amount::text, token_id, price::text, active, buyer, created_at, closed_at`

// listingStore implements domain.ListingStore inside a transaction.
type listingStore struct {
	t *pgTx
}

func (s *listingStore) NextID(ctx context.Context) (domain.ListingID, error) {
	v, err := s.t.peek(ctx, counterListing, 0)
	if err != nil {
		return 0, err
	}
	return domain.ListingID(v), nil
}

func (s *listingStore) Insert(ctx context.Context, l domain.Listing) (domain.ListingID, error) {
	if err := s.t.writable(); err != nil {
		return 0, err
	}
	id, err := s.t.allocate(ctx, counterListing, 0)
	if err != nil {
		return 0, err
	}
	const q = `
		INSERT INTO listings (id, seller, standard, contract, amount, token_id, price, active, buyer, created_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = s.t.tx.Exec(ctx, q,
		id, addrArg(l.Seller), int16(l.Asset.Kind), addrArg(l.Asset.Contract),
		amountArg(l.Asset.Amount), int64(l.Asset.TokenID), amountArg(l.Price),
		l.Active, optAddrArg(l.Buyer), l.CreatedAt, l.ClosedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert listing %d: %w", id, err)
	}
	return domain.ListingID(id), nil
}

func (s *listingStore) Get(ctx context.Context, id domain.ListingID) (domain.Listing, error) {
	q := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1` + s.t.forUpdate()
	l, err := scanListing(s.t.tx.QueryRow(ctx, q, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Listing{}, domain.ErrListingNotFound.Withf("listing %d", id)
	}
	if err != nil {
		return domain.Listing{}, fmt.Errorf("postgres: get listing %d: %w", id, err)
	}
	return l, nil
}

func (s *listingStore) Update(ctx context.Context, l domain.Listing) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	const q = `UPDATE listings SET active = $2, buyer = $3, closed_at = $4 WHERE id = $1`
	tag, err := s.t.tx.Exec(ctx, q, int64(l.ID), l.Active, optAddrArg(l.Buyer), l.ClosedAt)
	if err != nil {
		return fmt.Errorf("postgres: update listing %d: %w", l.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrListingNotFound.Withf("listing %d", l.ID)
	}
	return nil
}

func (s *listingStore) List(ctx context.Context, f domain.ListingFilter) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Seller != nil {
		query += fmt.Sprintf(" AND seller = $%d", argIdx)
		args = append(args, addrArg(*f.Seller))
		argIdx++
	}
	if f.Kind != nil {
		query += fmt.Sprintf(" AND standard = $%d", argIdx)
		args = append(args, int16(*f.Kind))
		argIdx++
	}
	if f.Active != nil {
		query += fmt.Sprintf(" AND active = $%d", argIdx)
		args = append(args, *f.Active)
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

	rows, err := s.t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings: %w", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list listings rows: %w", err)
	}
	return out, nil
}

func scanListing(row pgx.Row) (domain.Listing, error) {
	var (
		l                       domain.Listing
		id, tokenID             int64
		standard                int16
		seller, contract, buyer []byte
		amount, price           string
		closedAt                *time.Time
	)
	if err := row.Scan(&id, &seller, &standard, &contract, &amount, &tokenID, &price, &l.Active, &buyer, &l.CreatedAt, &closedAt); err != nil {
		return domain.Listing{}, err
	}
	assetAmount, err := parseAmount(amount)
	if err != nil {
		return domain.Listing{}, err
	}
	l.Price, err = parseAmount(price)
	if err != nil {
		return domain.Listing{}, err
	}
	l.ID = domain.ListingID(id)
	l.Seller = scanAddr(seller)
	l.Asset = domain.Asset{
		Kind:     domain.AssetKind(standard),
		Contract: scanAddr(contract),
		Amount:   assetAmount,
		TokenID:  domain.TokenID(tokenID),
	}
	l.Buyer = scanOptAddr(buyer)
	l.ClosedAt = closedAt
	return l, nil
}
