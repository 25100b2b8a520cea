package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

const tokenColumns = `collection, id, owner, approved, uri, price::text, minted_at`

// custodyStore implements domain.CustodyStore inside a transaction. In a
// writable transaction balance and allowance rows are created on first read
// and locked, so concurrent intents touching the same account queue up.
type custodyStore struct {
	t *pgTx
}

func (s *custodyStore) Balance(ctx context.Context, contract, holder domain.Address) (domain.Amount, error) {
	if !s.t.readOnly {
		if _, err := s.t.tx.Exec(ctx,
			`INSERT INTO balances (contract, holder) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			addrArg(contract), addrArg(holder),
		); err != nil {
			return domain.Amount{}, fmt.Errorf("postgres: materialize balance: %w", err)
		}
	}
	q := `SELECT amount::text FROM balances WHERE contract = $1 AND holder = $2` + s.t.forUpdate()
	return s.amount(ctx, q, addrArg(contract), addrArg(holder))
}

func (s *custodyStore) SetBalance(ctx context.Context, contract, holder domain.Address, amount domain.Amount) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	const q = `
		INSERT INTO balances (contract, holder, amount) VALUES ($1, $2, $3)
		ON CONFLICT (contract, holder) DO UPDATE SET amount = EXCLUDED.amount`
	if _, err := s.t.tx.Exec(ctx, q, addrArg(contract), addrArg(holder), amountArg(amount)); err != nil {
		return fmt.Errorf("postgres: set balance %s: %w", holder.Hex(), err)
	}
	return nil
}

func (s *custodyStore) Allowance(ctx context.Context, contract, owner, spender domain.Address) (domain.Amount, error) {
	if !s.t.readOnly {
		if _, err := s.t.tx.Exec(ctx,
			`INSERT INTO allowances (contract, owner, spender) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			addrArg(contract), addrArg(owner), addrArg(spender),
		); err != nil {
			return domain.Amount{}, fmt.Errorf("postgres: materialize allowance: %w", err)
		}
	}
	q := `SELECT amount::text FROM allowances WHERE contract = $1 AND owner = $2 AND spender = $3` + s.t.forUpdate()
	return s.amount(ctx, q, addrArg(contract), addrArg(owner), addrArg(spender))
}

func (s *custodyStore) SetAllowance(ctx context.Context, contract, owner, spender domain.Address, amount domain.Amount) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	const q = `
		INSERT INTO allowances (contract, owner, spender, amount) VALUES ($1, $2, $3, $4)
		ON CONFLICT (contract, owner, spender) DO UPDATE SET amount = EXCLUDED.amount`
	if _, err := s.t.tx.Exec(ctx, q, addrArg(contract), addrArg(owner), addrArg(spender), amountArg(amount)); err != nil {
		return fmt.Errorf("postgres: set allowance %s -> %s: %w", owner.Hex(), spender.Hex(), err)
	}
	return nil
}

func (s *custodyStore) amount(ctx context.Context, q string, args ...any) (domain.Amount, error) {
	var raw string
	err := s.t.tx.QueryRow(ctx, q, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Amount{}, nil
	}
	if err != nil {
		return domain.Amount{}, fmt.Errorf("postgres: read amount: %w", err)
	}
	return parseAmount(raw)
}

func (s *custodyStore) Token(ctx context.Context, collection domain.Address, id domain.TokenID) (domain.Token, error) {
	q := `SELECT ` + tokenColumns + ` FROM tokens WHERE collection = $1 AND id = $2` + s.t.forUpdate()
	tok, err := scanToken(s.t.tx.QueryRow(ctx, q, addrArg(collection), int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Token{}, domain.ErrTokenNotFound.Withf("token %d", id)
	}
	if err != nil {
		return domain.Token{}, fmt.Errorf("postgres: get token %d: %w", id, err)
	}
	return tok, nil
}

func (s *custodyStore) PutToken(ctx context.Context, tok domain.Token) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	const q = `
		INSERT INTO tokens (collection, id, owner, approved, uri, price, minted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (collection, id) DO UPDATE SET
			owner = EXCLUDED.owner,
			approved = EXCLUDED.approved,
			uri = EXCLUDED.uri,
			price = EXCLUDED.price`
	_, err := s.t.tx.Exec(ctx, q,
		addrArg(tok.Collection), int64(tok.ID), addrArg(tok.Owner), optAddrArg(tok.Approved),
		tok.URI, amountArg(tok.Price), tok.MintedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put token %d: %w", tok.ID, err)
	}
	return nil
}

func (s *custodyStore) NextTokenID(ctx context.Context, collection domain.Address) (domain.TokenID, error) {
	if err := s.t.writable(); err != nil {
		return 0, err
	}
	v, err := s.t.allocate(ctx, tokenCounter(collection), 1)
	if err != nil {
		return 0, err
	}
	return domain.TokenID(v), nil
}

func (s *custodyStore) ListTokens(ctx context.Context, collection, owner domain.Address) ([]domain.Token, error) {
	q := `SELECT ` + tokenColumns + ` FROM tokens WHERE collection = $1 AND owner = $2 ORDER BY id`
	rows, err := s.t.tx.Query(ctx, q, addrArg(collection), addrArg(owner))
	if err != nil {
		return nil, fmt.Errorf("postgres: list tokens: %w", err)
	}
	defer rows.Close()

	var out []domain.Token
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan token: %w", err)
		}
		out = append(out, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list tokens rows: %w", err)
	}
	return out, nil
}

func scanToken(row pgx.Row) (domain.Token, error) {
	var (
		tok                         domain.Token
		id                          int64
		collection, owner, approved []byte
		price                       string
	)
	if err := row.Scan(&collection, &id, &owner, &approved, &tok.URI, &price, &tok.MintedAt); err != nil {
		return domain.Token{}, err
	}
	var err error
	if tok.Price, err = parseAmount(price); err != nil {
		return domain.Token{}, err
	}
	tok.Collection = scanAddr(collection)
	tok.ID = domain.TokenID(id)
	tok.Owner = scanAddr(owner)
	tok.Approved = scanOptAddr(approved)
	tok.MintedAt = tok.MintedAt.UTC()
	return tok, nil
}
