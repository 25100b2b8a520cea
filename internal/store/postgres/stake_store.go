package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// stakeStore implements domain.StakeStore inside a transaction.
type stakeStore struct {
	t *pgTx
}

func (s *stakeStore) Get(ctx context.Context, holder domain.Address) (domain.StakePosition, error) {
	if !s.t.readOnly {
		// Materialize the row so two first-time stakers serialize on it.
		if _, err := s.t.tx.Exec(ctx,
			`INSERT INTO stake_positions (holder) VALUES ($1) ON CONFLICT (holder) DO NOTHING`,
			addrArg(holder),
		); err != nil {
			return domain.StakePosition{}, fmt.Errorf("postgres: materialize stake %s: %w", holder.Hex(), err)
		}
	}

	var (
		staked   string
		stakedAt *time.Time
	)
	q := `SELECT staked::text, staked_at FROM stake_positions WHERE holder = $1` + s.t.forUpdate()
	err := s.t.tx.QueryRow(ctx, q, addrArg(holder)).Scan(&staked, &stakedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StakePosition{Holder: holder}, nil
	}
	if err != nil {
		return domain.StakePosition{}, fmt.Errorf("postgres: get stake %s: %w", holder.Hex(), err)
	}

	p := domain.StakePosition{Holder: holder}
	if p.Staked, err = parseAmount(staked); err != nil {
		return domain.StakePosition{}, err
	}
	if stakedAt != nil {
		p.StakedAt = stakedAt.UTC()
	}
	return p, nil
}

func (s *stakeStore) Put(ctx context.Context, p domain.StakePosition) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	var stakedAt *time.Time
	if !p.StakedAt.IsZero() {
		stakedAt = &p.StakedAt
	}
	const q = `
		INSERT INTO stake_positions (holder, staked, staked_at) VALUES ($1, $2, $3)
		ON CONFLICT (holder) DO UPDATE SET staked = EXCLUDED.staked, staked_at = EXCLUDED.staked_at`
	if _, err := s.t.tx.Exec(ctx, q, addrArg(p.Holder), amountArg(p.Staked), stakedAt); err != nil {
		return fmt.Errorf("postgres: put stake %s: %w", p.Holder.Hex(), err)
	}
	return nil
}
