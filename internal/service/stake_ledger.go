package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/portfolioledger/internal/custody"
	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// StakeLedger locks units of the stake token in the stake vault. For every
// holder, available balance plus staked amount is unchanged by Stake and
// Unstake.
type StakeLedger struct {
	committer *Committer
	vault     *custody.Vault
	account   domain.Address
	token     domain.Address
	clock     domain.Clock
	logger    *slog.Logger
}

// NewStakeLedger creates a StakeLedger.
func NewStakeLedger(d Deps) *StakeLedger {
	return &StakeLedger{
		committer: d.Committer,
		vault:     d.Vault,
		account:   d.Accounts.StakeVault,
		token:     d.Contracts.StakeToken,
		clock:     d.clock(),
		logger:    d.logger("stake_ledger"),
	}
}

// Stake moves amount from the holder's balance into the vault. The holder
// must have approved the vault for at least amount.
func (s *StakeLedger) Stake(ctx context.Context, holder domain.Address, amount domain.Amount) (domain.StakePosition, error) {
	if err := requireAddress(holder, "holder"); err != nil {
		return domain.StakePosition{}, err
	}
	if amount.IsZero() {
		return domain.StakePosition{}, domain.ErrInvalidAmount.Withf("stake amount must be positive")
	}

	var pos domain.StakePosition
	in := intent{
		name:   "stake",
		keys:   []string{stakeKey(holder)},
		detail: map[string]any{"holder": holder.Hex(), "amount": amount.String()},
	}
	_, err := s.committer.Commit(ctx, in, func(ctx context.Context, tx domain.Tx) error {
		bal, err := s.vault.BalanceOf(ctx, tx, s.token, holder)
		if err != nil {
			return err
		}
		if bal.Lt(amount) {
			return domain.ErrInsufficientBalance.Withf("available %s, requested %s", bal, amount)
		}
		if err := s.vault.TransferFrom(ctx, tx, s.account, holder, s.account, domain.FungibleAsset(s.token, amount)); err != nil {
			return err
		}

		pos, err = tx.Stakes().Get(ctx, holder)
		if err != nil {
			return err
		}
		total, err := pos.Staked.Add(amount)
		if err != nil {
			return err
		}
		pos.Holder = holder
		pos.Staked = total
		pos.StakedAt = s.clock.Now()
		if err := tx.Stakes().Put(ctx, pos); err != nil {
			return fmt.Errorf("stake_ledger: put %s: %w", holder.Hex(), err)
		}
		return tx.Emit(ctx, domain.EventStaked, domain.Staked{Holder: holder, Amount: amount, NewStakedTotal: total})
	})
	if err != nil {
		return domain.StakePosition{}, err
	}

	s.logger.InfoContext(ctx, "stake_ledger: staked",
		slog.String("holder", holder.Hex()),
		slog.String("amount", amount.String()),
		slog.String("total", pos.Staked.String()),
	)
	return pos, nil
}

// Unstake returns the holder's entire stake. Partial unstaking is not
// supported.
func (s *StakeLedger) Unstake(ctx context.Context, holder domain.Address) (domain.Amount, error) {
	if err := requireAddress(holder, "holder"); err != nil {
		return domain.Amount{}, err
	}

	var returned domain.Amount
	in := intent{
		name:   "unstake",
		keys:   []string{stakeKey(holder)},
		detail: map[string]any{"holder": holder.Hex()},
	}
	_, err := s.committer.Commit(ctx, in, func(ctx context.Context, tx domain.Tx) error {
		pos, err := tx.Stakes().Get(ctx, holder)
		if err != nil {
			return err
		}
		if pos.Staked.IsZero() {
			return domain.ErrNothingStaked.Withf("%s", holder.Hex())
		}
		returned = pos.Staked
		if err := s.vault.Transfer(ctx, tx, s.account, holder, domain.FungibleAsset(s.token, returned)); err != nil {
			return err
		}
		pos.Staked = domain.Amount{}
		if err := tx.Stakes().Put(ctx, pos); err != nil {
			return fmt.Errorf("stake_ledger: put %s: %w", holder.Hex(), err)
		}
		return tx.Emit(ctx, domain.EventUnstaked, domain.Unstaked{Holder: holder, AmountReturned: returned})
	})
	if err != nil {
		return domain.Amount{}, err
	}

	s.logger.InfoContext(ctx, "stake_ledger: unstaked",
		slog.String("holder", holder.Hex()),
		slog.String("amount", returned.String()),
	)
	return returned, nil
}

// Position returns the holder's stake position.
func (s *StakeLedger) Position(ctx context.Context, holder domain.Address) (domain.StakePosition, error) {
	var pos domain.StakePosition
	err := s.committer.UnitOfWork().View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		pos, err = tx.Stakes().Get(ctx, holder)
		return err
	})
	return pos, err
}

// GetStakedBalance returns the amount currently staked by holder.
func (s *StakeLedger) GetStakedBalance(ctx context.Context, holder domain.Address) (domain.Amount, error) {
	pos, err := s.Position(ctx, holder)
	return pos.Staked, err
}

// GetStakingTimestamp returns the time of the holder's most recent stake, or
// the zero time if the holder never staked.
func (s *StakeLedger) GetStakingTimestamp(ctx context.Context, holder domain.Address) (time.Time, error) {
	pos, err := s.Position(ctx, holder)
	return pos.StakedAt, err
}

// AvailableBalance returns the holder's unstaked balance of the stake token.
func (s *StakeLedger) AvailableBalance(ctx context.Context, holder domain.Address) (domain.Amount, error) {
	var bal domain.Amount
	err := s.committer.UnitOfWork().View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		bal, err = s.vault.BalanceOf(ctx, tx, s.token, holder)
		return err
	})
	return bal, err
}
