// Package custody moves fungible balances and non-fungible tokens between
// accounts inside a unit of work.
//
// Two transfer styles exist. Transfer is push-based: the caller moves its own
// holdings. TransferFrom is pull-based: a spender moves an owner's holdings
// and needs a prior grant recorded by Approve.
package custody

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// Vault applies custody rules to a transaction's CustodyStore.
type Vault struct {
	clock domain.Clock
}

// NewVault creates a Vault that stamps mints with clock.
func NewVault(clock domain.Clock) *Vault {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Vault{clock: clock}
}

// BalanceOf returns holder's fungible balance of contract.
func (v *Vault) BalanceOf(ctx context.Context, tx domain.Tx, contract, holder domain.Address) (domain.Amount, error) {
	return tx.Custody().Balance(ctx, contract, holder)
}

// OwnerOf returns the current owner of a token.
func (v *Vault) OwnerOf(ctx context.Context, tx domain.Tx, collection domain.Address, id domain.TokenID) (domain.Address, error) {
	tok, err := tx.Custody().Token(ctx, collection, id)
	if err != nil {
		return domain.Address{}, err
	}
	return tok.Owner, nil
}

// Allowance returns how much of owner's balance spender may pull.
func (v *Vault) Allowance(ctx context.Context, tx domain.Tx, contract, owner, spender domain.Address) (domain.Amount, error) {
	return tx.Custody().Allowance(ctx, contract, owner, spender)
}

// Approve records a grant. For a fungible asset the allowance is overwritten
// with the asset amount (zero revokes). For a token only its owner may
// approve, and the approval replaces any previous one.
func (v *Vault) Approve(ctx context.Context, tx domain.Tx, owner, spender domain.Address, asset domain.Asset) error {
	if owner == domain.ZeroAddress || spender == domain.ZeroAddress {
		return domain.ErrInvalidAddress.Withf("approve: zero owner or spender")
	}
	if asset.Contract == domain.ZeroAddress {
		return domain.ErrInvalidAsset.Withf("approve: missing contract")
	}
	cs := tx.Custody()

	switch asset.Kind {
	case domain.AssetFungible:
		if err := cs.SetAllowance(ctx, asset.Contract, owner, spender, asset.Amount); err != nil {
			return fmt.Errorf("custody: approve: %w", err)
		}
	case domain.AssetNonFungible:
		tok, err := cs.Token(ctx, asset.Contract, asset.TokenID)
		if err != nil {
			return err
		}
		if tok.Owner != owner {
			return domain.ErrNotOwner.Withf("token %d", asset.TokenID)
		}
		s := spender
		tok.Approved = &s
		if err := cs.PutToken(ctx, tok); err != nil {
			return fmt.Errorf("custody: approve: %w", err)
		}
	default:
		return domain.ErrInvalidAsset.Withf("unknown standard %d", uint8(asset.Kind))
	}

	return tx.Emit(ctx, domain.EventApproval, domain.Approval{Owner: owner, Spender: spender, Asset: asset})
}

// Transfer moves asset out of from's own holdings.
func (v *Vault) Transfer(ctx context.Context, tx domain.Tx, from, to domain.Address, asset domain.Asset) error {
	if err := asset.Validate(); err != nil {
		return err
	}
	if to == domain.ZeroAddress {
		return domain.ErrInvalidAddress.Withf("transfer to zero address")
	}
	cs := tx.Custody()

	switch asset.Kind {
	case domain.AssetFungible:
		return v.move(ctx, cs, asset.Contract, from, to, asset.Amount)
	case domain.AssetNonFungible:
		tok, err := cs.Token(ctx, asset.Contract, asset.TokenID)
		if err != nil {
			return err
		}
		if tok.Owner != from {
			return domain.ErrNotOwner.Withf("token %d", asset.TokenID)
		}
		return v.reassign(ctx, cs, tok, to)
	default:
		return domain.ErrInvalidAsset.Withf("unknown standard %d", uint8(asset.Kind))
	}
}

// TransferFrom lets spender move asset from owner to to. It consumes the
// fungible allowance or the token approval.
func (v *Vault) TransferFrom(ctx context.Context, tx domain.Tx, spender, owner, to domain.Address, asset domain.Asset) error {
	if err := asset.Validate(); err != nil {
		return err
	}
	if to == domain.ZeroAddress {
		return domain.ErrInvalidAddress.Withf("transfer to zero address")
	}
	cs := tx.Custody()

	switch asset.Kind {
	case domain.AssetFungible:
		allowance, err := cs.Allowance(ctx, asset.Contract, owner, spender)
		if err != nil {
			return err
		}
		if allowance.Lt(asset.Amount) {
			return domain.ErrNoCustodyGrant.Withf("allowance %s < %s", allowance, asset.Amount)
		}
		if err := v.move(ctx, cs, asset.Contract, owner, to, asset.Amount); err != nil {
			return err
		}
		rest, err := allowance.Sub(asset.Amount)
		if err != nil {
			return err
		}
		return cs.SetAllowance(ctx, asset.Contract, owner, spender, rest)
	case domain.AssetNonFungible:
		tok, err := cs.Token(ctx, asset.Contract, asset.TokenID)
		if err != nil {
			return err
		}
		if tok.Owner != owner {
			return domain.ErrNotOwner.Withf("token %d is not held by %s", asset.TokenID, owner.Hex())
		}
		if tok.Approved == nil || *tok.Approved != spender {
			return domain.ErrNoCustodyGrant.Withf("token %d not approved for %s", asset.TokenID, spender.Hex())
		}
		return v.reassign(ctx, cs, tok, to)
	default:
		return domain.ErrInvalidAsset.Withf("unknown standard %d", uint8(asset.Kind))
	}
}

// Mint creates the next token of collection owned by owner.
func (v *Vault) Mint(ctx context.Context, tx domain.Tx, collection, owner domain.Address, uri string, price domain.Amount) (domain.TokenID, error) {
	if owner == domain.ZeroAddress {
		return 0, domain.ErrInvalidAddress.Withf("mint to zero address")
	}
	cs := tx.Custody()
	id, err := cs.NextTokenID(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("custody: mint: %w", err)
	}
	tok := domain.Token{
		Collection: collection,
		ID:         id,
		Owner:      owner,
		URI:        uri,
		Price:      price,
		MintedAt:   v.clock.Now(),
	}
	if err := cs.PutToken(ctx, tok); err != nil {
		return 0, fmt.Errorf("custody: mint: %w", err)
	}
	if err := tx.Emit(ctx, domain.EventTokenMinted, domain.TokenMinted{
		Collection: collection, TokenID: id, Owner: owner, URI: uri,
	}); err != nil {
		return 0, err
	}
	return id, nil
}

// Credit adds amount of contract to holder's balance.
func (v *Vault) Credit(ctx context.Context, tx domain.Tx, contract, holder domain.Address, amount domain.Amount) error {
	if holder == domain.ZeroAddress || contract == domain.ZeroAddress {
		return domain.ErrInvalidAddress.Withf("credit: zero holder or contract")
	}
	if amount.IsZero() {
		return domain.ErrInvalidAmount.Withf("credit amount must be positive")
	}
	cs := tx.Custody()
	bal, err := cs.Balance(ctx, contract, holder)
	if err != nil {
		return err
	}
	next, err := bal.Add(amount)
	if err != nil {
		return err
	}
	if err := cs.SetBalance(ctx, contract, holder, next); err != nil {
		return fmt.Errorf("custody: credit: %w", err)
	}
	return tx.Emit(ctx, domain.EventCredited, domain.Credited{Asset: contract, Holder: holder, Amount: amount})
}

func (v *Vault) move(ctx context.Context, cs domain.CustodyStore, contract, from, to domain.Address, amount domain.Amount) error {
	fromBal, err := cs.Balance(ctx, contract, from)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return domain.ErrInsufficientBalance.Withf("%s holds %s, needs %s", from.Hex(), fromBal, amount)
	}
	debited, err := fromBal.Sub(amount)
	if err != nil {
		return err
	}
	if err := cs.SetBalance(ctx, contract, from, debited); err != nil {
		return fmt.Errorf("custody: debit: %w", err)
	}

	// Read after the debit so a self-transfer nets to zero.
	toBal, err := cs.Balance(ctx, contract, to)
	if err != nil {
		return err
	}
	credited, err := toBal.Add(amount)
	if err != nil {
		return err
	}
	if err := cs.SetBalance(ctx, contract, to, credited); err != nil {
		return fmt.Errorf("custody: credit: %w", err)
	}
	return nil
}

func (v *Vault) reassign(ctx context.Context, cs domain.CustodyStore, tok domain.Token, to domain.Address) error {
	tok.Owner = to
	tok.Approved = nil
	if err := cs.PutToken(ctx, tok); err != nil {
		return fmt.Errorf("custody: transfer token %d: %w", tok.ID, err)
	}
	return nil
}
