package service

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/portfolioledger/internal/custody"
	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// CustodyService exposes custody grants, minting and crediting as intents.
type CustodyService struct {
	committer *Committer
	vault     *custody.Vault
	contracts domain.Contracts
	logger    *slog.Logger
}

// NewCustodyService creates a CustodyService.
func NewCustodyService(d Deps) *CustodyService {
	return &CustodyService{
		committer: d.Committer,
		vault:     d.Vault,
		contracts: d.Contracts,
		logger:    d.logger("custody_service"),
	}
}

// Contracts returns the configured asset contracts.
func (s *CustodyService) Contracts() domain.Contracts { return s.contracts }

// Approve records owner's grant to spender.
func (s *CustodyService) Approve(ctx context.Context, owner, spender domain.Address, asset domain.Asset) error {
	in := intent{
		name:   "approve",
		keys:   []string{custodyKey(owner)},
		detail: map[string]any{"owner": owner.Hex(), "spender": spender.Hex(), "asset": asset.String()},
	}
	if asset.Kind == domain.AssetNonFungible {
		in.keys = append(in.keys, auctionKey(asset.Contract, asset.TokenID))
	}
	_, err := s.committer.Commit(ctx, in, func(ctx context.Context, tx domain.Tx) error {
		return s.vault.Approve(ctx, tx, owner, spender, asset)
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "custody_service: approved",
		slog.String("owner", owner.Hex()),
		slog.String("spender", spender.Hex()),
		slog.String("asset", asset.String()),
	)
	return nil
}

// Credit deposits amount of contract to holder. It is an operator action.
func (s *CustodyService) Credit(ctx context.Context, contract, holder domain.Address, amount domain.Amount) error {
	in := intent{
		name:   "credit",
		keys:   []string{custodyKey(holder)},
		detail: map[string]any{"contract": contract.Hex(), "holder": holder.Hex(), "amount": amount.String()},
	}
	_, err := s.committer.Commit(ctx, in, func(ctx context.Context, tx domain.Tx) error {
		return s.vault.Credit(ctx, tx, contract, holder, amount)
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "custody_service: credited",
		slog.String("contract", contract.Hex()),
		slog.String("holder", holder.Hex()),
		slog.String("amount", amount.String()),
	)
	return nil
}

// MintNFT mints a token of the configured collection to owner with an
// informational list price.
func (s *CustodyService) MintNFT(ctx context.Context, owner domain.Address, uri string, price domain.Amount) (domain.TokenID, error) {
	var id domain.TokenID
	in := intent{name: "mint_nft", detail: map[string]any{"owner": owner.Hex(), "uri": uri}}
	_, err := s.committer.Commit(ctx, in, func(ctx context.Context, tx domain.Tx) error {
		var err error
		id, err = s.vault.Mint(ctx, tx, s.contracts.Collection, owner, uri, price)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "custody_service: minted",
		slog.Uint64("token_id", uint64(id)),
		slog.String("owner", owner.Hex()),
	)
	return id, nil
}

// Balance returns holder's balance of contract.
func (s *CustodyService) Balance(ctx context.Context, contract, holder domain.Address) (domain.Amount, error) {
	var bal domain.Amount
	err := s.committer.UnitOfWork().View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		bal, err = s.vault.BalanceOf(ctx, tx, contract, holder)
		return err
	})
	return bal, err
}

// Allowance returns the grant owner gave spender on contract.
func (s *CustodyService) Allowance(ctx context.Context, contract, owner, spender domain.Address) (domain.Amount, error) {
	var out domain.Amount
	err := s.committer.UnitOfWork().View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = s.vault.Allowance(ctx, tx, contract, owner, spender)
		return err
	})
	return out, err
}

// Token returns a token of the configured collection.
func (s *CustodyService) Token(ctx context.Context, id domain.TokenID) (domain.Token, error) {
	var tok domain.Token
	err := s.committer.UnitOfWork().View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		tok, err = tx.Custody().Token(ctx, s.contracts.Collection, id)
		return err
	})
	return tok, err
}

// TokensOf returns the tokens of the configured collection held by owner.
func (s *CustodyService) TokensOf(ctx context.Context, owner domain.Address) ([]domain.Token, error) {
	var out []domain.Token
	err := s.committer.UnitOfWork().View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.Custody().ListTokens(ctx, s.contracts.Collection, owner)
		return err
	})
	return out, err
}
