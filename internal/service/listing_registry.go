package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/portfolioledger/internal/custody"
	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// ListingRegistry is the fixed-price marketplace. Listing an item does not
// escrow it: the seller grants the marketplace account a custody approval and
// the asset is pulled at purchase time.
type ListingRegistry struct {
	committer *Committer
	vault     *custody.Vault
	accounts  domain.SystemAccounts
	contracts domain.Contracts
	clock     domain.Clock
	logger    *slog.Logger
}

// NewListingRegistry creates a ListingRegistry.
func NewListingRegistry(d Deps) *ListingRegistry {
	return &ListingRegistry{
		committer: d.Committer,
		vault:     d.Vault,
		accounts:  d.Accounts,
		contracts: d.Contracts,
		clock:     d.clock(),
		logger:    d.logger("listing_registry"),
	}
}

// ListItem records a new active listing and returns its id.
func (r *ListingRegistry) ListItem(ctx context.Context, seller domain.Address, asset domain.Asset, price domain.Amount) (domain.ListingID, error) {
	if err := requireAddress(seller, "seller"); err != nil {
		return 0, err
	}
	if price.IsZero() {
		return 0, domain.ErrInvalidPrice.Withf("price must be positive")
	}
	if err := asset.Validate(); err != nil {
		return 0, err
	}

	var id domain.ListingID
	in := intent{name: "list_item", detail: map[string]any{"seller": seller.Hex(), "asset": asset.String(), "price": price.String()}}
	_, err := r.committer.Commit(ctx, in, func(ctx context.Context, tx domain.Tx) error {
		var err error
		id, err = tx.Listings().Insert(ctx, domain.Listing{
			Seller:    seller,
			Asset:     asset,
			Price:     price,
			Active:    true,
			CreatedAt: r.clock.Now(),
		})
		if err != nil {
			return fmt.Errorf("listing_registry: insert: %w", err)
		}
		return tx.Emit(ctx, domain.EventListingCreated, domain.ListingCreated{
			ID: id, Seller: seller, Asset: asset, Price: price,
		})
	})
	if err != nil {
		return 0, err
	}

	r.logger.InfoContext(ctx, "listing_registry: listed",
		slog.Uint64("listing_id", uint64(id)),
		slog.String("seller", seller.Hex()),
		slog.String("asset", asset.String()),
	)
	return id, nil
}

// BuyItem purchases an active listing. payment must equal the listing price.
// The asset moves seller to buyer and the payment buyer to seller in one
// commit; on any failure neither moves and the listing stays active.
func (r *ListingRegistry) BuyItem(ctx context.Context, id domain.ListingID, buyer domain.Address, payment domain.Amount) (domain.Receipt, error) {
	if err := requireAddress(buyer, "buyer"); err != nil {
		return domain.Receipt{}, err
	}

	var receipt domain.Receipt
	in := intent{
		name:   "buy_item",
		keys:   []string{listingKey(id)},
		detail: map[string]any{"listing_id": uint64(id), "buyer": buyer.Hex(), "payment": payment.String()},
	}
	events, err := r.committer.Commit(ctx, in, func(ctx context.Context, tx domain.Tx) error {
		l, err := tx.Listings().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := closedErr(l); err != nil {
			return err
		}
		if !payment.Eq(l.Price) {
			return domain.ErrPaymentMismatch.Withf("sent %s, price is %s", payment, l.Price)
		}

		if err := r.vault.TransferFrom(ctx, tx, r.accounts.Marketplace, l.Seller, buyer, l.Asset); err != nil {
			return err
		}
		pay := domain.FungibleAsset(r.contracts.Payment, l.Price)
		if err := r.vault.Transfer(ctx, tx, buyer, l.Seller, pay); err != nil {
			return err
		}

		now := r.clock.Now()
		b := buyer
		l.Active = false
		l.Buyer = &b
		l.ClosedAt = &now
		if err := tx.Listings().Update(ctx, l); err != nil {
			return fmt.Errorf("listing_registry: close %d: %w", id, err)
		}

		receipt = domain.Receipt{ListingID: id, Buyer: buyer, Seller: l.Seller, Asset: l.Asset, Price: l.Price}
		return tx.Emit(ctx, domain.EventListingSold, domain.ListingSold{
			ID: id, Buyer: buyer, Seller: l.Seller, Price: l.Price,
		})
	})
	if err != nil {
		return domain.Receipt{}, err
	}
	receipt.Seq = lastSeq(events)

	r.logger.InfoContext(ctx, "listing_registry: sold",
		slog.Uint64("listing_id", uint64(id)),
		slog.String("buyer", buyer.Hex()),
		slog.String("price", receipt.Price.String()),
	)
	return receipt, nil
}

// CancelListing deactivates an active listing. Only its seller may cancel.
func (r *ListingRegistry) CancelListing(ctx context.Context, id domain.ListingID, caller domain.Address) error {
	in := intent{
		name:   "cancel_listing",
		keys:   []string{listingKey(id)},
		detail: map[string]any{"listing_id": uint64(id), "caller": caller.Hex()},
	}
	_, err := r.committer.Commit(ctx, in, func(ctx context.Context, tx domain.Tx) error {
		l, err := tx.Listings().Get(ctx, id)
		if err != nil {
			return err
		}
		if l.Seller != caller {
			return domain.ErrNotSeller.Withf("listing %d", id)
		}
		if err := closedErr(l); err != nil {
			return err
		}
		now := r.clock.Now()
		l.Active = false
		l.ClosedAt = &now
		if err := tx.Listings().Update(ctx, l); err != nil {
			return fmt.Errorf("listing_registry: cancel %d: %w", id, err)
		}
		return tx.Emit(ctx, domain.EventListingCancelled, domain.ListingCancelled{ID: id})
	})
	if err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "listing_registry: cancelled", slog.Uint64("listing_id", uint64(id)))
	return nil
}

// GetListing returns a listing by id.
func (r *ListingRegistry) GetListing(ctx context.Context, id domain.ListingID) (domain.Listing, error) {
	var l domain.Listing
	err := r.committer.UnitOfWork().View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		l, err = tx.Listings().Get(ctx, id)
		return err
	})
	return l, err
}

// NextListingID returns the id the next listing will receive, which is also
// the number of listings ever created.
func (r *ListingRegistry) NextListingID(ctx context.Context) (domain.ListingID, error) {
	var next domain.ListingID
	err := r.committer.UnitOfWork().View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		next, err = tx.Listings().NextID(ctx)
		return err
	})
	return next, err
}

// ListListings returns listings in id order.
func (r *ListingRegistry) ListListings(ctx context.Context, f domain.ListingFilter) ([]domain.Listing, error) {
	var out []domain.Listing
	err := r.committer.UnitOfWork().View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.Listings().List(ctx, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing_registry: list: %w", err)
	}
	return out, nil
}

func closedErr(l domain.Listing) error {
	switch {
	case l.Active:
		return nil
	case l.Cancelled():
		return domain.ErrListingCancelled.Withf("listing %d", l.ID)
	default:
		return domain.ErrAlreadySold.Withf("listing %d", l.ID)
	}
}
