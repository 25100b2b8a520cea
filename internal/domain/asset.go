package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address identifies an account or an asset contract.
type Address = common.Address

// ZeroAddress is never a valid caller, holder or contract.
var ZeroAddress Address

// ParseAddress parses a 0x-prefixed hex address and rejects the zero address.
func ParseAddress(s string) (Address, error) {
	if !common.IsHexAddress(s) {
		return Address{}, ErrInvalidAddress.Withf("%q", s)
	}
	addr := common.HexToAddress(s)
	if addr == ZeroAddress {
		return Address{}, ErrInvalidAddress.Withf("zero address")
	}
	return addr, nil
}

// TokenID identifies one non-fungible token within a collection.
type TokenID uint64

// AssetKind discriminates the AssetStandard variants.
type AssetKind uint8

const (
	AssetFungible AssetKind = iota
	AssetNonFungible
)

func (k AssetKind) String() string {
	switch k {
	case AssetFungible:
		return "erc20"
	case AssetNonFungible:
		return "erc721"
	default:
		return fmt.Sprintf("asset_kind(%d)", uint8(k))
	}
}

// ParseAssetKind accepts "erc20"/"fungible" and "erc721"/"nft"/"non_fungible".
func ParseAssetKind(s string) (AssetKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "erc20", "fungible", "0":
		return AssetFungible, nil
	case "erc721", "nft", "non_fungible", "1":
		return AssetNonFungible, nil
	default:
		return 0, ErrInvalidAsset.Withf("unknown standard %q", s)
	}
}

func (k AssetKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *AssetKind) UnmarshalText(b []byte) error {
	parsed, err := ParseAssetKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Asset is a fungible quantity of a contract or a single non-fungible token.
// Only the fields of the active Kind are meaningful.
type Asset struct {
	Kind     AssetKind `json:"standard"`
	Contract Address   `json:"contract"`
	Amount   Amount    `json:"amount"`
	TokenID  TokenID   `json:"token_id"`
}

// FungibleAsset returns amount base units of contract.
func FungibleAsset(contract Address, amount Amount) Asset {
	return Asset{Kind: AssetFungible, Contract: contract, Amount: amount}
}

// NonFungibleAsset returns token id of collection.
func NonFungibleAsset(collection Address, id TokenID) Asset {
	return Asset{Kind: AssetNonFungible, Contract: collection, TokenID: id}
}

// Validate checks the variant's invariants.
func (a Asset) Validate() error {
	if a.Contract == ZeroAddress {
		return ErrInvalidAsset.Withf("missing contract")
	}
	switch a.Kind {
	case AssetFungible:
		if a.Amount.IsZero() {
			return ErrInvalidAmount.Withf("fungible amount must be positive")
		}
		return nil
	case AssetNonFungible:
		// An NFT is one unit; an explicit amount other than 0 or 1 is malformed.
		if !a.Amount.IsZero() && !a.Amount.Eq(NewAmount(1)) {
			return ErrInvalidAmount.Withf("non-fungible amount must be 1")
		}
		return nil
	default:
		return ErrInvalidAsset.Withf("unknown standard %d", uint8(a.Kind))
	}
}

func (a Asset) String() string {
	switch a.Kind {
	case AssetFungible:
		return fmt.Sprintf("%s %s", a.Amount, a.Contract.Hex())
	case AssetNonFungible:
		return fmt.Sprintf("%s#%d", a.Contract.Hex(), a.TokenID)
	default:
		return "invalid asset"
	}
}
