package domain

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DeriveAccount returns the deterministic system address for name.
func DeriveAccount(name string) Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("portfolio." + name))[12:])
}

// SystemAccounts are the custody accounts owned by the ledger components.
type SystemAccounts struct {
	// Marketplace is the spender that pulls listed assets from sellers.
	Marketplace Address
	// AuctionHouse escrows bids and pulls auctioned tokens from sellers.
	AuctionHouse Address
	// StakeVault holds staked units.
	StakeVault Address
}

// DefaultSystemAccounts derives the built-in component accounts.
func DefaultSystemAccounts() SystemAccounts {
	return SystemAccounts{
		Marketplace:  DeriveAccount("marketplace"),
		AuctionHouse: DeriveAccount("auction_house"),
		StakeVault:   DeriveAccount("stake_vault"),
	}
}

// Contracts names the asset contracts the ledger settles in.
type Contracts struct {
	// Payment is the fungible asset used to pay for listings and bids.
	Payment Address
	// StakeToken is the fungible asset accepted by the stake ledger.
	StakeToken Address
	// Collection is the non-fungible collection minted and auctioned.
	Collection Address
}

// DefaultContracts derives the built-in asset contracts.
func DefaultContracts() Contracts {
	return Contracts{
		Payment:    DeriveAccount("native"),
		StakeToken: DeriveAccount("token"),
		Collection: DeriveAccount("nft"),
	}
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock fixed at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
