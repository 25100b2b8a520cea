package domain

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Amount is a non-negative quantity of base units, bounded by 2^256-1.
// The zero value is zero. Arithmetic is checked: Add and Sub return
// ErrOverflow instead of wrapping.
type Amount struct {
	v uint256.Int
}

// NewAmount returns n base units.
func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// ParseAmount parses a base-10 integer string.
func ParseAmount(s string) (Amount, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, ErrInvalidAmount.Withf("parse %q: %v", s, err)
	}
	return Amount{v: *v}, nil
}

// MustAmount is ParseAmount for constants. It panics on malformed input.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromBig converts a non-negative big.Int.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b.Sign() < 0 {
		return Amount{}, ErrInvalidAmount.Withf("negative amount %s", b)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Amount{}, ErrOverflow.Withf("%s exceeds 256 bits", b)
	}
	return Amount{v: *v}, nil
}

func (a Amount) IsZero() bool { return a.v.IsZero() }

// Cmp returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

func (a Amount) Eq(b Amount) bool { return a.v.Eq(&b.v) }

func (a Amount) Lt(b Amount) bool { return a.v.Lt(&b.v) }

// Add returns a+b.
func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, ErrOverflow.Withf("%s + %s", a, b)
	}
	return out, nil
}

// Sub returns a-b.
func (a Amount) Sub(b Amount) (Amount, error) {
	var out Amount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, ErrOverflow.Withf("%s - %s", a, b)
	}
	return out, nil
}

// Big returns a copy as a big.Int.
func (a Amount) Big() *big.Int { return a.v.ToBig() }

func (a Amount) String() string { return a.v.Dec() }

func (a Amount) MarshalText() ([]byte, error) { return []byte(a.v.Dec()), nil }

func (a *Amount) UnmarshalText(b []byte) error {
	parsed, err := ParseAmount(string(b))
	if err != nil {
		return fmt.Errorf("domain: amount: %w", err)
	}
	*a = parsed
	return nil
}
