// Package fixed holds checked 256-bit arithmetic used by the pool ledger.
package fixed

import (
	"fmt"

	"github.com/holiman/uint256"

	"pmrouter/internal/model"
)

const (
	// BPS is the basis point denominator.
	BPS = 10_000
	// MinPrice and MaxPrice bound the price domain in basis points.
	MinPrice = 1
	MaxPrice = BPS - 1
)

var (
	// Scale is the accumulator denominator (1e18).
	Scale = uint256.NewInt(1_000_000_000_000_000_000)
	bps   = uint256.NewInt(BPS)
)

// MulDiv returns floor(x*y/d).
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("mul div by zero: %w", model.ErrOverflow)
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, fmt.Errorf("mul div %s*%s/%s: %w", x.Dec(), y.Dec(), d.Dec(), model.ErrOverflow)
	}
	return z, nil
}

// MulDivUp returns ceil(x*y/d).
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(x, y, d)
	if err != nil {
		return nil, err
	}
	// remainder check: x*y mod d != 0 bumps the result by one.
	if new(uint256.Int).MulMod(x, y, d).IsZero() {
		return z, nil
	}
	if z.Eq(maxUint) {
		return nil, fmt.Errorf("mul div up: %w", model.ErrOverflow)
	}
	return z.AddUint64(z, 1), nil
}

var maxUint = new(uint256.Int).SetAllOne()

// Add returns x+y or ErrOverflow.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("add: %w", model.ErrOverflow)
	}
	return z, nil
}

// Sub returns x-y or ErrOverflow on underflow.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	if x.Lt(y) {
		return nil, fmt.Errorf("sub %s-%s: %w", x.Dec(), y.Dec(), model.ErrOverflow)
	}
	return new(uint256.Int).Sub(x, y), nil
}

// SatSub returns max(0, x-y).
func SatSub(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(x, y)
}

// Min returns a copy of the smaller value.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x.Clone()
	}
	return y.Clone()
}

// SharesToCollateralUp is the collateral owed for shares at price, rounded up.
func SharesToCollateralUp(shares *uint256.Int, price uint16) (*uint256.Int, error) {
	return MulDivUp(shares, uint256.NewInt(uint64(price)), bps)
}

// SharesToCollateralDown is the collateral owed for shares at price, rounded down.
func SharesToCollateralDown(shares *uint256.Int, price uint16) (*uint256.Int, error) {
	return MulDiv(shares, uint256.NewInt(uint64(price)), bps)
}

// CollateralToSharesDown is the share count purchasable with collateral at price, rounded down.
func CollateralToSharesDown(collateral *uint256.Int, price uint16) (*uint256.Int, error) {
	return MulDiv(collateral, bps, uint256.NewInt(uint64(price)))
}

// CollateralToSharesUp is the share count needed to take collateral at price, rounded up.
func CollateralToSharesUp(collateral *uint256.Int, price uint16) (*uint256.Int, error) {
	return MulDivUp(collateral, bps, uint256.NewInt(uint64(price)))
}

// ValidPrice reports whether price lies in the tradable domain.
func ValidPrice(price uint16) bool {
	return price >= MinPrice && price <= MaxPrice
}

// Mul returns x*y or ErrOverflow.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("mul: %w", model.ErrOverflow)
	}
	return z, nil
}
