// Package amm holds constant-product math for a YES/NO outcome pool. Buying a side
// splits collateral into both sides and swaps the unwanted side into the pool;
// selling swaps part of the shares for the other side and merges the pair.
package amm

import (
	"fmt"

	"github.com/holiman/uint256"

	"pmrouter/internal/fixed"
	"pmrouter/internal/model"
)

// ImpactDrain is reported when a trade would empty the output reserve.
const ImpactDrain = fixed.BPS + 1

// Reserves are the pool's YES and NO balances.
type Reserves struct {
	Yes uint256.Int
	No  uint256.Int
}

// NewReserves builds reserves from plain integers.
func NewReserves(yes, no uint64) Reserves {
	var r Reserves
	r.Yes.SetUint64(yes)
	r.No.SetUint64(no)
	return r
}

// PriceYesBps is floor(no * 10000 / (yes + no)); an empty pool prices at 5000.
func (r Reserves) PriceYesBps() uint64 {
	total, overflow := new(uint256.Int).AddOverflow(&r.Yes, &r.No)
	if overflow || total.IsZero() {
		return fixed.BPS / 2
	}
	p, err := fixed.MulDiv(&r.No, uint256.NewInt(fixed.BPS), total)
	if err != nil {
		return fixed.BPS / 2
	}
	return p.Uint64()
}

// PriceBps returns the price of the requested side.
func (r Reserves) PriceBps(yes bool) uint64 {
	p := r.PriceYesBps()
	if yes {
		return p
	}
	return fixed.BPS - p
}

func (r Reserves) sides(yesOut bool) (in, out *uint256.Int) {
	if yesOut {
		return &r.No, &r.Yes
	}
	return &r.Yes, &r.No
}

// SwapOut is the constant-product output for amountIn with fee in bps.
func SwapOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, fmt.Errorf("empty reserve: %w", model.ErrInsufficientLiquidity)
	}
	if feeBps >= fixed.BPS {
		return nil, fmt.Errorf("fee %d bps: %w", feeBps, model.ErrInvalidArgument)
	}
	withFee, err := fixed.Mul(amountIn, uint256.NewInt(fixed.BPS-feeBps))
	if err != nil {
		return nil, err
	}
	scaledIn, err := fixed.Mul(reserveIn, uint256.NewInt(fixed.BPS))
	if err != nil {
		return nil, err
	}
	den, err := fixed.Add(scaledIn, withFee)
	if err != nil {
		return nil, err
	}
	out, err := fixed.MulDiv(withFee, reserveOut, den)
	if err != nil {
		return nil, err
	}
	if !out.Lt(reserveOut) {
		return nil, fmt.Errorf("swap drains reserve: %w", model.ErrInsufficientLiquidity)
	}
	return out, nil
}

// Buy returns the shares delivered for collateralIn and the reserves afterwards.
func Buy(r Reserves, yes bool, collateralIn *uint256.Int, feeBps uint64) (*uint256.Int, Reserves, error) {
	rIn, rOut := r.sides(yes)
	out, err := SwapOut(collateralIn, rIn, rOut, feeBps)
	if err != nil {
		return nil, r, err
	}
	after := r
	aIn, aOut := after.sidesPtr(yes)
	if _, overflow := aIn.AddOverflow(aIn, collateralIn); overflow {
		return nil, r, model.ErrOverflow
	}
	aOut.Sub(aOut, out)

	shares, err := fixed.Add(collateralIn, out)
	if err != nil {
		return nil, r, err
	}
	return shares, after, nil
}

func (r *Reserves) sidesPtr(yesOut bool) (in, out *uint256.Int) {
	if yesOut {
		return &r.No, &r.Yes
	}
	return &r.Yes, &r.No
}

// Sell returns the collateral paid for sharesIn of the given side. The largest
// swap x with swapOut(x) <= sharesIn-x is found exactly; the merged pair pays
// swapOut(x) collateral and any leftover shares stay in the pool.
func Sell(r Reserves, yes bool, sharesIn *uint256.Int, feeBps uint64) (*uint256.Int, Reserves, error) {
	if sharesIn.IsZero() {
		return nil, r, model.ErrZeroAmount
	}
	// selling YES swaps YES in for NO out.
	rIn, rOut := r.sides(!yes)
	fits := func(x *uint256.Int) (*uint256.Int, bool) {
		if x.IsZero() {
			return new(uint256.Int), true
		}
		out, err := SwapOut(x, rIn, rOut, feeBps)
		if err != nil {
			return nil, false
		}
		sum, overflow := new(uint256.Int).AddOverflow(x, out)
		return out, !overflow && !sum.Gt(sharesIn)
	}

	lo, hi := new(uint256.Int), sharesIn.Clone()
	one := uint256.NewInt(1)
	for lo.Lt(hi) {
		mid := new(uint256.Int).Sub(hi, lo)
		mid.Add(mid, one).Rsh(mid, 1).Add(mid, lo)
		if _, ok := fits(mid); ok {
			lo = mid
		} else {
			hi = mid.Sub(mid, one)
		}
	}
	out, _ := fits(lo)
	if out == nil || out.IsZero() {
		return nil, r, fmt.Errorf("sell too small for pool: %w", model.ErrInsufficientLiquidity)
	}

	after := r
	aIn, aOut := after.sidesPtr(!yes)
	kept := new(uint256.Int).Sub(sharesIn, out)
	if _, overflow := aIn.AddOverflow(aIn, kept); overflow {
		return nil, r, model.ErrOverflow
	}
	aOut.Sub(aOut, out)
	return out, after, nil
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// Impact is the YES-probability shift in bps between two reserve states.
func Impact(before, after Reserves) uint64 {
	return absDiff(before.PriceYesBps(), after.PriceYesBps())
}

// BuyImpact is the price impact of a buy, ImpactDrain if it cannot execute.
func BuyImpact(r Reserves, yes bool, collateralIn *uint256.Int, feeBps uint64) uint64 {
	_, after, err := Buy(r, yes, collateralIn, feeBps)
	if err != nil {
		return ImpactDrain
	}
	return Impact(r, after)
}

// MaxBuyUnderImpact returns the largest collateral amount <= budget whose buy moves
// the price by at most maxImpactBps. The search runs to exact convergence.
func MaxBuyUnderImpact(r Reserves, yes bool, budget *uint256.Int, feeBps, maxImpactBps uint64) *uint256.Int {
	if maxImpactBps == 0 || budget.IsZero() {
		return new(uint256.Int)
	}
	if BuyImpact(r, yes, budget, feeBps) <= maxImpactBps {
		return budget.Clone()
	}
	lo, hi := new(uint256.Int), new(uint256.Int).SubUint64(budget, 1)
	one := uint256.NewInt(1)
	for lo.Lt(hi) {
		mid := new(uint256.Int).Sub(hi, lo)
		mid.Add(mid, one).Rsh(mid, 1).Add(mid, lo)
		if BuyImpact(r, yes, mid, feeBps) <= maxImpactBps {
			lo = mid
		} else {
			hi = mid.Sub(mid, one)
		}
	}
	return lo
}
