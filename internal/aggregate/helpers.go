package aggregate

import (
	"math/big"

	"pmrouter/internal/fixed"
)

const vwapScale = 4

// computeVWAPBps is collateral*BPS/shares, nil when nothing traded.
func computeVWAPBps(collateral, shares *big.Int) *string {
	if collateral == nil || shares == nil || shares.Sign() == 0 {
		return nil
	}
	num := new(big.Int).Mul(collateral, big.NewInt(fixed.BPS))
	val := new(big.Rat).SetFrac(num, shares).FloatString(vwapScale)
	return &val
}
