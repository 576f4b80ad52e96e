// Package ledger implements the accumulator ("reward debt") accounting shared by ask
// and bid pools. Functions validate and compute everything before mutating, so a
// returned error leaves pool and position untouched.
package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"pmrouter/internal/fixed"
	"pmrouter/internal/model"
)

// Deposit adds amountIn capital for pos and returns the units minted.
// The first deposit into an empty pool mints 1:1; later deposits mint
// floor(amountIn * totalUnits / totalCapital).
func Deposit(p *model.Pool, pos *model.Position, amountIn *uint256.Int) (*uint256.Int, error) {
	if amountIn.IsZero() {
		return nil, model.ErrZeroAmount
	}
	var units *uint256.Int
	switch {
	case p.TotalUnits.IsZero():
		units = amountIn.Clone()
	case p.TotalCapital.IsZero():
		return nil, model.ErrDepletedPool
	default:
		var err error
		units, err = fixed.MulDiv(amountIn, &p.TotalUnits, &p.TotalCapital)
		if err != nil {
			return nil, err
		}
		if units.IsZero() {
			return nil, model.ErrDustDeposit
		}
	}

	// debt for the new units rounds up so a later claim can never pay out a unit of
	// proceeds that accrued before the deposit.
	debt, err := fixed.MulDivUp(units, &p.AccProceedsPerUnit, fixed.Scale)
	if err != nil {
		return nil, err
	}
	capital, err := fixed.Add(&p.TotalCapital, amountIn)
	if err != nil {
		return nil, err
	}
	totalUnits, err := fixed.Add(&p.TotalUnits, units)
	if err != nil {
		return nil, err
	}
	posUnits, err := fixed.Add(&pos.Units, units)
	if err != nil {
		return nil, err
	}
	posDebt, err := fixed.Add(&pos.ProceedsDebt, debt)
	if err != nil {
		return nil, err
	}

	p.TotalCapital = *capital
	p.TotalUnits = *totalUnits
	pos.Units = *posUnits
	pos.ProceedsDebt = *posDebt
	return units, nil
}

// Fill removes capitalOut from the pool and distributes proceedsIn across every
// outstanding unit through the accumulator.
func Fill(p *model.Pool, capitalOut, proceedsIn *uint256.Int) error {
	if p.TotalUnits.IsZero() {
		return model.ErrNoUnits
	}
	if capitalOut.Gt(&p.TotalCapital) {
		return fmt.Errorf("fill %s of %s: %w", capitalOut.Dec(), p.TotalCapital.Dec(), model.ErrInsufficientLiquidity)
	}
	delta, err := fixed.MulDiv(proceedsIn, fixed.Scale, &p.TotalUnits)
	if err != nil {
		return err
	}
	acc, err := fixed.Add(&p.AccProceedsPerUnit, delta)
	if err != nil {
		return err
	}
	collected, err := fixed.Add(&p.ProceedsCollected, proceedsIn)
	if err != nil {
		return err
	}

	p.TotalCapital.Sub(&p.TotalCapital, capitalOut)
	p.AccProceedsPerUnit = *acc
	p.ProceedsCollected = *collected
	return nil
}

// Pending returns the proceeds pos could claim right now.
func Pending(p *model.Pool, pos *model.Position) (*uint256.Int, error) {
	accumulated, err := fixed.MulDiv(&pos.Units, &p.AccProceedsPerUnit, fixed.Scale)
	if err != nil {
		return nil, err
	}
	amount := fixed.SatSub(accumulated, &pos.ProceedsDebt)
	// never pay more than the pool actually collected.
	return fixed.Min(amount, p.Unclaimed()), nil
}

// Claim realizes pending proceeds for pos. A second call without an intervening
// fill returns zero.
func Claim(p *model.Pool, pos *model.Position) (*uint256.Int, error) {
	accumulated, err := fixed.MulDiv(&pos.Units, &p.AccProceedsPerUnit, fixed.Scale)
	if err != nil {
		return nil, err
	}
	amount := fixed.Min(fixed.SatSub(accumulated, &pos.ProceedsDebt), p.Unclaimed())
	claimed, err := fixed.Add(&p.ProceedsClaimed, amount)
	if err != nil {
		return nil, err
	}
	if accumulated.Gt(&pos.ProceedsDebt) {
		pos.ProceedsDebt = *accumulated
	}
	p.ProceedsClaimed = *claimed
	return amount, nil
}

// MaxWithdraw is floor(units * totalCapital / totalUnits) for pos.
func MaxWithdraw(p *model.Pool, pos *model.Position) (*uint256.Int, error) {
	if pos.Units.IsZero() || p.TotalUnits.IsZero() {
		return new(uint256.Int), nil
	}
	return fixed.MulDiv(&pos.Units, &p.TotalCapital, &p.TotalUnits)
}

// Withdraw removes capital for pos. A zero amountWanted withdraws the maximum.
// It returns the capital released and the units burned.
func Withdraw(p *model.Pool, pos *model.Position, amountWanted *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if pos.Units.IsZero() {
		return nil, nil, model.ErrNoUnits
	}
	if p.TotalCapital.IsZero() {
		return nil, nil, model.ErrDepletedPool
	}
	max, err := MaxWithdraw(p, pos)
	if err != nil {
		return nil, nil, err
	}
	amountOut := max
	if !amountWanted.IsZero() {
		if amountWanted.Gt(max) {
			return nil, nil, fmt.Errorf("withdraw %s of %s: %w", amountWanted.Dec(), max.Dec(), model.ErrExceedsPosition)
		}
		amountOut = amountWanted.Clone()
	}
	if amountOut.IsZero() {
		return nil, nil, fmt.Errorf("position worth less than one unit of capital: %w", model.ErrZeroAmount)
	}

	burn, err := fixed.MulDivUp(amountOut, &p.TotalUnits, &p.TotalCapital)
	if err != nil {
		return nil, nil, err
	}
	if !burn.Lt(&pos.Units) {
		// burning everything releases the full share; otherwise rounding would strand
		// capital with nobody left to claim it.
		burn = pos.Units.Clone()
		amountOut = max
	}

	remaining := new(uint256.Int).Sub(&pos.Units, burn)
	newDebt, err := debtAfterBurn(p, pos, burn, remaining)
	if err != nil {
		return nil, nil, err
	}

	p.TotalCapital.Sub(&p.TotalCapital, amountOut)
	p.TotalUnits.Sub(&p.TotalUnits, burn)
	pos.Units = *remaining
	pos.ProceedsDebt = *newDebt
	return amountOut, burn, nil
}

// debtAfterBurn drops the share of debt tied to the burned units while keeping
// the holder's pending proceeds from growing.
func debtAfterBurn(p *model.Pool, pos *model.Position, burn, remaining *uint256.Int) (*uint256.Int, error) {
	if remaining.IsZero() {
		return new(uint256.Int), nil
	}
	cut, err := fixed.MulDiv(&pos.ProceedsDebt, burn, &pos.Units)
	if err != nil {
		return nil, err
	}
	debt := new(uint256.Int).Sub(&pos.ProceedsDebt, cut)

	before, err := fixed.MulDiv(&pos.Units, &p.AccProceedsPerUnit, fixed.Scale)
	if err != nil {
		return nil, err
	}
	after, err := fixed.MulDiv(remaining, &p.AccProceedsPerUnit, fixed.Scale)
	if err != nil {
		return nil, err
	}
	pending := fixed.SatSub(before, &pos.ProceedsDebt)
	if floor := fixed.SatSub(after, pending); floor.Gt(debt) {
		debt = floor
	}
	return debt, nil
}

// ExitDepleted claims pending proceeds and burns every unit pos holds. Valid only
// once the pool has no capital left.
func ExitDepleted(p *model.Pool, pos *model.Position) (*uint256.Int, *uint256.Int, error) {
	if !p.TotalCapital.IsZero() {
		return nil, nil, model.ErrNotDepleted
	}
	if pos.Units.IsZero() {
		return nil, nil, model.ErrNoUnits
	}
	if pos.Units.Gt(&p.TotalUnits) {
		return nil, nil, fmt.Errorf("position units exceed pool units: %w", model.ErrOverflow)
	}
	proceeds, err := Claim(p, pos)
	if err != nil {
		return nil, nil, err
	}
	burned := pos.Units.Clone()
	p.TotalUnits.Sub(&p.TotalUnits, burned)
	pos.Units.Clear()
	pos.ProceedsDebt.Clear()
	return proceeds, burned, nil
}
