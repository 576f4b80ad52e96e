package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pmrouter/internal/fixed"
	"pmrouter/internal/model"
)

// WithdrawResult reports a withdrawal: capital returned, proceeds claimed on the
// way out and units burned.
type WithdrawResult struct {
	Capital  *uint256.Int
	Proceeds *uint256.Int
	Burned   *uint256.Int
}

// pullCapital moves pool capital from the caller into custody.
func (b *Batch) pullCapital(key model.PoolKey, collateral common.Address, amount *uint256.Int) error {
	if key.Kind == model.Ask {
		return b.pullShares(model.TokenID(key.Market, key.Yes), amount)
	}
	return b.pullCollateral(collateral, amount)
}

func (b *Batch) payCapital(key model.PoolKey, collateral, to common.Address, amount *uint256.Int) error {
	if key.Kind == model.Ask {
		return b.sendShares(model.TokenID(key.Market, key.Yes), to, amount)
	}
	return b.sendCollateral(collateral, to, amount)
}

func (b *Batch) payProceeds(key model.PoolKey, collateral, to common.Address, amount *uint256.Int) error {
	if key.Kind == model.Ask {
		return b.sendCollateral(collateral, to, amount)
	}
	return b.sendShares(model.TokenID(key.Market, key.Yes), to, amount)
}

// Deposit posts capital into the pool at key for the caller: shares for an ask
// pool, collateral for a bid pool. It returns the units minted.
func (b *Batch) Deposit(key model.PoolKey, amount *uint256.Int) (*uint256.Int, error) {
	if err := validPoolArgs(key.Price, amount); err != nil {
		return nil, err
	}
	info, err := b.market(key.Market, true)
	if err != nil {
		return nil, err
	}
	if err := b.pullCapital(key, info.Collateral, amount); err != nil {
		return nil, err
	}
	units, err := b.e.depositPool(key, b.caller, amount)
	if err != nil {
		return nil, fmt.Errorf("deposit %s: %w", key, err)
	}
	b.emit(withUnits(withAmounts(poolEvent(model.EventDeposit, key), amount, nil), units))
	return units, nil
}

// Claim pays the caller's pending proceeds at key to the caller.
func (b *Batch) Claim(key model.PoolKey) (*uint256.Int, error) {
	if !fixed.ValidPrice(key.Price) {
		return nil, model.ErrPriceOutOfRange
	}
	info, err := b.market(key.Market, false)
	if err != nil {
		return nil, err
	}
	amount, err := b.e.claimPool(key, b.caller)
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", key, err)
	}
	if amount.IsZero() {
		return amount, nil
	}
	if err := b.payProceeds(key, info.Collateral, b.caller, amount); err != nil {
		return nil, err
	}
	ev := withAmounts(poolEvent(model.EventClaim, key), nil, amount)
	ev.Recipient = b.caller
	b.emit(ev)
	return amount, nil
}

// Withdraw returns up to amount capital (zero means all of it) to `to`, paying
// pending proceeds first.
func (b *Batch) Withdraw(key model.PoolKey, amount *uint256.Int, to common.Address) (WithdrawResult, error) {
	if !fixed.ValidPrice(key.Price) {
		return WithdrawResult{}, model.ErrPriceOutOfRange
	}
	if to == (common.Address{}) {
		return WithdrawResult{}, model.ErrZeroRecipient
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	info, err := b.market(key.Market, false)
	if err != nil {
		return WithdrawResult{}, err
	}
	capital, proceeds, burned, err := b.e.withdrawPool(key, b.caller, amount)
	if err != nil {
		return WithdrawResult{}, fmt.Errorf("withdraw %s: %w", key, err)
	}
	if !proceeds.IsZero() {
		if err := b.payProceeds(key, info.Collateral, to, proceeds); err != nil {
			return WithdrawResult{}, err
		}
		ev := withAmounts(poolEvent(model.EventClaim, key), nil, proceeds)
		ev.Recipient = to
		b.emit(ev)
	}
	if err := b.payCapital(key, info.Collateral, to, capital); err != nil {
		return WithdrawResult{}, err
	}
	ev := withUnits(withAmounts(poolEvent(model.EventWithdraw, key), capital, nil), burned)
	ev.Recipient = to
	b.emit(ev)
	return WithdrawResult{Capital: capital, Proceeds: proceeds, Burned: burned}, nil
}

// ExitDepleted burns the caller's units in a pool with no capital left and pays
// the pending proceeds to `to`.
func (b *Batch) ExitDepleted(key model.PoolKey, to common.Address) (*uint256.Int, error) {
	if !fixed.ValidPrice(key.Price) {
		return nil, model.ErrPriceOutOfRange
	}
	if to == (common.Address{}) {
		return nil, model.ErrZeroRecipient
	}
	info, err := b.market(key.Market, false)
	if err != nil {
		return nil, err
	}
	proceeds, burned, err := b.e.exitPool(key, b.caller)
	if err != nil {
		return nil, fmt.Errorf("exit %s: %w", key, err)
	}
	if err := b.payProceeds(key, info.Collateral, to, proceeds); err != nil {
		return nil, err
	}
	ev := withUnits(withAmounts(poolEvent(model.EventExit, key), nil, proceeds), burned)
	ev.Recipient = to
	b.emit(ev)
	return proceeds, nil
}

// DepositAsk offers shares of the given side for sale at price.
func (e *Engine) DepositAsk(ctx context.Context, caller common.Address, market common.Hash, yes bool, price uint16, shares *uint256.Int) (units *uint256.Int, err error) {
	key := model.PoolKey{Market: market, Yes: yes, Kind: model.Ask, Price: price}
	err = e.Multicall(ctx, caller, nil, func(b *Batch) (err error) {
		units, err = b.Deposit(key, shares)
		return err
	})
	return units, err
}

// DepositBid offers collateral to buy shares of the given side at price. Native
// collateral is paid with nativeValue.
func (e *Engine) DepositBid(ctx context.Context, caller common.Address, market common.Hash, yes bool, price uint16, collateral, nativeValue *uint256.Int) (units *uint256.Int, err error) {
	key := model.PoolKey{Market: market, Yes: yes, Kind: model.Bid, Price: price}
	err = e.Multicall(ctx, caller, nativeValue, func(b *Batch) (err error) {
		units, err = b.Deposit(key, collateral)
		return err
	})
	return units, err
}

// ClaimAsk pays the caller's collateral proceeds from an ask pool.
func (e *Engine) ClaimAsk(ctx context.Context, caller common.Address, market common.Hash, yes bool, price uint16) (*uint256.Int, error) {
	return e.claim(ctx, caller, model.PoolKey{Market: market, Yes: yes, Kind: model.Ask, Price: price})
}

// ClaimBid pays the caller's share proceeds from a bid pool.
func (e *Engine) ClaimBid(ctx context.Context, caller common.Address, market common.Hash, yes bool, price uint16) (*uint256.Int, error) {
	return e.claim(ctx, caller, model.PoolKey{Market: market, Yes: yes, Kind: model.Bid, Price: price})
}

func (e *Engine) claim(ctx context.Context, caller common.Address, key model.PoolKey) (amount *uint256.Int, err error) {
	err = e.Multicall(ctx, caller, nil, func(b *Batch) (err error) {
		amount, err = b.Claim(key)
		return err
	})
	return amount, err
}

// WithdrawAsk withdraws unsold shares (zero = all) to `to`.
func (e *Engine) WithdrawAsk(ctx context.Context, caller common.Address, market common.Hash, yes bool, price uint16, shares *uint256.Int, to common.Address) (WithdrawResult, error) {
	return e.withdraw(ctx, caller, model.PoolKey{Market: market, Yes: yes, Kind: model.Ask, Price: price}, shares, to)
}

// WithdrawBid withdraws unspent collateral (zero = all) to `to`.
func (e *Engine) WithdrawBid(ctx context.Context, caller common.Address, market common.Hash, yes bool, price uint16, collateral *uint256.Int, to common.Address) (WithdrawResult, error) {
	return e.withdraw(ctx, caller, model.PoolKey{Market: market, Yes: yes, Kind: model.Bid, Price: price}, collateral, to)
}

func (e *Engine) withdraw(ctx context.Context, caller common.Address, key model.PoolKey, amount *uint256.Int, to common.Address) (res WithdrawResult, err error) {
	err = e.Multicall(ctx, caller, nil, func(b *Batch) (err error) {
		res, err = b.Withdraw(key, amount, to)
		return err
	})
	return res, err
}

// ExitDepletedAsk leaves a fully sold ask pool.
func (e *Engine) ExitDepletedAsk(ctx context.Context, caller common.Address, market common.Hash, yes bool, price uint16, to common.Address) (*uint256.Int, error) {
	return e.exit(ctx, caller, model.PoolKey{Market: market, Yes: yes, Kind: model.Ask, Price: price}, to)
}

// ExitDepletedBid leaves a fully spent bid pool.
func (e *Engine) ExitDepletedBid(ctx context.Context, caller common.Address, market common.Hash, yes bool, price uint16, to common.Address) (*uint256.Int, error) {
	return e.exit(ctx, caller, model.PoolKey{Market: market, Yes: yes, Kind: model.Bid, Price: price}, to)
}

func (e *Engine) exit(ctx context.Context, caller common.Address, key model.PoolKey, to common.Address) (proceeds *uint256.Int, err error) {
	err = e.Multicall(ctx, caller, nil, func(b *Batch) (err error) {
		proceeds, err = b.ExitDepleted(key, to)
		return err
	})
	return proceeds, err
}
