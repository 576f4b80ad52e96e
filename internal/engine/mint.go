package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pmrouter/internal/model"
)

// MintResult reports a MintAndPool call.
type MintResult struct {
	Kept  *uint256.Int
	Units *uint256.Int
}

// MintAndPool splits collateralIn into YES and NO, sends the keepYes side to `to`
// and offers the other side as ask liquidity at price for the caller.
func (b *Batch) MintAndPool(market common.Hash, keepYes bool, price uint16, collateralIn *uint256.Int, to common.Address) (MintResult, error) {
	if err := validPoolArgs(price, collateralIn); err != nil {
		return MintResult{}, err
	}
	if to == (common.Address{}) {
		return MintResult{}, model.ErrZeroRecipient
	}
	info, err := b.market(market, true)
	if err != nil {
		return MintResult{}, err
	}
	if err := b.pullCollateral(info.Collateral, collateralIn); err != nil {
		return MintResult{}, err
	}
	if err := b.e.venues.Vault.Split(b.ctx, market, b.e.cfg.Self, collateralIn, b.e.cfg.Self); err != nil {
		return MintResult{}, fmt.Errorf("split: %w", wrapTransfer(err))
	}
	if err := b.sendShares(model.TokenID(market, keepYes), to, collateralIn); err != nil {
		return MintResult{}, err
	}

	key := model.PoolKey{Market: market, Yes: !keepYes, Kind: model.Ask, Price: price}
	units, err := b.e.depositPool(key, b.caller, collateralIn)
	if err != nil {
		return MintResult{}, fmt.Errorf("pool %s: %w", key, err)
	}

	b.emit(withUnits(withAmounts(poolEvent(model.EventDeposit, key), collateralIn, nil), units))
	ev := poolEvent(model.EventMintAndPool, key)
	ev.Recipient = to
	ev.Shares = collateralIn.Dec()
	ev.Collateral = collateralIn.Dec()
	ev.Units = units.Dec()
	b.emit(ev)
	return MintResult{Kept: collateralIn.Clone(), Units: units}, nil
}

// MintAndPool runs Batch.MintAndPool as its own batch.
func (e *Engine) MintAndPool(ctx context.Context, caller common.Address, market common.Hash, keepYes bool, price uint16, collateralIn *uint256.Int, to common.Address, nativeValue *uint256.Int) (res MintResult, err error) {
	err = e.Multicall(ctx, caller, nativeValue, func(b *Batch) (err error) {
		res, err = b.MintAndPool(market, keepYes, price, collateralIn, to)
		return err
	})
	return res, err
}
