package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pmrouter/internal/fixed"
	"pmrouter/internal/model"
)

// MoveResult reports a position move between two price levels of one book.
type MoveResult struct {
	Claimed  *uint256.Int
	Moved    *uint256.Int
	Burned   *uint256.Int
	NewUnits *uint256.Int
}

// Move relocates amount capital (zero = all) of the caller's position from one
// price level to another. Pending proceeds at the old level are paid out first;
// the capital itself never leaves custody.
func (b *Batch) Move(from model.PoolKey, toPrice uint16, amount *uint256.Int) (MoveResult, error) {
	if !fixed.ValidPrice(from.Price) || !fixed.ValidPrice(toPrice) {
		return MoveResult{}, model.ErrPriceOutOfRange
	}
	if from.Price == toPrice {
		return MoveResult{}, model.ErrSamePool
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	info, err := b.market(from.Market, true)
	if err != nil {
		return MoveResult{}, err
	}
	to := from.Book().At(toPrice)

	moved, claimed, burned, err := b.e.withdrawPool(from, b.caller, amount)
	if err != nil {
		return MoveResult{}, fmt.Errorf("move out of %s: %w", from, err)
	}
	if !claimed.IsZero() {
		if err := b.payProceeds(from, info.Collateral, b.caller, claimed); err != nil {
			return MoveResult{}, err
		}
		ev := withAmounts(poolEvent(model.EventClaim, from), nil, claimed)
		ev.Recipient = b.caller
		b.emit(ev)
	}
	units, err := b.e.depositPool(to, b.caller, moved)
	if err != nil {
		return MoveResult{}, fmt.Errorf("move into %s: %w", to, err)
	}

	ev := withUnits(withAmounts(poolEvent(model.EventMove, from), moved, nil), units)
	ev.ToPrice = toPrice
	b.emit(ev)
	return MoveResult{Claimed: claimed, Moved: moved, Burned: burned, NewUnits: units}, nil
}

// MoveAskPosition moves an ask position to a new price.
func (e *Engine) MoveAskPosition(ctx context.Context, caller common.Address, market common.Hash, yes bool, fromPrice, toPrice uint16, shares *uint256.Int) (MoveResult, error) {
	return e.move(ctx, caller, model.PoolKey{Market: market, Yes: yes, Kind: model.Ask, Price: fromPrice}, toPrice, shares)
}

// MoveBidPosition moves a bid position to a new price.
func (e *Engine) MoveBidPosition(ctx context.Context, caller common.Address, market common.Hash, yes bool, fromPrice, toPrice uint16, collateral *uint256.Int) (MoveResult, error) {
	return e.move(ctx, caller, model.PoolKey{Market: market, Yes: yes, Kind: model.Bid, Price: fromPrice}, toPrice, collateral)
}

func (e *Engine) move(ctx context.Context, caller common.Address, from model.PoolKey, toPrice uint16, amount *uint256.Int) (res MoveResult, err error) {
	err = e.Multicall(ctx, caller, nil, func(b *Batch) (err error) {
		res, err = b.Move(from, toPrice, amount)
		return err
	})
	return res, err
}
