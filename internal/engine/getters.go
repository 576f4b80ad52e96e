package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pmrouter/internal/ledger"
	"pmrouter/internal/model"
	"pmrouter/internal/pricebook"
)

// PoolInfo is a read-only view of one pool.
type PoolInfo struct {
	Key                model.PoolKey
	TotalCapital       *uint256.Int
	TotalUnits         *uint256.Int
	AccProceedsPerUnit *uint256.Int
	ProceedsCollected  *uint256.Int
	State              model.PoolState
}

// Level is the capital resting at one price.
type Level struct {
	Price   uint16
	Capital *uint256.Int
}

// Orderbook lists a side's ask levels (ascending) and bid levels (descending).
type Orderbook struct {
	Asks []Level
	Bids []Level
}

// UserPosition is a holder's stake in one pool.
type UserPosition struct {
	Units        *uint256.Int
	Pending      *uint256.Int
	Withdrawable *uint256.Int
}

// PoolInfo returns the state of the pool at key; unknown pools read as closed.
func (e *Engine) PoolInfo(key model.PoolKey) PoolInfo {
	info := PoolInfo{
		Key:                key,
		TotalCapital:       new(uint256.Int),
		TotalUnits:         new(uint256.Int),
		AccProceedsPerUnit: new(uint256.Int),
		ProceedsCollected:  new(uint256.Int),
		State:              model.PoolClosed,
	}
	if p, ok := e.pools[key]; ok {
		info.TotalCapital = p.TotalCapital.Clone()
		info.TotalUnits = p.TotalUnits.Clone()
		info.AccProceedsPerUnit = p.AccProceedsPerUnit.Clone()
		info.ProceedsCollected = p.ProceedsCollected.Clone()
		info.State = p.State()
	}
	return info
}

// GetPoolInfo returns the ask pool at price.
func (e *Engine) GetPoolInfo(market common.Hash, yes bool, price uint16) PoolInfo {
	return e.PoolInfo(model.PoolKey{Market: market, Yes: yes, Kind: model.Ask, Price: price})
}

// GetBidPoolInfo returns the bid pool at price.
func (e *Engine) GetBidPoolInfo(market common.Hash, yes bool, price uint16) PoolInfo {
	return e.PoolInfo(model.PoolKey{Market: market, Yes: yes, Kind: model.Bid, Price: price})
}

// GetBestAsk returns the lowest ask price holding capital and its capital.
func (e *Engine) GetBestAsk(market common.Hash, yes bool) (uint16, *uint256.Int, bool) {
	book := model.BookKey{Market: market, Yes: yes, Kind: model.Ask}
	return e.best(book, e.index.Lowest(book))
}

// GetBestBid returns the highest bid price holding capital and its capital.
func (e *Engine) GetBestBid(market common.Hash, yes bool) (uint16, *uint256.Int, bool) {
	book := model.BookKey{Market: market, Yes: yes, Kind: model.Bid}
	return e.best(book, e.index.Highest(book))
}

func (e *Engine) best(book model.BookKey, price uint16) (uint16, *uint256.Int, bool) {
	if price == pricebook.None {
		return 0, new(uint256.Int), false
	}
	return price, e.PoolInfo(book.At(price)).TotalCapital, true
}

// GetActiveLevels returns up to max levels best-first (max <= 0: all of them).
func (e *Engine) GetActiveLevels(market common.Hash, yes bool, kind model.PoolKind, max int) []Level {
	book := model.BookKey{Market: market, Yes: yes, Kind: kind}
	prices := e.index.Levels(book, kind == model.Ask, max)
	levels := make([]Level, 0, len(prices))
	for _, price := range prices {
		levels = append(levels, Level{Price: price, Capital: e.PoolInfo(book.At(price)).TotalCapital})
	}
	return levels
}

// GetOrderbook returns depth levels on each side of one outcome's book.
func (e *Engine) GetOrderbook(market common.Hash, yes bool, depth int) Orderbook {
	return Orderbook{
		Asks: e.GetActiveLevels(market, yes, model.Ask, depth),
		Bids: e.GetActiveLevels(market, yes, model.Bid, depth),
	}
}

// GetUserPosition returns owner's units, claimable proceeds and withdrawable capital.
func (e *Engine) GetUserPosition(key model.PoolKey, owner common.Address) UserPosition {
	out := UserPosition{Units: new(uint256.Int), Pending: new(uint256.Int), Withdrawable: new(uint256.Int)}
	p, ok := e.pools[key]
	pos, held := e.positions[posKey{key, owner}]
	if !ok || !held {
		return out
	}
	out.Units = pos.Units.Clone()
	if pending, err := ledger.Pending(p, pos); err == nil {
		out.Pending = pending
	}
	if max, err := ledger.MaxWithdraw(p, pos); err == nil {
		out.Withdrawable = max
	}
	return out
}

// Pools returns the keys of every open pool.
func (e *Engine) Pools() []model.PoolKey {
	out := make([]model.PoolKey, 0, len(e.pools))
	for k := range e.pools {
		out = append(out, k)
	}
	return out
}

// MarketFees reports the external AMM fee and the price impact ceiling the bootstrap
// leg trades under. ok is false when the engine has no fee oracle.
func (e *Engine) MarketFees(ctx context.Context, market common.Hash) (feeBps, maxImpactBps uint64, ok bool, err error) {
	if e.venues.Fees == nil {
		return 0, 0, false, nil
	}
	if feeBps, err = e.venues.Fees.CurrentFeeBps(ctx, market); err != nil {
		return 0, 0, false, fmt.Errorf("current fee: %w", err)
	}
	if maxImpactBps, err = e.venues.Fees.MaxPriceImpactBps(ctx, market); err != nil {
		return 0, 0, false, fmt.Errorf("max price impact: %w", err)
	}
	return feeBps, maxImpactBps, true, nil
}
