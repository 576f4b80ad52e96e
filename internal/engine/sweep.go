package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pmrouter/internal/fixed"
	"pmrouter/internal/model"
	"pmrouter/internal/pricebook"
	"pmrouter/internal/venue"
)

// BuyParams describes a buy of one outcome side with collateral.
type BuyParams struct {
	Market       common.Hash
	Yes          bool
	CollateralIn *uint256.Int
	MinSharesOut *uint256.Int
	// PoolPrice fills the ask pool at exactly this price first; 0 skips it.
	PoolPrice uint16
	// MaxPrice sweeps ask levels from the lowest price up to this one; 0 skips the sweep.
	MaxPrice uint16
	// UseBootstrap routes any collateral left after the pools to the bootstrap router.
	UseBootstrap bool
	Recipient    common.Address
	Deadline     time.Time
}

// SellParams describes a sale of one outcome side for collateral.
type SellParams struct {
	Market           common.Hash
	Yes              bool
	SharesIn         *uint256.Int
	MinCollateralOut *uint256.Int
	// PoolPrice fills the bid pool at exactly this price first; 0 skips it.
	PoolPrice uint16
	// MinPrice sweeps bid levels from the highest price down to this one; 0 skips the sweep.
	MinPrice     uint16
	UseBootstrap bool
	Recipient    common.Address
	Deadline     time.Time
}

// LevelFill is the part of a trade filled at one price level.
type LevelFill struct {
	Price      uint16
	Shares     *uint256.Int
	Collateral *uint256.Int
}

// TradeResult reports a buy or sell. AmountOut is shares for buys and collateral
// for sells; Unspent is input handed back to the caller.
type TradeResult struct {
	AmountOut   *uint256.Int
	PoolOut     *uint256.Int
	ExternalOut *uint256.Int
	Unspent     *uint256.Int
	Fills       []LevelFill
	Levels      int
	Source      model.Source
}

func zeroResult() TradeResult {
	return TradeResult{
		AmountOut:   new(uint256.Int),
		PoolOut:     new(uint256.Int),
		ExternalOut: new(uint256.Int),
		Unspent:     new(uint256.Int),
	}
}

type sweepPlan struct {
	fills     []LevelFill
	poolOut   *uint256.Int
	remaining *uint256.Int
}

func checkTradeArgs(amount *uint256.Int, recipient common.Address, poolPrice, limit uint16) error {
	if amount == nil || amount.IsZero() {
		return model.ErrZeroAmount
	}
	if recipient == (common.Address{}) {
		return model.ErrZeroRecipient
	}
	if poolPrice != 0 && !fixed.ValidPrice(poolPrice) {
		return fmt.Errorf("pool price %d: %w", poolPrice, model.ErrPriceOutOfRange)
	}
	if limit != 0 && !fixed.ValidPrice(limit) {
		return fmt.Errorf("limit price %d: %w", limit, model.ErrPriceOutOfRange)
	}
	return nil
}

// sweep visits the exact level first, then the rest of the book best-first
// within the limit, calling take until it reports the budget is exhausted.
func (e *Engine) sweep(book model.BookKey, exact, limit uint16, ascending bool, take func(price uint16, p *model.Pool) (bool, error)) error {
	visited := 0
	visit := func(price uint16) (bool, error) {
		p, ok := e.pools[book.At(price)]
		if !ok || p.TotalCapital.IsZero() {
			return true, nil
		}
		visited++
		return take(price, p)
	}

	if exact != 0 {
		more, err := visit(exact)
		if err != nil || !more {
			return err
		}
	}
	if limit == 0 {
		return nil
	}
	scratch := e.index.Scratch(book)
	if exact != 0 {
		scratch.Clear(exact)
	}
	for visited < e.cfg.MaxSweepLevels {
		var price uint16
		if ascending {
			price = scratch.Lowest()
			if price == pricebook.None || price > limit {
				return nil
			}
		} else {
			price = scratch.Highest()
			if price == pricebook.None || price < limit {
				return nil
			}
		}
		scratch.Clear(price)
		more, err := visit(price)
		if err != nil || !more {
			return err
		}
	}
	return nil
}

// planBuy walks ask levels, spending collateral. It does not mutate state.
func (e *Engine) planBuy(p BuyParams) (sweepPlan, error) {
	plan := sweepPlan{poolOut: new(uint256.Int), remaining: p.CollateralIn.Clone()}
	book := model.BookKey{Market: p.Market, Yes: p.Yes, Kind: model.Ask}
	err := e.sweep(book, p.PoolPrice, p.MaxPrice, true, func(price uint16, pool *model.Pool) (bool, error) {
		affordable, err := fixed.CollateralToSharesDown(plan.remaining, price)
		if err != nil {
			return false, err
		}
		shares := fixed.Min(affordable, &pool.TotalCapital)
		if shares.IsZero() {
			return false, nil
		}
		cost, err := fixed.SharesToCollateralUp(shares, price)
		if err != nil {
			return false, err
		}
		plan.fills = append(plan.fills, LevelFill{Price: price, Shares: shares, Collateral: cost})
		plan.poolOut.Add(plan.poolOut, shares)
		plan.remaining.Sub(plan.remaining, cost)
		return !plan.remaining.IsZero(), nil
	})
	return plan, err
}

// planSell walks bid levels, spending shares. It does not mutate state.
func (e *Engine) planSell(p SellParams) (sweepPlan, error) {
	plan := sweepPlan{poolOut: new(uint256.Int), remaining: p.SharesIn.Clone()}
	book := model.BookKey{Market: p.Market, Yes: p.Yes, Kind: model.Bid}
	err := e.sweep(book, p.PoolPrice, p.MinPrice, false, func(price uint16, pool *model.Pool) (bool, error) {
		needed, err := fixed.CollateralToSharesUp(&pool.TotalCapital, price)
		if err != nil {
			return false, err
		}
		var shares, pay *uint256.Int
		if !plan.remaining.Lt(needed) {
			shares, pay = needed, pool.TotalCapital.Clone()
		} else {
			shares = plan.remaining.Clone()
			if pay, err = fixed.SharesToCollateralDown(shares, price); err != nil {
				return false, err
			}
		}
		if pay.IsZero() {
			return false, nil
		}
		plan.fills = append(plan.fills, LevelFill{Price: price, Shares: shares, Collateral: pay})
		plan.poolOut.Add(plan.poolOut, pay)
		plan.remaining.Sub(plan.remaining, shares)
		return !plan.remaining.IsZero(), nil
	})
	return plan, err
}

func finishResult(plan sweepPlan, external venue.TradeResult, routed bool) TradeResult {
	res := zeroResult()
	res.Fills = plan.fills
	res.Levels = len(plan.fills)
	res.PoolOut = plan.poolOut.Clone()
	if len(plan.fills) > 0 {
		res.Source = model.SourcePool
	}
	if routed {
		res.ExternalOut = external.AmountOut.Clone()
		res.Source = res.Source.Merge(external.Source)
	} else {
		res.Unspent = plan.remaining.Clone()
	}
	res.AmountOut = new(uint256.Int).Add(res.PoolOut, res.ExternalOut)
	return res
}

// Buy fills from ask pools, then routes the remainder to the bootstrap router.
func (b *Batch) Buy(p BuyParams) (TradeResult, error) {
	if err := checkTradeArgs(p.CollateralIn, p.Recipient, p.PoolPrice, p.MaxPrice); err != nil {
		return TradeResult{}, err
	}
	if err := b.checkDeadline(p.Deadline); err != nil {
		return TradeResult{}, err
	}
	info, err := b.market(p.Market, true)
	if err != nil {
		return TradeResult{}, err
	}
	if err := b.pullCollateral(info.Collateral, p.CollateralIn); err != nil {
		return TradeResult{}, err
	}

	plan, err := b.e.planBuy(p)
	if err != nil {
		return TradeResult{}, err
	}
	book := model.BookKey{Market: p.Market, Yes: p.Yes, Kind: model.Ask}
	for _, f := range plan.fills {
		key := book.At(f.Price)
		if err := b.e.fillPool(key, f.Shares, f.Collateral); err != nil {
			return TradeResult{}, fmt.Errorf("fill %s: %w", key, err)
		}
		ev := withAmounts(poolEvent(model.EventFill, key), f.Shares, f.Collateral)
		ev.Recipient = p.Recipient
		b.emit(ev)
	}
	token := model.TokenID(p.Market, p.Yes)
	if err := b.sendShares(token, p.Recipient, plan.poolOut); err != nil {
		return TradeResult{}, err
	}

	var external venue.TradeResult
	routed := p.UseBootstrap && b.e.venues.Bootstrap != nil && !plan.remaining.IsZero()
	if routed {
		external, err = b.e.venues.Bootstrap.Buy(b.ctx, venue.TradeRequest{
			Market:    p.Market,
			Yes:       p.Yes,
			AmountIn:  plan.remaining,
			MinOut:    fixed.SatSub(orZero(p.MinSharesOut), plan.poolOut),
			Payer:     b.e.cfg.Self,
			Recipient: p.Recipient,
			Deadline:  p.Deadline,
		})
		if err != nil {
			return TradeResult{}, fmt.Errorf("bootstrap buy: %w", err)
		}
		b.emitExternal(p.Market, p.Yes, p.Recipient, external.AmountOut, plan.remaining, external.Source)
	} else if err := b.returnCollateral(info.Collateral, plan.remaining); err != nil {
		return TradeResult{}, err
	}

	res := finishResult(plan, external, routed)
	if res.AmountOut.Lt(orZero(p.MinSharesOut)) {
		return TradeResult{}, fmt.Errorf("buy out %s < min %s: %w", res.AmountOut.Dec(), p.MinSharesOut.Dec(), model.ErrSlippage)
	}
	b.emitTrade(p.Market, p.Yes, model.Ask, p.Recipient, res.AmountOut, new(uint256.Int).Sub(p.CollateralIn, res.Unspent), res)
	return res, nil
}

// Sell fills into bid pools, then routes the remainder to the bootstrap router.
func (b *Batch) Sell(p SellParams) (TradeResult, error) {
	if err := checkTradeArgs(p.SharesIn, p.Recipient, p.PoolPrice, p.MinPrice); err != nil {
		return TradeResult{}, err
	}
	if err := b.checkDeadline(p.Deadline); err != nil {
		return TradeResult{}, err
	}
	info, err := b.market(p.Market, true)
	if err != nil {
		return TradeResult{}, err
	}
	token := model.TokenID(p.Market, p.Yes)
	if err := b.pullShares(token, p.SharesIn); err != nil {
		return TradeResult{}, err
	}

	plan, err := b.e.planSell(p)
	if err != nil {
		return TradeResult{}, err
	}
	book := model.BookKey{Market: p.Market, Yes: p.Yes, Kind: model.Bid}
	for _, f := range plan.fills {
		key := book.At(f.Price)
		if err := b.e.fillPool(key, f.Collateral, f.Shares); err != nil {
			return TradeResult{}, fmt.Errorf("fill %s: %w", key, err)
		}
		ev := withAmounts(poolEvent(model.EventFill, key), f.Collateral, f.Shares)
		ev.Recipient = p.Recipient
		b.emit(ev)
	}
	if err := b.sendCollateral(info.Collateral, p.Recipient, plan.poolOut); err != nil {
		return TradeResult{}, err
	}

	var external venue.TradeResult
	routed := p.UseBootstrap && b.e.venues.Bootstrap != nil && !plan.remaining.IsZero()
	if routed {
		external, err = b.e.venues.Bootstrap.Sell(b.ctx, venue.TradeRequest{
			Market:    p.Market,
			Yes:       p.Yes,
			AmountIn:  plan.remaining,
			MinOut:    fixed.SatSub(orZero(p.MinCollateralOut), plan.poolOut),
			Payer:     b.e.cfg.Self,
			Recipient: p.Recipient,
			Deadline:  p.Deadline,
		})
		if err != nil {
			return TradeResult{}, fmt.Errorf("bootstrap sell: %w", err)
		}
		b.emitExternal(p.Market, p.Yes, p.Recipient, plan.remaining, external.AmountOut, external.Source)
	} else if err := b.sendShares(token, b.caller, plan.remaining); err != nil {
		return TradeResult{}, err
	}

	res := finishResult(plan, external, routed)
	if res.AmountOut.Lt(orZero(p.MinCollateralOut)) {
		return TradeResult{}, fmt.Errorf("sell out %s < min %s: %w", res.AmountOut.Dec(), p.MinCollateralOut.Dec(), model.ErrSlippage)
	}
	b.emitTrade(p.Market, p.Yes, model.Bid, p.Recipient, new(uint256.Int).Sub(p.SharesIn, res.Unspent), res.AmountOut, res)
	return res, nil
}

func (b *Batch) emitExternal(market common.Hash, yes bool, recipient common.Address, shares, collateral *uint256.Int, src model.Source) {
	b.emit(model.Event{
		Type:       model.EventExternal,
		Market:     market,
		Yes:        yes,
		Recipient:  recipient,
		Shares:     shares.Dec(),
		Collateral: collateral.Dec(),
		Source:     src,
	})
}

// emitTrade records the trade summary; kind is the book the trade consumed.
func (b *Batch) emitTrade(market common.Hash, yes bool, kind model.PoolKind, recipient common.Address, shares, collateral *uint256.Int, res TradeResult) {
	b.emit(model.Event{
		Type:       model.EventTrade,
		Market:     market,
		Yes:        yes,
		Kind:       kind,
		Recipient:  recipient,
		Shares:     shares.Dec(),
		Collateral: collateral.Dec(),
		Source:     res.Source,
		Levels:     res.Levels,
	})
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// FillAskPool buys exactly shares from the ask pool at price, paying at most
// maxCollateral (zero means no cap).
func (b *Batch) FillAskPool(market common.Hash, yes bool, price uint16, shares, maxCollateral *uint256.Int, to common.Address, deadline time.Time) (*uint256.Int, error) {
	if err := checkTradeArgs(shares, to, price, 0); err != nil {
		return nil, err
	}
	if price == 0 {
		return nil, model.ErrPriceOutOfRange
	}
	if err := b.checkDeadline(deadline); err != nil {
		return nil, err
	}
	info, err := b.market(market, true)
	if err != nil {
		return nil, err
	}
	key := model.PoolKey{Market: market, Yes: yes, Kind: model.Ask, Price: price}
	cost, err := fixed.SharesToCollateralUp(shares, price)
	if err != nil {
		return nil, err
	}
	if mc := orZero(maxCollateral); !mc.IsZero() && cost.Gt(mc) {
		return nil, fmt.Errorf("fill cost %s > max %s: %w", cost.Dec(), mc.Dec(), model.ErrSlippage)
	}
	if err := b.pullCollateral(info.Collateral, cost); err != nil {
		return nil, err
	}
	if err := b.e.fillPool(key, shares, cost); err != nil {
		return nil, fmt.Errorf("fill %s: %w", key, err)
	}
	if err := b.sendShares(model.TokenID(market, yes), to, shares); err != nil {
		return nil, err
	}
	ev := withAmounts(poolEvent(model.EventFill, key), shares, cost)
	ev.Recipient = to
	b.emit(ev)
	return cost, nil
}

// FillBidPool sells exactly shares into the bid pool at price, receiving at least
// minCollateral.
func (b *Batch) FillBidPool(market common.Hash, yes bool, price uint16, shares, minCollateral *uint256.Int, to common.Address, deadline time.Time) (*uint256.Int, error) {
	if err := checkTradeArgs(shares, to, price, 0); err != nil {
		return nil, err
	}
	if price == 0 {
		return nil, model.ErrPriceOutOfRange
	}
	if err := b.checkDeadline(deadline); err != nil {
		return nil, err
	}
	info, err := b.market(market, true)
	if err != nil {
		return nil, err
	}
	key := model.PoolKey{Market: market, Yes: yes, Kind: model.Bid, Price: price}
	pay, err := fixed.SharesToCollateralDown(shares, price)
	if err != nil {
		return nil, err
	}
	if pay.IsZero() {
		return nil, fmt.Errorf("fill pays nothing: %w", model.ErrZeroAmount)
	}
	if pay.Lt(orZero(minCollateral)) {
		return nil, fmt.Errorf("fill pays %s < min %s: %w", pay.Dec(), minCollateral.Dec(), model.ErrSlippage)
	}
	if err := b.pullShares(model.TokenID(market, yes), shares); err != nil {
		return nil, err
	}
	if err := b.e.fillPool(key, pay, shares); err != nil {
		return nil, fmt.Errorf("fill %s: %w", key, err)
	}
	if err := b.sendCollateral(info.Collateral, to, pay); err != nil {
		return nil, err
	}
	ev := withAmounts(poolEvent(model.EventFill, key), pay, shares)
	ev.Recipient = to
	b.emit(ev)
	return pay, nil
}

// Buy runs a single buy as its own batch. Native collateral is paid with nativeValue.
func (e *Engine) Buy(ctx context.Context, caller common.Address, p BuyParams, nativeValue *uint256.Int) (res TradeResult, err error) {
	err = e.Multicall(ctx, caller, nativeValue, func(b *Batch) (err error) {
		res, err = b.Buy(p)
		return err
	})
	return res, err
}

// Sell runs a single sell as its own batch.
func (e *Engine) Sell(ctx context.Context, caller common.Address, p SellParams) (res TradeResult, err error) {
	err = e.Multicall(ctx, caller, nil, func(b *Batch) (err error) {
		res, err = b.Sell(p)
		return err
	})
	return res, err
}

// FillAskPool runs Batch.FillAskPool as its own batch.
func (e *Engine) FillAskPool(ctx context.Context, caller common.Address, market common.Hash, yes bool, price uint16, shares, maxCollateral *uint256.Int, to common.Address, deadline time.Time, nativeValue *uint256.Int) (cost *uint256.Int, err error) {
	err = e.Multicall(ctx, caller, nativeValue, func(b *Batch) (err error) {
		cost, err = b.FillAskPool(market, yes, price, shares, maxCollateral, to, deadline)
		return err
	})
	return cost, err
}

// FillBidPool runs Batch.FillBidPool as its own batch.
func (e *Engine) FillBidPool(ctx context.Context, caller common.Address, market common.Hash, yes bool, price uint16, shares, minCollateral *uint256.Int, to common.Address, deadline time.Time) (pay *uint256.Int, err error) {
	err = e.Multicall(ctx, caller, nil, func(b *Batch) (err error) {
		pay, err = b.FillBidPool(market, yes, price, shares, minCollateral, to, deadline)
		return err
	})
	return pay, err
}
