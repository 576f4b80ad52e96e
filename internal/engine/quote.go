package engine

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"pmrouter/internal/fixed"
	"pmrouter/internal/model"
	"pmrouter/internal/venue"
)

// QuoteBuy previews Buy without changing state. Infeasible trades come back as a
// zero result instead of an error.
func (e *Engine) QuoteBuy(ctx context.Context, p BuyParams) TradeResult {
	if err := e.quotable(ctx, p.Market, p.CollateralIn, p.Recipient, p.PoolPrice, p.MaxPrice, p.Deadline); err != nil {
		e.logger.Debug("quote buy infeasible", zap.Error(err))
		return zeroResult()
	}
	plan, err := e.planBuy(p)
	if err != nil {
		e.logger.Debug("quote buy plan", zap.Error(err))
		return zeroResult()
	}
	var external venue.TradeResult
	routed := p.UseBootstrap && e.venues.Bootstrap != nil && !plan.remaining.IsZero()
	if routed {
		if external, err = e.venues.Bootstrap.QuoteBuy(ctx, p.Market, p.Yes, plan.remaining); err != nil {
			e.logger.Debug("quote buy bootstrap", zap.Error(err))
			return zeroResult()
		}
		if external.AmountOut.Lt(fixed.SatSub(orZero(p.MinSharesOut), plan.poolOut)) {
			return zeroResult()
		}
	}
	res := finishResult(plan, external, routed)
	if res.AmountOut.Lt(orZero(p.MinSharesOut)) {
		return zeroResult()
	}
	return res
}

// QuoteSell previews Sell without changing state.
func (e *Engine) QuoteSell(ctx context.Context, p SellParams) TradeResult {
	if err := e.quotable(ctx, p.Market, p.SharesIn, p.Recipient, p.PoolPrice, p.MinPrice, p.Deadline); err != nil {
		e.logger.Debug("quote sell infeasible", zap.Error(err))
		return zeroResult()
	}
	plan, err := e.planSell(p)
	if err != nil {
		e.logger.Debug("quote sell plan", zap.Error(err))
		return zeroResult()
	}
	var external venue.TradeResult
	routed := p.UseBootstrap && e.venues.Bootstrap != nil && !plan.remaining.IsZero()
	if routed {
		if external, err = e.venues.Bootstrap.QuoteSell(ctx, p.Market, p.Yes, plan.remaining); err != nil {
			e.logger.Debug("quote sell bootstrap", zap.Error(err))
			return zeroResult()
		}
		if external.AmountOut.Lt(fixed.SatSub(orZero(p.MinCollateralOut), plan.poolOut)) {
			return zeroResult()
		}
	}
	res := finishResult(plan, external, routed)
	if res.AmountOut.Lt(orZero(p.MinCollateralOut)) {
		return zeroResult()
	}
	return res
}

// quotable applies the entry checks a trade would fail on.
func (e *Engine) quotable(ctx context.Context, market common.Hash, amount *uint256.Int, recipient common.Address, poolPrice, limit uint16, deadline time.Time) error {
	if err := checkTradeArgs(amount, recipient, poolPrice, limit); err != nil {
		return err
	}
	if !deadline.IsZero() && e.now().After(deadline) {
		return model.ErrDeadlineExpired
	}
	info, err := e.venues.Vault.MarketInfo(ctx, market)
	if err != nil {
		return err
	}
	if !info.OpenAt(e.now()) {
		return model.ErrMarketClosed
	}
	return nil
}
