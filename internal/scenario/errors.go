package scenario

import (
	"errors"

	"pmrouter/internal/model"
)

var sentinels = map[string]error{
	"zero_amount":            model.ErrZeroAmount,
	"price_out_of_range":     model.ErrPriceOutOfRange,
	"zero_recipient":         model.ErrZeroRecipient,
	"invalid_argument":       model.ErrInvalidArgument,
	"market_closed":          model.ErrMarketClosed,
	"depleted_pool":          model.ErrDepletedPool,
	"dust_deposit":           model.ErrDustDeposit,
	"no_units":               model.ErrNoUnits,
	"not_depleted":           model.ErrNotDepleted,
	"nothing_to_claim":       model.ErrNothingToClaim,
	"same_pool":              model.ErrSamePool,
	"insufficient_liquidity": model.ErrInsufficientLiquidity,
	"slippage":               model.ErrSlippage,
	"exceeds_position":       model.ErrExceedsPosition,
	"deadline_expired":       model.ErrDeadlineExpired,
	"transfer":               model.ErrTransfer,
	"budget_exceeded":        model.ErrBudgetExceeded,
	"reentrancy":             model.ErrReentrancy,
	"overflow":               model.ErrOverflow,
}

// matches reports whether err satisfies an expectation: a sentinel name, an
// error kind, or "any".
func matches(expect string, err error) bool {
	if err == nil {
		return false
	}
	if expect == "any" {
		return true
	}
	if sentinel, ok := sentinels[expect]; ok {
		return errors.Is(err, sentinel)
	}
	return string(model.KindOf(err)) == expect
}
