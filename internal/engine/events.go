package engine

import (
	"github.com/holiman/uint256"

	"pmrouter/internal/model"
)

func poolEvent(t model.EventType, key model.PoolKey) model.Event {
	return model.Event{
		Type:   t,
		PoolID: key.ID(),
		Market: key.Market,
		Yes:    key.Yes,
		Kind:   key.Kind,
		Price:  key.Price,
	}
}

// withAmounts fills Shares/Collateral from capital and proceeds according to the
// pool kind. Nil amounts are left empty.
func withAmounts(ev model.Event, capital, proceeds *uint256.Int) model.Event {
	shares, collateral := capital, proceeds
	if ev.Kind == model.Bid {
		shares, collateral = proceeds, capital
	}
	if shares != nil {
		ev.Shares = shares.Dec()
	}
	if collateral != nil {
		ev.Collateral = collateral.Dec()
	}
	return ev
}

func withUnits(ev model.Event, units *uint256.Int) model.Event {
	if units != nil {
		ev.Units = units.Dec()
	}
	return ev
}
