package model

import "github.com/holiman/uint256"

// Pool is the accounting state of a single price level. Capital is shares for ask
// pools and collateral for bid pools; proceeds are the other asset.
type Pool struct {
	TotalCapital       uint256.Int
	TotalUnits         uint256.Int
	AccProceedsPerUnit uint256.Int
	ProceedsCollected  uint256.Int
	ProceedsClaimed    uint256.Int
}

// Position is one holder's stake in a pool.
type Position struct {
	Units        uint256.Int
	ProceedsDebt uint256.Int
}

// PoolState is the lifecycle stage of a pool.
type PoolState string

const (
	PoolClosed   PoolState = "closed"
	PoolActive   PoolState = "active"
	PoolDepleted PoolState = "depleted"
)

// State derives the lifecycle stage from capital and units.
func (p *Pool) State() PoolState {
	switch {
	case !p.TotalCapital.IsZero():
		return PoolActive
	case !p.TotalUnits.IsZero():
		return PoolDepleted
	default:
		return PoolClosed
	}
}

// Unclaimed is the proceeds collected but not yet paid out to holders.
func (p *Pool) Unclaimed() *uint256.Int {
	if p.ProceedsCollected.Lt(&p.ProceedsClaimed) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(&p.ProceedsCollected, &p.ProceedsClaimed)
}

// IsZero reports whether the position holds nothing.
func (p *Position) IsZero() bool {
	return p.Units.IsZero() && p.ProceedsDebt.IsZero()
}
