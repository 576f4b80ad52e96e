package aggregate

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"pmrouter/internal/model"
)

// Accumulator sums the fills of one pool inside one window.
type Accumulator struct {
	PoolID      common.Hash
	Key         model.PoolKey
	WindowStart uint64
	WindowEnd   uint64
	FillCount   uint64
	Shares      *big.Int
	Collateral  *big.Int
	LastSeq     uint64

	takers map[common.Address]struct{}
}

func NewAccumulator(ev model.Event, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		PoolID:      ev.PoolID,
		Key:         ev.Key(),
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Shares:      new(big.Int),
		Collateral:  new(big.Int),
		takers:      make(map[common.Address]struct{}),
	}
}

// AddFill folds a fill into the window. Amounts are validated before anything changes.
func (a *Accumulator) AddFill(ev model.Event) error {
	if ev.PoolID != a.PoolID {
		return fmt.Errorf("fill for pool %s added to %s", ev.PoolID.Hex(), a.PoolID.Hex())
	}
	shares, err := parseVolume(ev.Shares)
	if err != nil {
		return fmt.Errorf("shares: %w", err)
	}
	collateral, err := parseVolume(ev.Collateral)
	if err != nil {
		return fmt.Errorf("collateral: %w", err)
	}

	a.Shares.Add(a.Shares, shares)
	a.Collateral.Add(a.Collateral, collateral)
	a.takers[ev.Actor] = struct{}{}
	a.LastSeq = max(a.LastSeq, ev.Seq)
	a.FillCount++
	return nil
}

// Metrics renders the window for storage.
func (a *Accumulator) Metrics(windowSeconds uint64) model.PoolWindowMetrics {
	return model.PoolWindowMetrics{
		PoolID:           a.PoolID,
		Market:           a.Key.Market,
		Yes:              a.Key.Yes,
		Kind:             a.Key.Kind,
		Price:            a.Key.Price,
		WindowSizeSecs:   int64(windowSeconds),
		WindowStart:      time.Unix(int64(a.WindowStart), 0).UTC(),
		WindowEnd:        time.Unix(int64(a.WindowEnd), 0).UTC(),
		FillCount:        a.FillCount,
		UniqueTakers:     uint64(len(a.takers)),
		SharesVolume:     a.Shares.String(),
		CollateralVolume: a.Collateral.String(),
		VWAPBps:          computeVWAPBps(a.Collateral, a.Shares),
		LastSeq:          a.LastSeq,
	}
}

func parseVolume(value string) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(value, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return v, nil
}
