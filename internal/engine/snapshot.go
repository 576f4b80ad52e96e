package engine

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"pmrouter/internal/model"
	"pmrouter/internal/pricebook"
)

// Snapshot exports every pool and position.
func (e *Engine) Snapshot() model.Snapshot {
	var s model.Snapshot
	for key, p := range e.pools {
		s.Pools = append(s.Pools, model.PoolRecord{
			Key:                key,
			TotalCapital:       p.TotalCapital.Dec(),
			TotalUnits:         p.TotalUnits.Dec(),
			AccProceedsPerUnit: p.AccProceedsPerUnit.Dec(),
			ProceedsCollected:  p.ProceedsCollected.Dec(),
			ProceedsClaimed:    p.ProceedsClaimed.Dec(),
		})
	}
	for k, pos := range e.positions {
		s.Positions = append(s.Positions, model.PositionRecord{
			Key:          k.pool,
			Owner:        k.owner,
			Units:        pos.Units.Dec(),
			ProceedsDebt: pos.ProceedsDebt.Dec(),
		})
	}
	sort.Slice(s.Pools, func(i, j int) bool { return s.Pools[i].Key.String() < s.Pools[j].Key.String() })
	sort.Slice(s.Positions, func(i, j int) bool {
		a, b := s.Positions[i], s.Positions[j]
		if a.Key != b.Key {
			return a.Key.String() < b.Key.String()
		}
		return a.Owner.Hex() < b.Owner.Hex()
	})
	return s
}

// Restore replaces all ledger state with s and rebuilds the price index. It must
// not be called while a batch is running.
func (e *Engine) Restore(s model.Snapshot) error {
	if e.locked {
		return model.ErrReentrancy
	}
	pools := make(map[model.PoolKey]*model.Pool, len(s.Pools))
	for _, rec := range s.Pools {
		var p model.Pool
		fields := []struct {
			dst *uint256.Int
			val string
		}{
			{&p.TotalCapital, rec.TotalCapital},
			{&p.TotalUnits, rec.TotalUnits},
			{&p.AccProceedsPerUnit, rec.AccProceedsPerUnit},
			{&p.ProceedsCollected, rec.ProceedsCollected},
			{&p.ProceedsClaimed, rec.ProceedsClaimed},
		}
		for _, f := range fields {
			if err := parseDec(f.dst, f.val); err != nil {
				return fmt.Errorf("pool %s: %w", rec.Key, err)
			}
		}
		pools[rec.Key] = &p
	}
	positions := make(map[posKey]*model.Position, len(s.Positions))
	for _, rec := range s.Positions {
		var pos model.Position
		if err := parseDec(&pos.Units, rec.Units); err != nil {
			return fmt.Errorf("position %s/%s units: %w", rec.Key, rec.Owner.Hex(), err)
		}
		if err := parseDec(&pos.ProceedsDebt, rec.ProceedsDebt); err != nil {
			return fmt.Errorf("position %s/%s debt: %w", rec.Key, rec.Owner.Hex(), err)
		}
		positions[posKey{rec.Key, rec.Owner}] = &pos
	}

	index := pricebook.New()
	for key, p := range pools {
		if !p.TotalCapital.IsZero() {
			index.Set(key.Book(), key.Price)
		}
	}
	e.pools, e.positions, e.index = pools, positions, index
	e.j.Commit()
	return nil
}

func parseDec(dst *uint256.Int, s string) error {
	if s == "" {
		dst.Clear()
		return nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return err
	}
	*dst = *v
	return nil
}
