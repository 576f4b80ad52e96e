package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pmrouter/internal/fixed"
	"pmrouter/internal/journal"
	"pmrouter/internal/ledger"
	"pmrouter/internal/model"
)

// touchPool returns the pool for key, creating it if needed, with its current
// value recorded in the journal so the caller may mutate it in place.
func (e *Engine) touchPool(key model.PoolKey) *model.Pool {
	p, ok := e.pools[key]
	if !ok {
		p = new(model.Pool)
		journal.Put(e.j, e.pools, key, p)
	}
	journal.Touch(e.j, p)
	return p
}

func (e *Engine) touchPosition(key model.PoolKey, owner common.Address) *model.Position {
	k := posKey{pool: key, owner: owner}
	pos, ok := e.positions[k]
	if !ok {
		pos = new(model.Position)
		journal.Put(e.j, e.positions, k, pos)
	}
	journal.Touch(e.j, pos)
	return pos
}

// settle keeps the index bit in lock-step with the pool's capital and drops
// closed pools and empty positions.
func (e *Engine) settle(key model.PoolKey, owner common.Address) {
	p := e.pools[key]
	live := p != nil && !p.TotalCapital.IsZero()
	book := key.Book()
	if had := e.index.Has(book, key.Price); had != live {
		e.setLevel(book, key.Price, live)
	}
	if p != nil && p.State() == model.PoolClosed {
		journal.Delete(e.j, e.pools, key)
	}
	k := posKey{pool: key, owner: owner}
	if pos, ok := e.positions[k]; ok && pos.IsZero() {
		journal.Delete(e.j, e.positions, k)
	}
}

func (e *Engine) setLevel(book model.BookKey, price uint16, on bool) {
	if on {
		e.index.Set(book, price)
		e.j.Append(func() { e.index.Clear(book, price) })
		return
	}
	e.index.Clear(book, price)
	e.j.Append(func() { e.index.Set(book, price) })
}

func (e *Engine) depositPool(key model.PoolKey, owner common.Address, amount *uint256.Int) (*uint256.Int, error) {
	p := e.touchPool(key)
	pos := e.touchPosition(key, owner)
	units, err := ledger.Deposit(p, pos, amount)
	e.settle(key, owner)
	if err != nil {
		return nil, err
	}
	return units, nil
}

func (e *Engine) fillPool(key model.PoolKey, capitalOut, proceedsIn *uint256.Int) error {
	p, ok := e.pools[key]
	if !ok {
		return fmt.Errorf("fill %s: %w", key, model.ErrInsufficientLiquidity)
	}
	journal.Touch(e.j, p)
	err := ledger.Fill(p, capitalOut, proceedsIn)
	e.settle(key, common.Address{})
	return err
}

func (e *Engine) claimPool(key model.PoolKey, owner common.Address) (*uint256.Int, error) {
	p, ok := e.pools[key]
	if !ok {
		return new(uint256.Int), nil
	}
	if _, ok := e.positions[posKey{key, owner}]; !ok {
		return new(uint256.Int), nil
	}
	p = e.touchPool(key)
	pos := e.touchPosition(key, owner)
	amount, err := ledger.Claim(p, pos)
	if err != nil {
		return nil, err
	}
	return amount, nil
}

// withdrawPool claims pending proceeds, then withdraws capital.
func (e *Engine) withdrawPool(key model.PoolKey, owner common.Address, amount *uint256.Int) (capital, proceeds, burned *uint256.Int, err error) {
	if _, ok := e.positions[posKey{key, owner}]; !ok {
		return nil, nil, nil, model.ErrNoUnits
	}
	proceeds, err = e.claimPool(key, owner)
	if err != nil {
		return nil, nil, nil, err
	}
	p := e.touchPool(key)
	pos := e.touchPosition(key, owner)
	capital, burned, err = ledger.Withdraw(p, pos, amount)
	e.settle(key, owner)
	if err != nil {
		return nil, nil, nil, err
	}
	return capital, proceeds, burned, nil
}

func (e *Engine) exitPool(key model.PoolKey, owner common.Address) (proceeds, burned *uint256.Int, err error) {
	if _, ok := e.positions[posKey{key, owner}]; !ok {
		return nil, nil, model.ErrNoUnits
	}
	p := e.touchPool(key)
	pos := e.touchPosition(key, owner)
	proceeds, burned, err = ledger.ExitDepleted(p, pos)
	e.settle(key, owner)
	if err != nil {
		return nil, nil, err
	}
	return proceeds, burned, nil
}

func validPoolArgs(price uint16, amount *uint256.Int) error {
	if !fixed.ValidPrice(price) {
		return fmt.Errorf("price %d: %w", price, model.ErrPriceOutOfRange)
	}
	if amount == nil || amount.IsZero() {
		return model.ErrZeroAmount
	}
	return nil
}
