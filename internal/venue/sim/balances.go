// Package sim provides in-memory collaborators for the engine: token balances, a
// collateral vault, the bootstrap OTC/AMM router and its fee curve. All state is
// written through a shared journal so engine rollbacks undo it too.
package sim

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pmrouter/internal/journal"
	"pmrouter/internal/model"
)

type assetKey struct {
	asset common.Address
	owner common.Address
}

type shareKey struct {
	token common.Hash
	owner common.Address
}

// Balances tracks collateral per (asset, owner) and outcome shares per (token, owner).
type Balances struct {
	j          *journal.Journal
	collateral map[assetKey]uint256.Int
	shares     map[shareKey]uint256.Int
}

func NewBalances(j *journal.Journal) *Balances {
	return &Balances{
		j:          j,
		collateral: make(map[assetKey]uint256.Int),
		shares:     make(map[shareKey]uint256.Int),
	}
}

// Collateral returns owner's balance of asset.
func (b *Balances) Collateral(asset, owner common.Address) *uint256.Int {
	v := b.collateral[assetKey{asset, owner}]
	return &v
}

// Shares returns owner's balance of token.
func (b *Balances) Shares(token common.Hash, owner common.Address) *uint256.Int {
	v := b.shares[shareKey{token, owner}]
	return &v
}

// MintCollateral credits owner with amount of asset out of thin air.
func (b *Balances) MintCollateral(asset, owner common.Address, amount *uint256.Int) error {
	k := assetKey{asset, owner}
	cur := b.collateral[k]
	next, overflow := new(uint256.Int).AddOverflow(&cur, amount)
	if overflow {
		return model.ErrOverflow
	}
	journal.Put(b.j, b.collateral, k, *next)
	return nil
}

// Transfer implements venue.Collateral.
func (b *Balances) Transfer(_ context.Context, asset, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() || from == to {
		return nil
	}
	fk, tk := assetKey{asset, from}, assetKey{asset, to}
	fromBal, toBal := b.collateral[fk], b.collateral[tk]
	if fromBal.Lt(amount) {
		return fmt.Errorf("collateral %s from %s: balance %s < %s: %w",
			asset.Hex(), from.Hex(), fromBal.Dec(), amount.Dec(), model.ErrTransfer)
	}
	next, overflow := new(uint256.Int).AddOverflow(&toBal, amount)
	if overflow {
		return model.ErrOverflow
	}
	journal.Put(b.j, b.collateral, fk, *new(uint256.Int).Sub(&fromBal, amount))
	journal.Put(b.j, b.collateral, tk, *next)
	return nil
}

func (b *Balances) mintShares(token common.Hash, owner common.Address, amount *uint256.Int) error {
	k := shareKey{token, owner}
	cur := b.shares[k]
	next, overflow := new(uint256.Int).AddOverflow(&cur, amount)
	if overflow {
		return model.ErrOverflow
	}
	journal.Put(b.j, b.shares, k, *next)
	return nil
}

func (b *Balances) burnShares(token common.Hash, owner common.Address, amount *uint256.Int) error {
	k := shareKey{token, owner}
	cur := b.shares[k]
	if cur.Lt(amount) {
		return fmt.Errorf("burn %s of %s held by %s: %w", amount.Dec(), cur.Dec(), owner.Hex(), model.ErrTransfer)
	}
	journal.Put(b.j, b.shares, k, *new(uint256.Int).Sub(&cur, amount))
	return nil
}

func (b *Balances) moveShares(token common.Hash, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() || from == to {
		return nil
	}
	if err := b.burnShares(token, from, amount); err != nil {
		return err
	}
	return b.mintShares(token, to, amount)
}
