package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pmrouter/internal/journal"
	"pmrouter/internal/model"
	"pmrouter/internal/venue"
)

// Market is the vault-side definition of a market.
type Market struct {
	Collateral common.Address
	CloseTime  time.Time
	Resolved   bool
}

// Vault is a collateral vault: split/merge between collateral and YES/NO shares.
type Vault struct {
	j       *journal.Journal
	bal     *Balances
	addr    common.Address
	markets map[common.Hash]Market
}

func NewVault(j *journal.Journal, bal *Balances, addr common.Address) *Vault {
	return &Vault{j: j, bal: bal, addr: addr, markets: make(map[common.Hash]Market)}
}

// Address is the account holding split collateral.
func (v *Vault) Address() common.Address { return v.addr }

// CreateMarket registers or replaces a market definition.
func (v *Vault) CreateMarket(id common.Hash, m Market) {
	journal.Put(v.j, v.markets, id, m)
}

// Resolve marks a market resolved; trading stops.
func (v *Vault) Resolve(id common.Hash) error {
	m, ok := v.markets[id]
	if !ok {
		return fmt.Errorf("market %s: %w", id.Hex(), model.ErrMarketClosed)
	}
	m.Resolved = true
	journal.Put(v.j, v.markets, id, m)
	return nil
}

// Seed mints yes/no shares to owner and backs them with collateral held by the vault.
func (v *Vault) Seed(market common.Hash, owner common.Address, yes, no *uint256.Int) error {
	m, ok := v.markets[market]
	if !ok {
		return fmt.Errorf("seed unknown market %s: %w", market.Hex(), model.ErrInvalidArgument)
	}
	backing := yes
	if no.Gt(yes) {
		backing = no
	}
	if err := v.bal.MintCollateral(m.Collateral, v.addr, backing); err != nil {
		return err
	}
	if err := v.bal.mintShares(market, owner, yes); err != nil {
		return err
	}
	return v.bal.mintShares(model.NoTokenID(market), owner, no)
}

func (v *Vault) MarketInfo(_ context.Context, market common.Hash) (venue.MarketInfo, error) {
	m, ok := v.markets[market]
	if !ok {
		return venue.MarketInfo{}, nil
	}
	return venue.MarketInfo{
		Exists:     true,
		Resolved:   m.Resolved,
		CloseTime:  m.CloseTime,
		Collateral: m.Collateral,
	}, nil
}

func (v *Vault) Split(ctx context.Context, market common.Hash, payer common.Address, amount *uint256.Int, recipient common.Address) error {
	m, ok := v.markets[market]
	if !ok || m.Resolved {
		return fmt.Errorf("split %s: %w", market.Hex(), model.ErrMarketClosed)
	}
	if err := v.bal.Transfer(ctx, m.Collateral, payer, v.addr, amount); err != nil {
		return fmt.Errorf("split collateral: %w", err)
	}
	if err := v.bal.mintShares(market, recipient, amount); err != nil {
		return err
	}
	return v.bal.mintShares(model.NoTokenID(market), recipient, amount)
}

func (v *Vault) Merge(ctx context.Context, market common.Hash, holder common.Address, amount *uint256.Int, recipient common.Address) error {
	m, ok := v.markets[market]
	if !ok {
		return fmt.Errorf("merge %s: %w", market.Hex(), model.ErrMarketClosed)
	}
	if err := v.bal.burnShares(market, holder, amount); err != nil {
		return fmt.Errorf("merge yes: %w", err)
	}
	if err := v.bal.burnShares(model.NoTokenID(market), holder, amount); err != nil {
		return fmt.Errorf("merge no: %w", err)
	}
	return v.bal.Transfer(ctx, m.Collateral, v.addr, recipient, amount)
}

func (v *Vault) TransferShares(_ context.Context, token common.Hash, from, to common.Address, amount *uint256.Int) error {
	if err := v.bal.moveShares(token, from, to, amount); err != nil {
		return fmt.Errorf("transfer shares: %w", err)
	}
	return nil
}

func (v *Vault) ComplementTokenID(market common.Hash) common.Hash {
	return model.NoTokenID(market)
}
