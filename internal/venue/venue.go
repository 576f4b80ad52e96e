// Package venue declares the collaborators the engine trades through: the
// collateral vault, token custody, the bootstrap router and the fee oracle.
package venue

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pmrouter/internal/model"
)

// NativeAsset is the collateral asset address used for the chain's native coin.
var NativeAsset = common.Address{}

// MarketInfo is the vault's view of a market.
type MarketInfo struct {
	Exists     bool
	Resolved   bool
	CloseTime  time.Time
	Collateral common.Address
}

// OpenAt reports whether the market accepts trading at now.
func (m MarketInfo) OpenAt(now time.Time) bool {
	return m.Exists && !m.Resolved && now.Before(m.CloseTime)
}

// Vault converts collateral into outcome shares and back, and custodies share balances.
type Vault interface {
	MarketInfo(ctx context.Context, market common.Hash) (MarketInfo, error)
	// Split takes amount collateral from payer and mints amount YES and NO to recipient.
	Split(ctx context.Context, market common.Hash, payer common.Address, amount *uint256.Int, recipient common.Address) error
	// Merge burns amount YES and NO from holder and pays amount collateral to recipient.
	Merge(ctx context.Context, market common.Hash, holder common.Address, amount *uint256.Int, recipient common.Address) error
	TransferShares(ctx context.Context, token common.Hash, from, to common.Address, amount *uint256.Int) error
	ComplementTokenID(market common.Hash) common.Hash
}

// Collateral moves collateral balances. The zero asset address is the native coin.
type Collateral interface {
	Transfer(ctx context.Context, asset common.Address, from, to common.Address, amount *uint256.Int) error
}

// TradeRequest is a bootstrap buy or sell. For buys AmountIn is collateral and
// MinOut shares; for sells the roles swap. Payer must hold AmountIn.
type TradeRequest struct {
	Market    common.Hash
	Yes       bool
	AmountIn  *uint256.Int
	MinOut    *uint256.Int
	Payer     common.Address
	Recipient common.Address
	Deadline  time.Time
}

// TradeResult reports the amount delivered and the venue that produced it.
type TradeResult struct {
	AmountOut *uint256.Int
	Source    model.Source
}

// Bootstrap routes orders the engine could not fill from its own pools.
type Bootstrap interface {
	Buy(ctx context.Context, req TradeRequest) (TradeResult, error)
	Sell(ctx context.Context, req TradeRequest) (TradeResult, error)
	// DepositToVault moves shares from owner into the OTC inventory and returns the
	// vault units credited to recipient.
	DepositToVault(ctx context.Context, market common.Hash, yes bool, shares *uint256.Int, owner, recipient common.Address) (*uint256.Int, error)
	// QuoteBuy and QuoteSell preview Buy and Sell without moving anything.
	QuoteBuy(ctx context.Context, market common.Hash, yes bool, collateralIn *uint256.Int) (TradeResult, error)
	QuoteSell(ctx context.Context, market common.Hash, yes bool, sharesIn *uint256.Int) (TradeResult, error)
}

// FeeOracle reports the AMM fee and the price impact ceiling for a market.
type FeeOracle interface {
	CurrentFeeBps(ctx context.Context, market common.Hash) (uint64, error)
	MaxPriceImpactBps(ctx context.Context, market common.Hash) (uint64, error)
}
