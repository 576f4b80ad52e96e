package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pmrouter/internal/fixed"
	"pmrouter/internal/journal"
	"pmrouter/internal/model"
	"pmrouter/internal/venue"
	"pmrouter/internal/venue/amm"
)

// BootstrapConfig holds the OTC spread and depletion parameters.
type BootstrapConfig struct {
	BaseSpreadBps        uint64 `yaml:"base_spread_bps"`
	MaxImbalanceBoostBps uint64 `yaml:"max_imbalance_boost_bps"`
	MaxTimeBoostBps      uint64 `yaml:"max_time_boost_bps"`
	MaxSpreadBps         uint64 `yaml:"max_spread_bps"`
	MinAbsoluteSpreadBps uint64 `yaml:"min_absolute_spread_bps"`
	MaxDepletionPct      uint64 `yaml:"max_depletion_pct"`
}

func DefaultBootstrapConfig() BootstrapConfig {
	return BootstrapConfig{
		BaseSpreadBps:        100,
		MaxImbalanceBoostBps: 400,
		MaxTimeBoostBps:      200,
		MaxSpreadBps:         500,
		MinAbsoluteSpreadBps: 20,
		MaxDepletionPct:      30,
	}
}

type ammPool struct {
	reserves amm.Reserves
	created  time.Time
}

// Inventory is the OTC vault's share inventory for one market.
type Inventory struct {
	Yes uint256.Int
	No  uint256.Int
}

func (inv *Inventory) side(yes bool) *uint256.Int {
	if yes {
		return &inv.Yes
	}
	return &inv.No
}

type unitKey struct {
	market common.Hash
	owner  common.Address
}

// Bootstrap routes orders through the OTC inventory, then the AMM up to the price
// impact ceiling, then minting for whatever remains of a buy.
type Bootstrap struct {
	cfg   BootstrapConfig
	j     *journal.Journal
	bal   *Balances
	vault *Vault
	fees  venue.FeeOracle
	now   func() time.Time
	addr  common.Address

	pools     map[common.Hash]ammPool
	inventory map[common.Hash]Inventory
	units     map[unitKey]uint256.Int

	// BeforeTrade, when set, runs at the start of Buy and Sell.
	BeforeTrade func(ctx context.Context) error
}

func NewBootstrap(cfg BootstrapConfig, j *journal.Journal, bal *Balances, vault *Vault, now func() time.Time, addr common.Address) *Bootstrap {
	return &Bootstrap{
		cfg:       cfg,
		j:         j,
		bal:       bal,
		vault:     vault,
		now:       now,
		addr:      addr,
		pools:     make(map[common.Hash]ammPool),
		inventory: make(map[common.Hash]Inventory),
		units:     make(map[unitKey]uint256.Int),
	}
}

// SetFeeOracle wires the oracle consulted for AMM fees and the impact ceiling.
func (b *Bootstrap) SetFeeOracle(f venue.FeeOracle) { b.fees = f }

// Address is the account holding AMM reserves and OTC inventory.
func (b *Bootstrap) Address() common.Address { return b.addr }

// Reserves implements ReserveSource.
func (b *Bootstrap) Reserves(market common.Hash) (amm.Reserves, time.Time, bool) {
	p, ok := b.pools[market]
	return p.reserves, p.created, ok
}

// Inventory returns the OTC inventory of market.
func (b *Bootstrap) Inventory(market common.Hash) Inventory {
	return b.inventory[market]
}

// VaultUnits returns the OTC vault units credited to owner.
func (b *Bootstrap) VaultUnits(market common.Hash, owner common.Address) *uint256.Int {
	v := b.units[unitKey{market, owner}]
	return &v
}

// SeedPool creates an AMM pool backed by freshly seeded shares.
func (b *Bootstrap) SeedPool(market common.Hash, yes, no uint64) error {
	r := amm.NewReserves(yes, no)
	if err := b.vault.Seed(market, b.addr, &r.Yes, &r.No); err != nil {
		return err
	}
	journal.Put(b.j, b.pools, market, ammPool{reserves: r, created: b.now()})
	return nil
}

// SeedInventory adds seeded shares to the OTC inventory.
func (b *Bootstrap) SeedInventory(market common.Hash, yes, no uint64) error {
	add := amm.NewReserves(yes, no)
	if err := b.vault.Seed(market, b.addr, &add.Yes, &add.No); err != nil {
		return err
	}
	inv := b.inventory[market]
	inv.Yes.Add(&inv.Yes, &add.Yes)
	inv.No.Add(&inv.No, &add.No)
	journal.Put(b.j, b.inventory, market, inv)
	return nil
}

func (b *Bootstrap) DepositToVault(ctx context.Context, market common.Hash, yes bool, shares *uint256.Int, owner, recipient common.Address) (*uint256.Int, error) {
	if shares.IsZero() {
		return nil, model.ErrZeroAmount
	}
	if err := b.vault.TransferShares(ctx, model.TokenID(market, yes), owner, b.addr, shares); err != nil {
		return nil, err
	}
	inv := b.inventory[market]
	inv.side(yes).Add(inv.side(yes), shares)
	journal.Put(b.j, b.inventory, market, inv)

	k := unitKey{market, recipient}
	held := b.units[k]
	journal.Put(b.j, b.units, k, *new(uint256.Int).Add(&held, shares))
	return shares.Clone(), nil
}

// spreadBps is the relative OTC spread for taking the given side from inventory.
func (b *Bootstrap) spreadBps(inv Inventory, takeYes bool, toClose time.Duration) uint64 {
	spread := b.cfg.BaseSpreadBps

	total := new(uint256.Int).Add(&inv.Yes, &inv.No)
	yesScarce := inv.Yes.Lt(&inv.No)
	consumingScarce := takeYes == yesScarce
	if consumingScarce && !total.IsZero() {
		larger := &inv.Yes
		if inv.No.Gt(larger) {
			larger = &inv.No
		}
		imb, err := fixed.MulDiv(larger, uint256.NewInt(fixed.BPS), total)
		if err == nil && imb.Uint64() > fixed.BPS/2 {
			spread += b.cfg.MaxImbalanceBoostBps * (imb.Uint64() - fixed.BPS/2) / (fixed.BPS / 2)
		}
	}

	if toClose < 24*time.Hour {
		if toClose < 0 {
			toClose = 0
		}
		left := uint64((24*time.Hour - toClose) / time.Second)
		spread += b.cfg.MaxTimeBoostBps * left / uint64(24*time.Hour/time.Second)
	}
	return min(spread, b.cfg.MaxSpreadBps)
}

// otcPrice is the TWAP share price with the spread added (buys) or removed (sells).
func (b *Bootstrap) otcPrice(inv Inventory, twapYes uint64, yes, buying bool, toClose time.Duration) uint64 {
	share := twapYes
	if !yes {
		share = fixed.BPS - twapYes
	}
	takeYes := yes
	if !buying {
		takeYes = !yes
	}
	rel := b.spreadBps(inv, takeYes, toClose)
	spread := max(share*rel/fixed.BPS, b.cfg.MinAbsoluteSpreadBps)
	if buying {
		return min(share+spread, fixed.BPS)
	}
	if spread >= share {
		return 0
	}
	return share - spread
}

func (b *Bootstrap) depletionCap(available *uint256.Int) *uint256.Int {
	limit, err := fixed.MulDiv(available, uint256.NewInt(b.cfg.MaxDepletionPct), uint256.NewInt(100))
	if err != nil {
		return available.Clone()
	}
	if limit.IsZero() && !available.IsZero() {
		limit.SetUint64(1)
	}
	return limit
}

type buyPlan struct {
	market        common.Hash
	collateral    common.Address
	otcShares     *uint256.Int
	otcCollateral *uint256.Int
	ammCollateral *uint256.Int
	ammShares     *uint256.Int
	ammAfter      amm.Reserves
	mintShares    *uint256.Int
	total         *uint256.Int
	source        model.Source
}

type sellPlan struct {
	market    common.Hash
	otcShares *uint256.Int
	otcPay    *uint256.Int
	ammShares *uint256.Int
	ammOut    *uint256.Int
	ammAfter  amm.Reserves
	total     *uint256.Int
	source    model.Source
}

func (b *Bootstrap) openMarket(ctx context.Context, market common.Hash) (venue.MarketInfo, error) {
	info, err := b.vault.MarketInfo(ctx, market)
	if err != nil {
		return info, err
	}
	if !info.OpenAt(b.now()) {
		return info, fmt.Errorf("market %s: %w", market.Hex(), model.ErrMarketClosed)
	}
	return info, nil
}

func (b *Bootstrap) ammParams(ctx context.Context, market common.Hash) (fee, maxImpact uint64, err error) {
	if b.fees == nil {
		return 0, 0, fmt.Errorf("no fee oracle: %w", model.ErrInvalidArgument)
	}
	if fee, err = b.fees.CurrentFeeBps(ctx, market); err != nil {
		return 0, 0, err
	}
	if maxImpact, err = b.fees.MaxPriceImpactBps(ctx, market); err != nil {
		return 0, 0, err
	}
	return fee, maxImpact, nil
}

func (b *Bootstrap) planBuy(ctx context.Context, market common.Hash, yes bool, collateralIn *uint256.Int) (buyPlan, error) {
	plan := buyPlan{
		market:        market,
		otcShares:     new(uint256.Int),
		otcCollateral: new(uint256.Int),
		ammCollateral: new(uint256.Int),
		ammShares:     new(uint256.Int),
		mintShares:    new(uint256.Int),
	}
	if collateralIn.IsZero() {
		return plan, model.ErrZeroAmount
	}
	info, err := b.openMarket(ctx, market)
	if err != nil {
		return plan, err
	}
	plan.collateral = info.Collateral

	pool, hasPool := b.pools[market]
	twap := uint64(fixed.BPS / 2)
	if hasPool {
		twap = pool.reserves.PriceYesBps()
	}

	remaining := collateralIn.Clone()
	inv := b.inventory[market]
	if available := inv.side(yes); !available.IsZero() {
		price := b.otcPrice(inv, twap, yes, true, info.CloseTime.Sub(b.now()))
		raw, err := fixed.CollateralToSharesDown(remaining, uint16(price))
		if err != nil {
			return plan, err
		}
		shares := fixed.Min(fixed.Min(raw, b.depletionCap(available)), available)
		if !shares.IsZero() {
			used := remaining.Clone()
			if shares.Lt(raw) {
				if used, err = fixed.SharesToCollateralUp(shares, uint16(price)); err != nil {
					return plan, err
				}
			}
			plan.otcShares, plan.otcCollateral = shares, used
			plan.source = plan.source.Merge(model.SourceOTC)
			remaining.Sub(remaining, used)
		}
	}

	if !remaining.IsZero() && hasPool {
		fee, maxImpact, err := b.ammParams(ctx, market)
		if err != nil {
			return plan, err
		}
		safe := amm.MaxBuyUnderImpact(pool.reserves, yes, remaining, fee, maxImpact)
		if !safe.IsZero() {
			shares, after, err := amm.Buy(pool.reserves, yes, safe, fee)
			if err == nil {
				plan.ammCollateral, plan.ammShares, plan.ammAfter = safe, shares, after
				plan.source = plan.source.Merge(model.SourceAMM)
				remaining.Sub(remaining, safe)
			}
		}
	}

	if !remaining.IsZero() {
		plan.mintShares = remaining
		plan.source = plan.source.Merge(model.SourceMint)
	}

	total, err := fixed.Add(plan.otcShares, plan.ammShares)
	if err != nil {
		return plan, err
	}
	if plan.total, err = fixed.Add(total, plan.mintShares); err != nil {
		return plan, err
	}
	return plan, nil
}

func (b *Bootstrap) planSell(ctx context.Context, market common.Hash, yes bool, sharesIn *uint256.Int) (sellPlan, error) {
	plan := sellPlan{
		market:    market,
		otcShares: new(uint256.Int),
		otcPay:    new(uint256.Int),
		ammShares: new(uint256.Int),
		ammOut:    new(uint256.Int),
	}
	if sharesIn.IsZero() {
		return plan, model.ErrZeroAmount
	}
	info, err := b.openMarket(ctx, market)
	if err != nil {
		return plan, err
	}

	pool, hasPool := b.pools[market]
	twap := uint64(fixed.BPS / 2)
	if hasPool {
		twap = pool.reserves.PriceYesBps()
	}

	remaining := sharesIn.Clone()
	inv := b.inventory[market]
	if opposite := inv.side(!yes); !opposite.IsZero() {
		price := b.otcPrice(inv, twap, yes, false, info.CloseTime.Sub(b.now()))
		take := fixed.Min(remaining, b.depletionCap(opposite))
		pay, err := fixed.SharesToCollateralDown(take, uint16(price))
		if err != nil {
			return plan, err
		}
		if !pay.IsZero() {
			plan.otcShares, plan.otcPay = take, pay
			plan.source = plan.source.Merge(model.SourceOTC)
			remaining.Sub(remaining, take)
		}
	}

	if !remaining.IsZero() {
		if !hasPool {
			return plan, fmt.Errorf("no amm for %s: %w", market.Hex(), model.ErrInsufficientLiquidity)
		}
		fee, maxImpact, err := b.ammParams(ctx, market)
		if err != nil {
			return plan, err
		}
		out, after, err := amm.Sell(pool.reserves, yes, remaining, fee)
		if err != nil {
			return plan, err
		}
		if impact := amm.Impact(pool.reserves, after); impact > maxImpact {
			return plan, fmt.Errorf("sell impact %d bps > %d: %w", impact, maxImpact, model.ErrInsufficientLiquidity)
		}
		plan.ammShares, plan.ammOut, plan.ammAfter = remaining, out, after
		plan.source = plan.source.Merge(model.SourceAMM)
	}

	total, err := fixed.Add(plan.otcPay, plan.ammOut)
	if err != nil {
		return plan, err
	}
	plan.total = total
	return plan, nil
}

func (b *Bootstrap) QuoteBuy(ctx context.Context, market common.Hash, yes bool, collateralIn *uint256.Int) (venue.TradeResult, error) {
	plan, err := b.planBuy(ctx, market, yes, collateralIn)
	if err != nil {
		return venue.TradeResult{}, err
	}
	return venue.TradeResult{AmountOut: plan.total, Source: plan.source}, nil
}

func (b *Bootstrap) QuoteSell(ctx context.Context, market common.Hash, yes bool, sharesIn *uint256.Int) (venue.TradeResult, error) {
	plan, err := b.planSell(ctx, market, yes, sharesIn)
	if err != nil {
		return venue.TradeResult{}, err
	}
	return venue.TradeResult{AmountOut: plan.total, Source: plan.source}, nil
}

func (b *Bootstrap) checkRequest(ctx context.Context, req venue.TradeRequest) error {
	if b.BeforeTrade != nil {
		if err := b.BeforeTrade(ctx); err != nil {
			return err
		}
	}
	if req.Recipient == (common.Address{}) {
		return model.ErrZeroRecipient
	}
	if !req.Deadline.IsZero() && b.now().After(req.Deadline) {
		return model.ErrDeadlineExpired
	}
	return nil
}

func (b *Bootstrap) Buy(ctx context.Context, req venue.TradeRequest) (venue.TradeResult, error) {
	if err := b.checkRequest(ctx, req); err != nil {
		return venue.TradeResult{}, err
	}
	plan, err := b.planBuy(ctx, req.Market, req.Yes, req.AmountIn)
	if err != nil {
		return venue.TradeResult{}, err
	}
	if req.MinOut != nil && plan.total.Lt(req.MinOut) {
		return venue.TradeResult{}, fmt.Errorf("bootstrap buy %s < %s: %w", plan.total.Dec(), req.MinOut.Dec(), model.ErrSlippage)
	}

	if err := b.bal.Transfer(ctx, plan.collateral, req.Payer, b.addr, req.AmountIn); err != nil {
		return venue.TradeResult{}, err
	}
	token := model.TokenID(req.Market, req.Yes)
	inv := b.inventory[req.Market]

	if !plan.otcShares.IsZero() {
		inv.side(req.Yes).Sub(inv.side(req.Yes), plan.otcShares)
		if err := b.bal.moveShares(token, b.addr, req.Recipient, plan.otcShares); err != nil {
			return venue.TradeResult{}, err
		}
	}
	if !plan.ammCollateral.IsZero() {
		if err := b.vault.Split(ctx, req.Market, b.addr, plan.ammCollateral, b.addr); err != nil {
			return venue.TradeResult{}, err
		}
		if err := b.bal.moveShares(token, b.addr, req.Recipient, plan.ammShares); err != nil {
			return venue.TradeResult{}, err
		}
		pool := b.pools[req.Market]
		pool.reserves = plan.ammAfter
		journal.Put(b.j, b.pools, req.Market, pool)
	}
	if !plan.mintShares.IsZero() {
		if err := b.vault.Split(ctx, req.Market, b.addr, plan.mintShares, b.addr); err != nil {
			return venue.TradeResult{}, err
		}
		if err := b.bal.moveShares(token, b.addr, req.Recipient, plan.mintShares); err != nil {
			return venue.TradeResult{}, err
		}
		inv.side(!req.Yes).Add(inv.side(!req.Yes), plan.mintShares)
	}
	journal.Put(b.j, b.inventory, req.Market, inv)
	return venue.TradeResult{AmountOut: plan.total, Source: plan.source}, nil
}

func (b *Bootstrap) Sell(ctx context.Context, req venue.TradeRequest) (venue.TradeResult, error) {
	if err := b.checkRequest(ctx, req); err != nil {
		return venue.TradeResult{}, err
	}
	plan, err := b.planSell(ctx, req.Market, req.Yes, req.AmountIn)
	if err != nil {
		return venue.TradeResult{}, err
	}
	if req.MinOut != nil && plan.total.Lt(req.MinOut) {
		return venue.TradeResult{}, fmt.Errorf("bootstrap sell %s < %s: %w", plan.total.Dec(), req.MinOut.Dec(), model.ErrSlippage)
	}
	info, err := b.vault.MarketInfo(ctx, req.Market)
	if err != nil {
		return venue.TradeResult{}, err
	}

	token := model.TokenID(req.Market, req.Yes)
	if err := b.vault.TransferShares(ctx, token, req.Payer, b.addr, req.AmountIn); err != nil {
		return venue.TradeResult{}, err
	}
	if !plan.otcShares.IsZero() {
		inv := b.inventory[req.Market]
		inv.side(!req.Yes).Sub(inv.side(!req.Yes), plan.otcShares)
		journal.Put(b.j, b.inventory, req.Market, inv)
		if err := b.vault.Merge(ctx, req.Market, b.addr, plan.otcShares, b.addr); err != nil {
			return venue.TradeResult{}, err
		}
		if err := b.bal.Transfer(ctx, info.Collateral, b.addr, req.Recipient, plan.otcPay); err != nil {
			return venue.TradeResult{}, err
		}
	}
	if !plan.ammShares.IsZero() {
		if err := b.vault.Merge(ctx, req.Market, b.addr, plan.ammOut, req.Recipient); err != nil {
			return venue.TradeResult{}, err
		}
		pool := b.pools[req.Market]
		pool.reserves = plan.ammAfter
		journal.Put(b.j, b.pools, req.Market, pool)
	}
	return venue.TradeResult{AmountOut: plan.total, Source: plan.source}, nil
}
