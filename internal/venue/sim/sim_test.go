package sim

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmrouter/internal/journal"
	"pmrouter/internal/model"
	"pmrouter/internal/venue"
	"pmrouter/internal/venue/amm"
)

var (
	testMarket = common.HexToHash("0x5151")
	usdc       = common.HexToAddress("0xc0")
	alice      = common.HexToAddress("0xa11ce")
)

func newTestWorld(t *testing.T) (*World, *Clock) {
	t.Helper()
	clock := NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	w := NewWorld(journal.New(), clock.Now, DefaultBootstrapConfig(), DefaultFeeConfig())
	w.Vault.CreateMarket(testMarket, Market{Collateral: usdc, CloseTime: clock.Now().Add(7 * 24 * time.Hour)})
	require.NoError(t, w.Bootstrap.SeedPool(testMarket, 5_000, 5_000))
	require.NoError(t, w.Bootstrap.SeedInventory(testMarket, 1_000, 1_000))
	require.NoError(t, w.Balances.MintCollateral(usdc, alice, uint256.NewInt(100_000)))
	w.Journal.Commit()
	return w, clock
}

func TestFeeCurve(t *testing.T) {
	f := NewFeeCurve(DefaultFeeConfig(), time.Now, nil)
	balanced := amm.NewReserves(500, 500)
	assert.Equal(t, uint64(75), f.feeAt(balanced, 0))
	assert.Equal(t, uint64(43), f.feeAt(balanced, 24*time.Hour))
	assert.Equal(t, uint64(10), f.feeAt(balanced, 72*time.Hour))

	skewed := amm.NewReserves(1_000, 9_000)
	assert.Equal(t, uint64(106), f.feeAt(skewed, 72*time.Hour))

	capped := DefaultFeeConfig()
	capped.FeeCapBps = 50
	assert.Equal(t, uint64(50), NewFeeCurve(capped, time.Now, nil).feeAt(skewed, 0))
}

func TestBuyWaterfallMatchesQuote(t *testing.T) {
	w, _ := newTestWorld(t)
	ctx := context.Background()
	in := uint256.NewInt(10_000)

	quote, err := w.Bootstrap.QuoteBuy(ctx, testMarket, true, in)
	require.NoError(t, err)
	assert.Equal(t, model.SourceMultiple, quote.Source)

	before, _, _ := w.Bootstrap.Reserves(testMarket)
	res, err := w.Bootstrap.Buy(ctx, venue.TradeRequest{
		Market: testMarket, Yes: true, AmountIn: in, MinOut: quote.AmountOut,
		Payer: alice, Recipient: alice,
	})
	require.NoError(t, err)
	assert.True(t, quote.AmountOut.Eq(res.AmountOut))
	assert.True(t, res.AmountOut.Eq(w.Balances.Shares(testMarket, alice)))
	assert.Equal(t, uint64(90_000), w.Balances.Collateral(usdc, alice).Uint64())

	after, _, _ := w.Bootstrap.Reserves(testMarket)
	assert.LessOrEqual(t, amm.Impact(before, after), uint64(1200))

	inv := w.Bootstrap.Inventory(testMarket)
	assert.Equal(t, uint64(700), inv.Yes.Uint64(), "30%% depletion cap on the otc leg")
	assert.Greater(t, inv.No.Uint64(), uint64(1_000), "minted NO parks in inventory")
}

func TestSellThroughOTC(t *testing.T) {
	w, _ := newTestWorld(t)
	ctx := context.Background()
	require.NoError(t, w.Vault.Seed(testMarket, alice, uint256.NewInt(100), new(uint256.Int)))

	res, err := w.Bootstrap.Sell(ctx, venue.TradeRequest{
		Market: testMarket, Yes: true, AmountIn: uint256.NewInt(100), Payer: alice, Recipient: alice,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SourceOTC, res.Source)
	assert.Equal(t, uint64(49), res.AmountOut.Uint64())
	assert.Equal(t, uint64(100_049), w.Balances.Collateral(usdc, alice).Uint64())
	inv := w.Bootstrap.Inventory(testMarket)
	assert.Equal(t, uint64(900), inv.No.Uint64())
}

func TestRejectionsAndRevert(t *testing.T) {
	w, clock := newTestWorld(t)
	ctx := context.Background()
	in := uint256.NewInt(1_000)

	_, err := w.Bootstrap.Buy(ctx, venue.TradeRequest{
		Market: testMarket, Yes: true, AmountIn: in, Payer: alice, Recipient: alice,
		Deadline: clock.Now().Add(-time.Second),
	})
	assert.ErrorIs(t, err, model.ErrDeadlineExpired)

	_, err = w.Bootstrap.Buy(ctx, venue.TradeRequest{
		Market: testMarket, Yes: true, AmountIn: in, MinOut: uint256.NewInt(1_000_000), Payer: alice, Recipient: alice,
	})
	assert.ErrorIs(t, err, model.ErrSlippage)

	snap := w.Journal.Snapshot()
	_, err = w.Bootstrap.Buy(ctx, venue.TradeRequest{Market: testMarket, Yes: false, AmountIn: in, Payer: alice, Recipient: alice})
	require.NoError(t, err)
	w.Journal.RevertToSnapshot(snap)
	assert.Equal(t, uint64(100_000), w.Balances.Collateral(usdc, alice).Uint64())
	assert.True(t, w.Balances.Shares(model.NoTokenID(testMarket), alice).IsZero())

	clock.Advance(8 * 24 * time.Hour)
	_, err = w.Bootstrap.QuoteBuy(ctx, testMarket, true, in)
	assert.ErrorIs(t, err, model.ErrMarketClosed)
}

func TestSpreadBoosts(t *testing.T) {
	w, _ := newTestWorld(t)
	var inv Inventory
	inv.Yes.SetUint64(100)
	inv.No.SetUint64(900)

	assert.Equal(t, uint64(100), w.Bootstrap.spreadBps(inv, false, 72*time.Hour))
	// taking scarce YES at 90% imbalance: 100 + 400*4000/5000
	assert.Equal(t, uint64(420), w.Bootstrap.spreadBps(inv, true, 72*time.Hour))
	// plus the full time boost at close, capped at 500
	assert.Equal(t, uint64(500), w.Bootstrap.spreadBps(inv, true, 0))
	assert.Equal(t, uint64(200), w.Bootstrap.spreadBps(inv, false, 12*time.Hour))
}

func TestDepositToVault(t *testing.T) {
	w, _ := newTestWorld(t)
	require.NoError(t, w.Vault.Seed(testMarket, alice, new(uint256.Int), uint256.NewInt(50)))
	units, err := w.Bootstrap.DepositToVault(context.Background(), testMarket, false, uint256.NewInt(50), alice, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), units.Uint64())
	inv := w.Bootstrap.Inventory(testMarket)
	assert.Equal(t, uint64(1_050), inv.No.Uint64())
	assert.Equal(t, uint64(50), w.Bootstrap.VaultUnits(testMarket, alice).Uint64())
}
