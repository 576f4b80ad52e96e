package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmrouter/internal/model"
)

func TestBuyLeavesUnspentWithoutBootstrap(t *testing.T) {
	f := newFixture(t)
	_, err := f.e.DepositAsk(f.ctx, alice, testMarket, true, 5_000, u(100))
	require.NoError(t, err)

	res, err := f.e.Buy(f.ctx, bob, BuyParams{Market: testMarket, Yes: true, CollateralIn: u(1_000), MaxPrice: 5_000, Recipient: bob}, nil)
	require.NoError(t, err)
	assert.Equal(t, u(100), res.AmountOut)
	assert.Equal(t, u(950), res.Unspent)
	assert.Equal(t, uint64(99_950), f.usdc(bob))
	assert.Equal(t, model.PoolDepleted, f.e.GetPoolInfo(testMarket, true, 5_000).State)
}

func TestBuySlippageRollsBack(t *testing.T) {
	f := newFixture(t)
	_, err := f.e.DepositAsk(f.ctx, alice, testMarket, true, 5_000, u(100))
	require.NoError(t, err)

	_, err = f.e.Buy(f.ctx, bob, BuyParams{
		Market: testMarket, Yes: true, CollateralIn: u(1_000), MinSharesOut: u(101), MaxPrice: 5_000, Recipient: bob,
	}, nil)
	assert.ErrorIs(t, err, model.ErrSlippage)
	assert.Equal(t, model.KindLiquidity, model.KindOf(err))
	assert.Equal(t, u(100), f.e.GetPoolInfo(testMarket, true, 5_000).TotalCapital)
	assert.Equal(t, uint64(100_000), f.usdc(bob))
	assert.Zero(t, f.yes(bob))
	checkIndex(t, f.e)
}

func TestTradeArgumentChecks(t *testing.T) {
	f := newFixture(t)
	base := BuyParams{Market: testMarket, Yes: true, CollateralIn: u(10), MaxPrice: 5_000, Recipient: bob}

	p := base
	p.CollateralIn = nil
	_, err := f.e.Buy(f.ctx, bob, p, nil)
	assert.ErrorIs(t, err, model.ErrZeroAmount)

	p = base
	p.Recipient = common.Address{}
	_, err = f.e.Buy(f.ctx, bob, p, nil)
	assert.ErrorIs(t, err, model.ErrZeroRecipient)

	p = base
	p.MaxPrice = 10_000
	_, err = f.e.Buy(f.ctx, bob, p, nil)
	assert.ErrorIs(t, err, model.ErrPriceOutOfRange)

	p = base
	p.Deadline = f.clock.Now().Add(-time.Second)
	_, err = f.e.Buy(f.ctx, bob, p, nil)
	assert.ErrorIs(t, err, model.ErrDeadlineExpired)
	assert.True(t, f.e.QuoteBuy(f.ctx, p).AmountOut.IsZero())

	f.clock.Advance(8 * 24 * time.Hour)
	_, err = f.e.Buy(f.ctx, bob, base, nil)
	assert.ErrorIs(t, err, model.ErrMarketClosed)
	assert.True(t, f.e.QuoteBuy(f.ctx, base).AmountOut.IsZero())
}

func TestExactLevelThenSweep(t *testing.T) {
	f := newFixture(t)
	for _, price := range []uint16{4_000, 5_000, 6_000} {
		_, err := f.e.DepositAsk(f.ctx, alice, testMarket, true, price, u(100))
		require.NoError(t, err)
	}

	// exact level only
	res, err := f.e.Buy(f.ctx, bob, BuyParams{Market: testMarket, Yes: true, CollateralIn: u(1_000), PoolPrice: 5_000, Recipient: bob}, nil)
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, uint16(5_000), res.Fills[0].Price)
	assert.Equal(t, u(100), f.e.GetPoolInfo(testMarket, true, 4_000).TotalCapital)

	f.e.cfg.MaxSweepLevels = 1
	res, err = f.e.Buy(f.ctx, bob, BuyParams{Market: testMarket, Yes: true, CollateralIn: u(1_000), MaxPrice: 9_000, Recipient: bob}, nil)
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, uint16(4_000), res.Fills[0].Price)
	assert.Equal(t, u(100), f.e.GetPoolInfo(testMarket, true, 6_000).TotalCapital)
}

func TestBuyWaterfallThroughBootstrap(t *testing.T) {
	f := newFixture(t)
	_, err := f.e.DepositAsk(f.ctx, alice, testMarket, true, 5_000, u(100))
	require.NoError(t, err)

	p := BuyParams{Market: testMarket, Yes: true, CollateralIn: u(1_000), MaxPrice: 6_000, UseBootstrap: true, Recipient: bob}
	quote := f.e.QuoteBuy(f.ctx, p)
	require.False(t, quote.AmountOut.IsZero())

	res, err := f.e.Buy(f.ctx, bob, p, nil)
	require.NoError(t, err)
	assert.Equal(t, quote, res)
	assert.Equal(t, u(100), res.PoolOut)
	assert.False(t, res.ExternalOut.IsZero())
	assert.True(t, res.Unspent.IsZero())
	assert.Equal(t, model.SourceMultiple, res.Source)
	assert.Equal(t, res.AmountOut.Uint64(), f.yes(bob))
	assert.Equal(t, uint64(99_000), f.usdc(bob))
	assert.Equal(t, []model.EventType{
		model.EventDeposit, model.EventFill, model.EventExternal, model.EventTrade,
	}, f.sink.types())
}

func TestSellRoutesRemainderToBootstrap(t *testing.T) {
	f := newFixture(t)
	p := SellParams{Market: testMarket, Yes: true, SharesIn: u(100), MinPrice: 1, UseBootstrap: true, Recipient: alice}
	quote := f.e.QuoteSell(f.ctx, p)

	res, err := f.e.Sell(f.ctx, alice, p)
	require.NoError(t, err)
	assert.Equal(t, quote, res)
	assert.Equal(t, u(49), res.AmountOut)
	assert.Equal(t, model.SourceOTC, res.Source)
	assert.Equal(t, uint64(100_049), f.usdc(alice))
	assert.Equal(t, uint64(9_900), f.yes(alice))
}

func TestSellReturnsUnfilledShares(t *testing.T) {
	f := newFixture(t)
	_, err := f.e.DepositBid(f.ctx, carol, testMarket, true, 5_000, u(50), nil)
	require.NoError(t, err)

	res, err := f.e.Sell(f.ctx, alice, SellParams{Market: testMarket, Yes: true, SharesIn: u(300), MinPrice: 5_000, Recipient: alice})
	require.NoError(t, err)
	assert.Equal(t, u(50), res.AmountOut)
	assert.Equal(t, u(200), res.Unspent)
	assert.Equal(t, uint64(9_900), f.yes(alice))
}

// solvency: custody always covers every pool's capital and unclaimed proceeds.
func checkSolvency(t *testing.T, f *fixture) {
	t.Helper()
	shares, collateral := new(uint256.Int), new(uint256.Int)
	for key, p := range f.e.pools {
		if key.Kind == model.Ask {
			shares.Add(shares, &p.TotalCapital)
			collateral.Add(collateral, p.Unclaimed())
		} else {
			collateral.Add(collateral, &p.TotalCapital)
			shares.Add(shares, p.Unclaimed())
		}
	}
	assert.False(t, f.w.Balances.Shares(testMarket, self).Lt(shares), "share custody")
	assert.False(t, f.w.Balances.Collateral(usdc, self).Lt(collateral), "collateral custody")
}

func TestQuoteMatchesExecution(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.w.Vault.Seed(testMarket, bob, u(20_000), new(uint256.Int)))
	rng := rand.New(rand.NewSource(7))
	prices := []uint16{1, 2_500, 4_000, 4_500, 5_000, 6_000, 9_999}
	pick := func() uint16 { return prices[rng.Intn(len(prices))] }

	for i := 0; i < 80; i++ {
		if rng.Intn(2) == 0 {
			_, err := f.e.DepositAsk(f.ctx, alice, testMarket, true, pick(), u(uint64(1+rng.Intn(200))))
			if err != nil {
				require.ErrorIs(t, err, model.ErrDepletedPool)
			}
		} else {
			_, err := f.e.DepositBid(f.ctx, carol, testMarket, true, pick(), u(uint64(1+rng.Intn(200))), nil)
			if err != nil {
				require.ErrorIs(t, err, model.ErrDepletedPool)
			}
		}

		if i%2 == 0 {
			p := BuyParams{
				Market: testMarket, Yes: true, CollateralIn: u(uint64(1 + rng.Intn(400))),
				MaxPrice: pick(), UseBootstrap: rng.Intn(2) == 0, Recipient: bob,
			}
			quote := f.e.QuoteBuy(f.ctx, p)
			res, err := f.e.Buy(f.ctx, bob, p, nil)
			if err != nil {
				assert.True(t, quote.AmountOut.IsZero(), "step %d: failed buy quoted %s", i, quote.AmountOut.Dec())
			} else {
				assert.Equal(t, quote, res, "step %d", i)
			}
		} else {
			p := SellParams{
				Market: testMarket, Yes: true, SharesIn: u(uint64(1 + rng.Intn(400))),
				MinPrice: pick(), UseBootstrap: rng.Intn(2) == 0, Recipient: bob,
			}
			quote := f.e.QuoteSell(f.ctx, p)
			res, err := f.e.Sell(f.ctx, bob, p)
			if err != nil {
				assert.True(t, quote.AmountOut.IsZero(), "step %d: failed sell quoted %s", i, quote.AmountOut.Dec())
			} else {
				assert.Equal(t, quote, res, "step %d", i)
			}
		}
		checkIndex(t, f.e)
		checkUnits(t, f.e)
		checkSolvency(t, f)
	}
}

func FuzzIndexConsistency(f *testing.F) {
	f.Add([]byte{0, 10, 1, 20, 2, 30, 3, 40})
	f.Add([]byte{1, 1, 1, 1, 4, 200, 5, 9})
	f.Add([]byte{0, 50, 6, 50, 7, 60, 8, 70, 9, 70, 10, 60, 11, 50, 12, 50})
	f.Add([]byte{0, 80, 2, 255, 13, 80, 1, 90, 3, 255, 5, 90, 11, 90})
	f.Fuzz(func(t *testing.T, ops []byte) {
		fx := newFixture(t)
		require.NoError(t, fx.w.Vault.Seed(testMarket, bob, u(1_000_000), u(1_000_000)))
		for i := 0; i+1 < len(ops) && i < 96; i += 2 {
			price := uint16(1 + int(ops[i+1])%9_999)
			other := uint16(1 + (int(ops[i+1])*37)%9_999)
			amount := u(uint64(ops[i+1]) + 1)
			var err error
			switch ops[i] % 14 {
			case 0:
				_, err = fx.e.DepositAsk(fx.ctx, alice, testMarket, true, price, amount)
			case 1:
				_, err = fx.e.DepositBid(fx.ctx, carol, testMarket, true, price, amount, nil)
			case 2:
				_, err = fx.e.Buy(fx.ctx, bob, BuyParams{Market: testMarket, Yes: true, CollateralIn: amount, MaxPrice: 9_999, Recipient: bob}, nil)
			case 3:
				_, err = fx.e.Sell(fx.ctx, bob, SellParams{Market: testMarket, Yes: true, SharesIn: amount, MinPrice: 1, Recipient: bob})
			case 4:
				_, err = fx.e.WithdrawAsk(fx.ctx, alice, testMarket, true, price, nil, alice)
			case 5:
				_, err = fx.e.ExitDepletedBid(fx.ctx, carol, testMarket, true, price, carol)
			case 6:
				_, err = fx.e.MoveAskPosition(fx.ctx, alice, testMarket, true, price, other, nil)
			case 7:
				_, err = fx.e.MoveBidPosition(fx.ctx, carol, testMarket, true, price, other, amount)
			case 8:
				_, err = fx.e.MintAndPool(fx.ctx, alice, testMarket, false, price, amount, alice, nil)
			case 9:
				_, err = fx.e.FillAskPool(fx.ctx, bob, testMarket, true, price, amount, nil, bob, time.Time{}, nil)
			case 10:
				_, err = fx.e.FillBidPool(fx.ctx, bob, testMarket, true, price, amount, nil, bob, time.Time{})
			case 11:
				_, err = fx.e.WithdrawBid(fx.ctx, carol, testMarket, true, price, nil, carol)
			case 12:
				_, err = fx.e.ExitDepletedAsk(fx.ctx, alice, testMarket, true, price, alice)
			case 13:
				_, err = fx.e.ClaimAsk(fx.ctx, alice, testMarket, true, price)
			}
			_ = err
			checkIndex(t, fx.e)
			checkUnits(t, fx.e)
			checkSolvency(t, fx)
		}
	})
}
