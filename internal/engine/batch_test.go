package engine

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmrouter/internal/model"
	"pmrouter/internal/venue"
	"pmrouter/internal/venue/sim"
)

func TestMulticallRevertsEverything(t *testing.T) {
	f := newFixture(t)
	err := f.e.Multicall(f.ctx, alice, nil,
		func(b *Batch) error {
			_, err := b.Deposit(askKey(5_000), u(100))
			return err
		},
		func(b *Batch) error {
			_, err := b.Deposit(askKey(0), u(100))
			return err
		},
	)
	assert.ErrorIs(t, err, model.ErrPriceOutOfRange)
	assert.Equal(t, model.KindValidation, model.KindOf(err))
	assert.Empty(t, f.e.Pools())
	assert.Empty(t, f.e.index.Books())
	assert.Equal(t, uint64(10_000), f.yes(alice))
	assert.Empty(t, f.sink.types(), "reverted batches publish nothing")
}

func TestMulticallPublishesOnCommit(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.e.Multicall(f.ctx, alice, nil,
		func(b *Batch) error {
			_, err := b.Deposit(askKey(5_000), u(100))
			return err
		},
		func(b *Batch) error {
			_, err := b.Deposit(askKey(6_000), u(100))
			return err
		},
	))

	require.Len(t, f.sink.events, 2)
	ids := map[string]bool{}
	for i, ev := range f.sink.events {
		assert.Equal(t, uint64(i+1), ev.Seq)
		assert.Equal(t, f.clock.Now(), ev.Timestamp)
		assert.Equal(t, alice, ev.Actor)
		assert.NotEmpty(t, ev.ID)
		ids[ev.ID] = true
	}
	assert.Len(t, ids, 2)
	assert.Equal(t, askKey(6_000).ID(), f.sink.events[1].PoolID)
	assert.Equal(t, "100", f.sink.events[1].Shares)
	assert.Equal(t, 0, f.w.Journal.Len())
}

func TestMulticallClearsJournalAfterOutsideWrites(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.w.Balances.MintCollateral(usdc, bob, u(5)))
	require.NotZero(t, f.w.Journal.Len())

	_, err := f.e.DepositAsk(f.ctx, alice, testMarket, true, 5_000, u(10))
	require.NoError(t, err)
	assert.Equal(t, 0, f.w.Journal.Len())
	assert.Equal(t, uint64(100_005), f.usdc(bob))

	// a later failed batch cannot unwind the committed deposit
	_, err = f.e.DepositAsk(f.ctx, alice, testMarket, true, 0, u(10))
	require.Error(t, err)
	assert.Equal(t, u(10), f.e.GetPoolInfo(testMarket, true, 5_000).TotalCapital)
	assert.Equal(t, uint64(9_990), f.yes(alice))
}

func TestReentrantCallIsRejected(t *testing.T) {
	f := newFixture(t)
	f.w.Bootstrap.BeforeTrade = func(ctx context.Context) error {
		_, err := f.e.DepositAsk(ctx, alice, testMarket, true, 5_000, u(10))
		return err
	}

	_, err := f.e.Buy(f.ctx, bob, BuyParams{Market: testMarket, Yes: true, CollateralIn: u(100), UseBootstrap: true, Recipient: bob}, nil)
	assert.ErrorIs(t, err, model.ErrReentrancy)
	assert.Equal(t, model.KindReentrancy, model.KindOf(err))
	assert.Equal(t, uint64(100_000), f.usdc(bob))
	assert.Equal(t, uint64(10_000), f.yes(alice))
	assert.Empty(t, f.e.Pools())

	// the lock is released afterwards
	f.w.Bootstrap.BeforeTrade = nil
	_, err = f.e.DepositAsk(f.ctx, alice, testMarket, true, 5_000, u(10))
	assert.NoError(t, err)
	assert.ErrorIs(t, f.e.Multicall(f.ctx, alice, nil, func(b *Batch) error {
		return b.e.Restore(model.Snapshot{})
	}), model.ErrReentrancy)
}

func TestNativeBudget(t *testing.T) {
	f := newFixture(t)
	native := common.HexToHash("0x7e7e")
	dave := common.HexToAddress("0xda7e")
	f.w.Vault.CreateMarket(native, sim.Market{Collateral: venue.NativeAsset, CloseTime: f.clock.Now().Add(time.Hour)})
	require.NoError(t, f.w.Balances.MintCollateral(venue.NativeAsset, dave, u(1_000)))
	nativeOf := func(a common.Address) uint64 { return f.w.Balances.Collateral(venue.NativeAsset, a).Uint64() }
	bid := func(price uint16, amount uint64) Call {
		return func(b *Batch) error {
			_, err := b.Deposit(model.PoolKey{Market: native, Yes: true, Kind: model.Bid, Price: price}, u(amount))
			return err
		}
	}

	require.NoError(t, f.e.Multicall(f.ctx, dave, u(500), bid(5_000, 200), bid(4_000, 100)))
	assert.Equal(t, uint64(700), nativeOf(dave))
	assert.Equal(t, uint64(300), nativeOf(self))

	err := f.e.Multicall(f.ctx, dave, u(100), bid(5_000, 200))
	assert.ErrorIs(t, err, model.ErrBudgetExceeded)
	assert.Equal(t, model.KindTransfer, model.KindOf(err))
	assert.Equal(t, uint64(700), nativeOf(dave))

	_, err = f.e.DepositBid(f.ctx, dave, native, true, 5_000, u(30), u(50))
	require.NoError(t, err)
	assert.Equal(t, uint64(670), nativeOf(dave))

	_, err = f.e.DepositBid(f.ctx, dave, native, true, 5_000, u(30), u(5_000))
	assert.ErrorIs(t, err, model.ErrTransfer)

	// value sent alongside a non-native call comes straight back
	_, err = f.e.DepositBid(f.ctx, dave, native, true, 5_000, u(30), u(50))
	require.NoError(t, err)
	require.NoError(t, f.w.Balances.MintCollateral(usdc, dave, u(100)))
	_, err = f.e.DepositBid(f.ctx, dave, testMarket, true, 5_000, u(100), u(40))
	require.NoError(t, err)
	assert.Equal(t, uint64(640), nativeOf(dave))
	assert.Zero(t, f.usdc(dave))
}
