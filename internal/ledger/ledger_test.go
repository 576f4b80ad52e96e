package ledger

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmrouter/internal/fixed"
	"pmrouter/internal/model"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestAskScenario(t *testing.T) {
	var pool model.Pool
	var lp model.Position

	units, err := Deposit(&pool, &lp, u(1000))
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), units.Uint64())
	assert.Equal(t, uint64(1000), pool.TotalCapital.Uint64())
	assert.Equal(t, uint64(1000), pool.TotalUnits.Uint64())

	cost, err := fixed.SharesToCollateralUp(u(400), 5000)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), cost.Uint64())

	require.NoError(t, Fill(&pool, u(400), cost))
	assert.Equal(t, uint64(600), pool.TotalCapital.Uint64())

	wantAcc, err := fixed.MulDiv(u(200), fixed.Scale, u(1000))
	require.NoError(t, err)
	assert.True(t, wantAcc.Eq(&pool.AccProceedsPerUnit))

	claimed, err := Claim(&pool, &lp)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), claimed.Uint64())
}

func TestClaimTwiceReturnsZero(t *testing.T) {
	var pool model.Pool
	var lp model.Position
	_, err := Deposit(&pool, &lp, u(777))
	require.NoError(t, err)
	require.NoError(t, Fill(&pool, u(100), u(55)))

	first, err := Claim(&pool, &lp)
	require.NoError(t, err)
	assert.False(t, first.IsZero())

	second, err := Claim(&pool, &lp)
	require.NoError(t, err)
	assert.True(t, second.IsZero())
}

func TestRoundTrip(t *testing.T) {
	var pool model.Pool
	var first model.Position
	_, err := Deposit(&pool, &first, u(1000))
	require.NoError(t, err)
	out, _, err := Withdraw(&pool, &first, new(uint256.Int))
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), out.Uint64())
	assert.Equal(t, model.PoolClosed, pool.State())

	// non-empty pool with an awkward exchange rate
	var a, b model.Position
	_, err = Deposit(&pool, &a, u(1000))
	require.NoError(t, err)
	require.NoError(t, Fill(&pool, u(333), u(1)))
	_, err = Deposit(&pool, &b, u(1000))
	require.NoError(t, err)
	out, _, err = Withdraw(&pool, &b, new(uint256.Int))
	require.NoError(t, err)
	assert.LessOrEqual(t, out.Uint64(), uint64(1000))
}

func TestFairDistribution(t *testing.T) {
	var pool model.Pool
	var big, small model.Position
	_, err := Deposit(&pool, &big, u(3000))
	require.NoError(t, err)
	_, err = Deposit(&pool, &small, u(1000))
	require.NoError(t, err)

	require.NoError(t, Fill(&pool, u(2000), u(1_000_003)))

	bigClaim, err := Claim(&pool, &big)
	require.NoError(t, err)
	smallClaim, err := Claim(&pool, &small)
	require.NoError(t, err)

	diff := int64(bigClaim.Uint64()) - 3*int64(smallClaim.Uint64())
	assert.LessOrEqual(t, abs(diff), int64(3))
	assert.LessOrEqual(t, bigClaim.Uint64()+smallClaim.Uint64(), uint64(1_000_003))
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestDepositRejections(t *testing.T) {
	var pool model.Pool
	var lp, late model.Position

	_, err := Deposit(&pool, &lp, new(uint256.Int))
	assert.ErrorIs(t, err, model.ErrZeroAmount)

	_, err = Deposit(&pool, &lp, u(10))
	require.NoError(t, err)
	require.NoError(t, Fill(&pool, u(10), u(5)))
	assert.Equal(t, model.PoolDepleted, pool.State())

	_, err = Deposit(&pool, &late, u(10))
	assert.ErrorIs(t, err, model.ErrDepletedPool)

	var dusty model.Pool
	var whale, minnow model.Position
	_, err = Deposit(&dusty, &whale, u(1000))
	require.NoError(t, err)
	require.NoError(t, Fill(&dusty, u(999), new(uint256.Int)))
	_, err = Deposit(&dusty, &minnow, new(uint256.Int).SetAllOne())
	assert.ErrorIs(t, err, model.ErrOverflow)
	assert.True(t, minnow.IsZero())
}

func TestDustDepositIsRejected(t *testing.T) {
	var pool model.Pool
	var a, b model.Position
	_, err := Deposit(&pool, &a, u(10))
	require.NoError(t, err)
	// inflate capital relative to units: a deposit of 1 at 10 capital per unit floors to zero units
	pool.TotalCapital.SetUint64(100)
	_, err = Deposit(&pool, &b, u(9))
	assert.ErrorIs(t, err, model.ErrDustDeposit)
}

func TestWithdrawPreservesPendingProceeds(t *testing.T) {
	var pool model.Pool
	var a, b model.Position
	_, err := Deposit(&pool, &a, u(1000))
	require.NoError(t, err)
	_, err = Deposit(&pool, &b, u(1000))
	require.NoError(t, err)
	require.NoError(t, Fill(&pool, u(500), u(400)))

	pendingBefore, err := Pending(&pool, &a)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), pendingBefore.Uint64())

	out, burned, err := Withdraw(&pool, &a, u(300))
	require.NoError(t, err)
	assert.Equal(t, uint64(300), out.Uint64())
	assert.Equal(t, uint64(400), burned.Uint64())

	// the 600 remaining units keep their 120; the burned units' share is forfeited,
	// which is why withdrawals claim first.
	pendingAfter, err := Pending(&pool, &a)
	require.NoError(t, err)
	assert.Equal(t, uint64(120), pendingAfter.Uint64())
}

func TestClaimThenWithdrawKeepsFullShare(t *testing.T) {
	var pool model.Pool
	var a, b model.Position
	_, err := Deposit(&pool, &a, u(1000))
	require.NoError(t, err)
	_, err = Deposit(&pool, &b, u(1000))
	require.NoError(t, err)
	require.NoError(t, Fill(&pool, u(500), u(400)))

	claimed, err := Claim(&pool, &a)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), claimed.Uint64())

	_, _, err = Withdraw(&pool, &a, u(300))
	require.NoError(t, err)
	require.NoError(t, Fill(&pool, u(100), u(100)))

	// a holds 600 of 1600 units after the burn
	pending, err := Pending(&pool, &a)
	require.NoError(t, err)
	assert.Equal(t, uint64(37), pending.Uint64())
}

func TestWithdrawLimits(t *testing.T) {
	var pool model.Pool
	var lp, stranger model.Position
	_, err := Deposit(&pool, &lp, u(100))
	require.NoError(t, err)

	_, _, err = Withdraw(&pool, &stranger, new(uint256.Int))
	assert.ErrorIs(t, err, model.ErrNoUnits)

	_, _, err = Withdraw(&pool, &lp, u(101))
	assert.ErrorIs(t, err, model.ErrExceedsPosition)

	require.NoError(t, Fill(&pool, u(100), u(60)))
	_, _, err = Withdraw(&pool, &lp, new(uint256.Int))
	assert.ErrorIs(t, err, model.ErrDepletedPool)
}

func TestExitDepleted(t *testing.T) {
	var pool model.Pool
	var a, b model.Position
	_, err := Deposit(&pool, &a, u(300))
	require.NoError(t, err)
	_, err = Deposit(&pool, &b, u(100))
	require.NoError(t, err)

	_, _, err = ExitDepleted(&pool, &a)
	assert.ErrorIs(t, err, model.ErrNotDepleted)

	require.NoError(t, Fill(&pool, u(400), u(200)))

	proceeds, burned, err := ExitDepleted(&pool, &a)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), proceeds.Uint64())
	assert.Equal(t, uint64(300), burned.Uint64())
	assert.Equal(t, model.PoolDepleted, pool.State())

	proceeds, _, err = ExitDepleted(&pool, &b)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), proceeds.Uint64())
	assert.Equal(t, model.PoolClosed, pool.State())

	_, _, err = ExitDepleted(&pool, &b)
	assert.ErrorIs(t, err, model.ErrNoUnits)
}

// FuzzConservation drives random deposit/fill/claim/withdraw sequences over a
// handful of holders and checks the ledger invariants after every step.
func FuzzConservation(f *testing.F) {
	f.Add([]byte{0, 10, 1, 20, 2, 5, 3, 0, 4, 7, 0, 1})
	f.Add([]byte{0, 255, 0, 255, 2, 255, 5, 0, 5, 1, 0, 3})
	f.Add([]byte{0, 1, 2, 1, 1, 1, 4, 0, 3, 2})

	f.Fuzz(func(t *testing.T, ops []byte) {
		var pool model.Pool
		holders := make([]model.Position, 4)
		var paidOut uint256.Int

		for i := 0; i+1 < len(ops); i += 2 {
			op, arg := ops[i]%6, uint64(ops[i+1])
			h := &holders[int(ops[i+1])%len(holders)]
			accBefore := pool.AccProceedsPerUnit

			switch op {
			case 0, 1:
				_, _ = Deposit(&pool, h, u(arg*37+1))
			case 2:
				take := arg * 3
				if take > pool.TotalCapital.Uint64() {
					take = pool.TotalCapital.Uint64()
				}
				_ = Fill(&pool, u(take), u(arg*11))
			case 3:
				if amt, err := Claim(&pool, h); err == nil {
					paidOut.Add(&paidOut, amt)
				}
			case 4:
				_, _, _ = Withdraw(&pool, h, u(arg))
			case 5:
				if amt, _, err := ExitDepleted(&pool, h); err == nil {
					paidOut.Add(&paidOut, amt)
				}
			}

			var sum uint256.Int
			for j := range holders {
				sum.Add(&sum, &holders[j].Units)
			}
			require.True(t, sum.Eq(&pool.TotalUnits), "units %s != total %s", sum.Dec(), pool.TotalUnits.Dec())
			require.False(t, pool.AccProceedsPerUnit.Lt(&accBefore), "accumulator decreased")
			if pool.TotalUnits.IsZero() {
				require.True(t, pool.TotalCapital.IsZero(), "capital without units")
			}
			require.False(t, paidOut.Gt(&pool.ProceedsCollected), "paid more than collected")
		}
	})
}

func TestTopUpCannotClaimEarlierProceeds(t *testing.T) {
	var pool model.Pool
	var alice, bob model.Position
	_, err := Deposit(&pool, &alice, u(1))
	require.NoError(t, err)
	_, err = Deposit(&pool, &bob, u(2))
	require.NoError(t, err)

	// one unit of proceeds over three units leaves a fractional accumulator
	require.NoError(t, Fill(&pool, u(1), u(1)))
	require.Equal(t, "333333333333333333", pool.AccProceedsPerUnit.Dec())

	units, err := Deposit(&pool, &alice, u(4))
	require.NoError(t, err)
	require.Equal(t, uint64(6), units.Uint64())

	floorDebt, err := fixed.MulDiv(units, &pool.AccProceedsPerUnit, fixed.Scale)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), floorDebt.Uint64())
	assert.Equal(t, uint64(2), alice.ProceedsDebt.Uint64())

	pending, err := Pending(&pool, &alice)
	require.NoError(t, err)
	assert.True(t, pending.IsZero(), "pending %s", pending.Dec())
	claimed, err := Claim(&pool, &alice)
	require.NoError(t, err)
	assert.True(t, claimed.IsZero())
	assert.Equal(t, uint64(1), pool.Unclaimed().Uint64())
}
