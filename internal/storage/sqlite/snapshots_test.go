package sqlite

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"pmrouter/internal/model"
)

func sampleSnapshot() model.Snapshot {
	market := common.HexToHash("0x5151")
	ask := model.PoolKey{Market: market, Yes: true, Kind: model.Ask, Price: 5000}
	bid := model.PoolKey{Market: market, Yes: false, Kind: model.Bid, Price: 4000}
	return model.Snapshot{
		Pools: []model.PoolRecord{
			{Key: ask, TotalCapital: "600", TotalUnits: "1000", AccProceedsPerUnit: "200000000000000000", ProceedsCollected: "200", ProceedsClaimed: "0"},
			{Key: bid, TotalCapital: "0", TotalUnits: "400", AccProceedsPerUnit: "2500000000000000000", ProceedsCollected: "1000", ProceedsClaimed: "1000"},
		},
		Positions: []model.PositionRecord{
			{Key: ask, Owner: common.HexToAddress("0xa1"), Units: "1000", ProceedsDebt: "0"},
			{Key: bid, Owner: common.HexToAddress("0xb2"), Units: "400", ProceedsDebt: "1000"},
		},
	}
}

func TestSnapshotSaveLoad(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	_, found, err := store.Load(ctx, "main")
	require.NoError(t, err)
	require.False(t, found)

	snap := sampleSnapshot()
	require.NoError(t, store.Save(ctx, "main", snap))

	got, found, err := store.Load(ctx, "main")
	require.NoError(t, err)
	require.True(t, found)
	require.ElementsMatch(t, snap.Pools, got.Pools)
	require.ElementsMatch(t, snap.Positions, got.Positions)
}

func TestSnapshotSaveReplaces(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	snap := sampleSnapshot()
	require.NoError(t, store.Save(ctx, "main", snap))
	require.NoError(t, store.Save(ctx, "other", snap))

	snap.Pools = snap.Pools[:1]
	snap.Positions = snap.Positions[:1]
	require.NoError(t, store.Save(ctx, "main", snap))

	got, _, err := store.Load(ctx, "main")
	require.NoError(t, err)
	require.Len(t, got.Pools, 1)
	require.Len(t, got.Positions, 1)

	other, _, err := store.Load(ctx, "other")
	require.NoError(t, err)
	require.Len(t, other.Pools, 2)

	require.Error(t, store.Save(ctx, "", snap))
}
