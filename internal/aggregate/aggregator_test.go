package aggregate

import (
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pmrouter/internal/model"
)

type memoryWriter struct {
	calls   int
	windows map[string]model.PoolWindowMetrics
}

func (w *memoryWriter) UpsertWindowMetrics(_ context.Context, metrics []model.PoolWindowMetrics) error {
	w.calls++
	if w.windows == nil {
		w.windows = make(map[string]model.PoolWindowMetrics)
	}
	for _, m := range metrics {
		w.windows[m.PoolID.Hex()+"@"+m.WindowStart.Format(time.RFC3339)] = m
	}
	return nil
}

func writeEvents(t *testing.T, path string, events []model.Event, extra ...string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	for _, ev := range events {
		line, err := json.Marshal(ev)
		require.NoError(t, err)
		_, err = f.Write(append(line, '\n'))
		require.NoError(t, err)
	}
	for _, line := range extra {
		_, err := f.WriteString(line + "\n")
		require.NoError(t, err)
	}
}

func TestAggregatorBuildsFillWindows(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	market := common.HexToHash("0x5151")
	askKey := model.PoolKey{Market: market, Yes: true, Kind: model.Ask, Price: 5000}
	bidKey := model.PoolKey{Market: market, Yes: false, Kind: model.Bid, Price: 4000}
	fill := func(seq uint64, key model.PoolKey, at time.Duration, shares, collateral string) model.Event {
		return model.Event{
			ID: "e", Seq: seq, Type: model.EventFill, Timestamp: t0.Add(at),
			PoolID: key.ID(), Market: key.Market, Yes: key.Yes, Kind: key.Kind, Price: key.Price,
			Shares: shares, Collateral: collateral,
		}
	}

	dir := t.TempDir()
	input := filepath.Join(dir, "events.jsonl")
	writeEvents(t, input, []model.Event{
		{Seq: 1, Type: model.EventDeposit, Timestamp: t0.Add(5 * time.Second), PoolID: askKey.ID(), Shares: "1000"},
		fill(2, askKey, 10*time.Second, "400", "200"),
		fill(3, askKey, 20*time.Second, "100", "50"),
		fill(4, bidKey, 30*time.Second, "550", "200"),
		fill(5, askKey, time.Hour+100*time.Second, "200", "100"),
	}, "{not json")

	writer := &memoryWriter{}
	state := &FileWatermark{Path: filepath.Join(dir, "state", "aggregate.json")}
	agg := NewAggregator(Config{WindowSeconds: 3600, BatchSize: 10, Watermark: state}, writer, zaptest.NewLogger(t))
	require.NoError(t, agg.Run(context.Background(), input))

	require.Len(t, writer.windows, 3)
	first := writer.windows[askKey.ID().Hex()+"@"+t0.Format(time.RFC3339)]
	require.Equal(t, uint64(2), first.FillCount)
	require.Equal(t, "500", first.SharesVolume)
	require.Equal(t, "250", first.CollateralVolume)
	require.NotNil(t, first.VWAPBps)
	require.Equal(t, "5000.0000", *first.VWAPBps)
	require.Equal(t, t0.Add(time.Hour), first.WindowEnd)
	require.Equal(t, uint16(5000), first.Price)
	require.Equal(t, uint64(1), first.UniqueTakers)
	require.Equal(t, uint64(3), first.LastSeq)

	second := writer.windows[askKey.ID().Hex()+"@"+t0.Add(time.Hour).Format(time.RFC3339)]
	require.Equal(t, uint64(1), second.FillCount)

	bid := writer.windows[bidKey.ID().Hex()+"@"+t0.Format(time.RFC3339)]
	require.Equal(t, model.Bid, bid.Kind)
	require.False(t, bid.Yes)
	require.Equal(t, "3636.3636", *bid.VWAPBps)

	last, ok, err := state.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(t0.Add(time.Hour+100*time.Second).Unix()), last)

	// a rerun over the same input finds nothing new
	calls := writer.calls
	rerun := NewAggregator(Config{WindowSeconds: 3600, Watermark: state}, writer, nil)
	require.NoError(t, rerun.Run(context.Background(), input))
	require.Equal(t, calls, writer.calls)
}

func TestAggregatorBatchesKeepOpenWindowsReplayable(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	key := model.PoolKey{Market: common.HexToHash("0x5151"), Yes: true, Kind: model.Ask, Price: 2500}
	var events []model.Event
	for i := 0; i < 3; i++ {
		events = append(events, model.Event{
			Seq: uint64(i + 1), Type: model.EventFill, Timestamp: t0.Add(time.Duration(i) * time.Minute),
			PoolID: key.ID(), Market: key.Market, Yes: true, Kind: model.Ask, Price: key.Price,
			Actor: common.BigToAddress(big.NewInt(int64(i % 2))), Shares: "100", Collateral: "25",
		})
	}
	dir := t.TempDir()
	input := filepath.Join(dir, "events.jsonl")
	writeEvents(t, input, events)

	writer := &memoryWriter{}
	mark := &recordingWatermark{}
	agg := NewAggregator(Config{WindowSeconds: 60, BatchSize: 1, Watermark: mark}, writer, nil)
	require.NoError(t, agg.Run(context.Background(), input))

	require.Len(t, writer.windows, 3)
	// each mid-run save stops short of the window still being filled
	require.Equal(t, []uint64{uint64(t0.Unix()) + 59, uint64(t0.Unix()) + 119, uint64(t0.Unix()) + 120}, mark.saved)
}

type recordingWatermark struct{ saved []uint64 }

func (w *recordingWatermark) Load(context.Context) (uint64, bool, error) { return 0, false, nil }

func (w *recordingWatermark) Save(_ context.Context, ts uint64) error {
	w.saved = append(w.saved, ts)
	return nil
}

func TestAggregatorRequiresWindow(t *testing.T) {
	agg := NewAggregator(Config{}, &memoryWriter{}, nil)
	require.Error(t, agg.Run(context.Background(), "missing.jsonl"))

	agg = NewAggregator(Config{WindowSeconds: 60}, nil, nil)
	require.Error(t, agg.Run(context.Background(), "missing.jsonl"))
}

func TestComputeVWAPBps(t *testing.T) {
	require.Nil(t, computeVWAPBps(nil, nil))
	require.Equal(t, "2500.0000", *computeVWAPBps(bigInt(25), bigInt(100)))
}

func bigInt(v int64) *big.Int { return big.NewInt(v) }
