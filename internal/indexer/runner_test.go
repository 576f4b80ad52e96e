package indexer

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmrouter/internal/eventlog"
	"pmrouter/internal/model"
)

var router = common.HexToAddress("0x00000000000000000000000000000000000000e0")

type fakeSource struct {
	logs    []types.Log
	latest  uint64
	queries [][2]uint64
	failAt  uint64
}

func (f *fakeSource) GetChainID(context.Context) (*big.Int, error) { return big.NewInt(31337), nil }

func (f *fakeSource) LatestBlockNumber(context.Context) (uint64, error) { return f.latest, nil }

func (f *fakeSource) FilterLogs(_ context.Context, from, to uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	if f.failAt != 0 && from <= f.failAt && f.failAt <= to {
		return nil, errors.New("rpc unavailable")
	}
	f.queries = append(f.queries, [2]uint64{from, to})
	wantTopic := make(map[common.Hash]bool, len(topic0))
	for _, h := range topic0 {
		wantTopic[h] = true
	}
	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber < from || l.BlockNumber > to || l.Address != addresses[0] {
			continue
		}
		if len(wantTopic) > 0 && !wantTopic[l.Topics[0]] {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeSource) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1_700_000_000 + number*12, nil
}

type memoryLogs struct{ records []model.LogRecord }

func (m *memoryLogs) PutLogBatch(logs []model.LogRecord) error {
	m.records = append(m.records, logs...)
	return nil
}

func engineLog(t *testing.T, codec *eventlog.Codec, block uint64, index uint, typ model.EventType, price uint16) types.Log {
	t.Helper()
	key := model.PoolKey{Market: common.HexToHash("0x5151"), Yes: true, Kind: model.Ask, Price: price}
	rec, err := codec.Encode(model.Event{
		Type:       typ,
		Timestamp:  time.Unix(0, 0),
		PoolID:     key.ID(),
		Market:     key.Market,
		Yes:        true,
		Kind:       model.Ask,
		Price:      price,
		Actor:      common.HexToAddress("0xa11ce"),
		Recipient:  common.HexToAddress("0xb0b"),
		Shares:     "100",
		Collateral: "50",
	})
	require.NoError(t, err)

	topics := make([]common.Hash, 0, len(rec.Topics))
	for _, topic := range rec.Topics {
		topics = append(topics, common.HexToHash(topic))
	}
	data, err := hexutil.Decode(rec.Data)
	require.NoError(t, err)
	return types.Log{
		Address:     router,
		Topics:      topics,
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
		Index:       index,
	}
}

func TestRunnerSyncsEngineLogs(t *testing.T) {
	codec, err := eventlog.NewCodec(router)
	require.NoError(t, err)

	foreign := engineLog(t, codec, 11, 0, model.EventFill, 5_000)
	foreign.Address = common.HexToAddress("0xdead")
	removed := engineLog(t, codec, 12, 1, model.EventFill, 5_000)
	removed.Removed = true
	unrelated := engineLog(t, codec, 13, 2, model.EventFill, 5_000)
	unrelated.Topics[0] = common.HexToHash("0x1234")

	source := &fakeSource{
		latest: 14,
		logs: []types.Log{
			engineLog(t, codec, 10, 0, model.EventDeposit, 5_000),
			foreign,
			removed,
			engineLog(t, codec, 12, 0, model.EventFill, 5_000),
			unrelated,
			engineLog(t, codec, 14, 3, model.EventClaim, 5_000),
		},
	}
	sink := &memoryLogs{}
	cpPath := filepath.Join(t.TempDir(), "cp", "sync.json")
	runner := NewRunner(RunConfig{
		FromBlock:         10,
		Routers:           []common.Address{router},
		Topic0:            EngineTopics(codec),
		BatchSize:         2,
		CheckpointPath:    cpPath,
		CheckpointEnabled: true,
	}, source, sink, nil)

	require.NoError(t, runner.Run(context.Background()))
	assert.Equal(t, [][2]uint64{{10, 11}, {12, 13}, {14, 14}}, source.queries)
	require.Len(t, sink.records, 3)

	first := sink.records[0]
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(31337), first.ChainID)
	assert.Equal(t, uint64(10), first.BlockNumber)
	assert.Equal(t, uint64(1_700_000_120), first.Timestamp)
	assert.Equal(t, first.TxHash+":0", first.EventID)

	var got []model.EventType
	for _, rec := range sink.records {
		ev, err := codec.Decode(rec)
		require.NoError(t, err)
		got = append(got, ev.Type)
	}
	assert.Equal(t, []model.EventType{model.EventDeposit, model.EventFill, model.EventClaim}, got)

	cp, ok, err := NewCheckpointStore(cpPath, true).Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(14), cp.LastProcessedBlock)
	assert.Equal(t, uint64(3), cp.LastSeq)
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	codec, err := eventlog.NewCodec(router)
	require.NoError(t, err)

	source := &fakeSource{
		latest: 20,
		logs: []types.Log{
			engineLog(t, codec, 10, 0, model.EventDeposit, 4_000),
			engineLog(t, codec, 15, 0, model.EventFill, 4_000),
		},
		failAt: 15,
	}
	cpPath := filepath.Join(t.TempDir(), "sync.json")
	cfg := RunConfig{
		FromBlock:         10,
		Routers:           []common.Address{router},
		BatchSize:         5,
		CheckpointPath:    cpPath,
		CheckpointEnabled: true,
	}

	sink := &memoryLogs{}
	err = NewRunner(cfg, source, sink, nil).Run(context.Background())
	require.ErrorContains(t, err, "rpc unavailable")
	require.Len(t, sink.records, 1)

	source.failAt = 0
	source.queries = nil
	require.NoError(t, NewRunner(cfg, source, sink, nil).Run(context.Background()))
	assert.Equal(t, [][2]uint64{{15, 19}, {20, 20}}, source.queries)
	require.Len(t, sink.records, 2)
	assert.Equal(t, uint64(2), sink.records[1].Seq)
}

func TestRunnerValidatesConfig(t *testing.T) {
	source := &fakeSource{}
	sink := &memoryLogs{}

	err := NewRunner(RunConfig{BatchSize: 1}, source, sink, nil).Run(context.Background())
	require.ErrorContains(t, err, "router")

	err = NewRunner(RunConfig{Routers: []common.Address{router}}, source, sink, nil).Run(context.Background())
	require.ErrorContains(t, err, "batch size")

	err = NewRunner(RunConfig{BatchSize: 1, Routers: []common.Address{router}}, nil, sink, nil).Run(context.Background())
	require.ErrorContains(t, err, "log source")
}

func TestRunnerNothingToSync(t *testing.T) {
	source := &fakeSource{latest: 5}
	sink := &memoryLogs{}
	err := NewRunner(RunConfig{FromBlock: 9, BatchSize: 1, Routers: []common.Address{router}}, source, sink, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, source.queries)
}
