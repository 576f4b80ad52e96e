package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmrouter/internal/eventlog"
	"pmrouter/internal/model"
	"pmrouter/internal/storage"
)

func TestLogDecoderSortsRecords(t *testing.T) {
	emitter := common.HexToAddress(defaultSelf)
	codec, err := eventlog.NewCodec(emitter)
	require.NoError(t, err)

	key := model.PoolKey{Market: common.HexToHash("0x5151"), Yes: true, Kind: model.Ask, Price: 5_000}
	ev := model.Event{
		ID: "e1", Seq: 1, Type: model.EventFill, Timestamp: time.Unix(1_700_000_000, 0).UTC(),
		PoolID: key.ID(), Market: key.Market, Yes: true, Kind: model.Ask, Price: key.Price,
		Actor: common.HexToAddress("0xa11ce"), Recipient: common.HexToAddress("0xa11ce"),
		Shares: "400", Collateral: "200", Source: model.SourcePool,
	}
	good, err := codec.Encode(ev)
	require.NoError(t, err)
	foreign := good
	foreign.Address = common.HexToAddress("0xdead").Hex()
	unknown := good
	unknown.Topics = []string{common.HexToHash("0x1234").Hex()}
	broken := good
	broken.Data = "0x00"

	dir := t.TempDir()
	in := filepath.Join(dir, "logs.jsonl")
	require.NoError(t, storage.NewJsonlStorage(in).PutLogBatch([]model.LogRecord{good, foreign, unknown, broken, {Seq: 9}}))
	f, err := os.OpenFile(in, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	d := &logDecoder{
		codec:   codec,
		emitter: emitter.Hex(),
		out:     storage.NewJsonlStorage(filepath.Join(dir, "events.jsonl")),
		errOut:  storage.NewJsonlStorage(filepath.Join(dir, "errors.jsonl")),
	}
	require.NoError(t, storage.ScanJSONL(context.Background(), in, d.handle))
	require.NoError(t, d.flush())

	assert.Equal(t, 6, d.total)
	assert.Equal(t, 1, d.decoded)
	assert.Equal(t, 2, d.skipped)
	assert.Equal(t, 3, d.failed)

	events, err := storage.ReadEvents(filepath.Join(dir, "events.jsonl"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].ID)
	assert.Equal(t, "400", events[0].Shares)

	var errs []model.DecodeError
	require.NoError(t, storage.ScanJSONL(context.Background(), filepath.Join(dir, "errors.jsonl"),
		func(_ int, e model.DecodeError, decodeErr error) error {
			require.NoError(t, decodeErr)
			errs = append(errs, e)
			return nil
		}))
	require.Len(t, errs, 3)
	assert.Equal(t, "e1", errs[0].EventID)
	assert.Equal(t, uint64(9), errs[1].Seq)
	assert.Contains(t, errs[2].Error, "line 6")
}

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "alice@db:5432/pm", redactDSN("postgres://alice:secret@db:5432/pm"))
	assert.Empty(t, redactDSN(""))
}
