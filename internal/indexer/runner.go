package indexer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"pmrouter/internal/model"
	"pmrouter/internal/storage"
)

// LogSource is the chain surface the runner reads from. *chain.Client satisfies it.
type LogSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// RunConfig holds runtime settings for a log sync.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Routers           []common.Address
	Topic0            []common.Hash
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
}

// Runner copies engine logs emitted by deployed routers into a log sink, one block
// range at a time, checkpointing after every range.
type Runner struct {
	cfg        RunConfig
	source     LogSource
	storage    storage.Storage
	logger     *zap.Logger
	seen       map[string]struct{}
	checkpoint *CheckpointStore
	seq        uint64
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, source LogSource, sink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		source:     source,
		storage:    sink,
		logger:     logger,
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run syncs [FromBlock, ToBlock]. A zero ToBlock means the latest block.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("log source is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Routers) == 0 {
		return fmt.Errorf("at least one router address is required")
	}

	chainID, err := r.source.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.source.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return err
	}
	if ok && cp.LastProcessedBlock >= from {
		from = cp.LastProcessedBlock + 1
		r.seq = cp.LastSeq
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		logs, err := r.source.FilterLogs(ctx, blockRange.From, blockRange.To, r.cfg.Routers, r.cfg.Topic0)
		if err != nil {
			return fmt.Errorf("filter logs %d-%d: %w", blockRange.From, blockRange.To, err)
		}

		records := make([]model.LogRecord, 0, len(logs))
		for _, log := range logs {
			if log.Removed {
				r.logger.Debug("skip removed log", zap.String("tx_hash", log.TxHash.Hex()), zap.Uint("log_index", log.Index))
				continue
			}
			if r.isDuplicate(log) {
				continue
			}
			ts, err := r.source.BlockTimestamp(ctx, log.BlockNumber)
			if err != nil {
				return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			r.seq++
			records = append(records, buildLogRecord(chainID.Uint64(), r.seq, log, ts))
		}

		if len(records) > 0 {
			if err := r.storage.PutLogBatch(records); err != nil {
				return fmt.Errorf("store logs: %w", err)
			}
		}
		if err := r.checkpoint.Save(blockRange.To, r.seq); err != nil {
			return err
		}

		r.logger.Info("range synced", zap.Int("logs", len(records)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return nil
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := logID(log)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
