package aggregate

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pmrouter/internal/model"
	"pmrouter/internal/storage"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	// RecomputeFrom, when set, overrides the watermark: fills at or after it are folded again.
	RecomputeFrom uint64
	Watermark     Watermark
}

// MetricsWriter persists finished windows.
type MetricsWriter interface {
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Aggregator folds fill events into per-pool window metrics.
type Aggregator struct {
	cfg    Config
	store  MetricsWriter
	logger *zap.Logger
	open   map[common.Hash]*Accumulator
}

type runStats struct {
	lines, fills, windows, skipped, failed int
}

func NewAggregator(cfg Config, store MetricsWriter, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &Aggregator{
		cfg:    cfg,
		store:  store,
		logger: logger,
		open:   make(map[common.Hash]*Accumulator),
	}
}

// Run folds every fill in an engine events JSONL file that is newer than the watermark.
// Undecodable lines and malformed fills are counted and skipped.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.store == nil {
		return fmt.Errorf("store is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}

	after, err := a.startAfter(ctx)
	if err != nil {
		return err
	}

	var stats runStats
	pending := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	newest := after

	err = storage.ScanJSONL(ctx, inputPath, func(line int, ev model.Event, decodeErr error) error {
		stats.lines++
		if decodeErr != nil {
			stats.failed++
			a.logger.Warn("decode event", zap.Int("line", line), zap.Error(decodeErr))
			return nil
		}
		if ev.Type != model.EventFill {
			return nil
		}
		ts := uint64(ev.Timestamp.Unix())
		if ts <= after {
			stats.skipped++
			return nil
		}

		closed, err := a.add(ev, ts)
		if closed != nil {
			pending = append(pending, *closed)
			stats.windows++
		}
		if err != nil {
			stats.failed++
			a.logger.Warn("aggregate fill", zap.Error(err), zap.String("pool", ev.PoolID.Hex()), zap.String("event", ev.ID))
			return nil
		}
		stats.fills++
		newest = max(newest, ts)

		if len(pending) < a.cfg.BatchSize {
			return nil
		}
		if err := a.flush(ctx, pending, a.safePoint(after)); err != nil {
			return err
		}
		pending = pending[:0]
		return nil
	})
	if err != nil {
		return err
	}

	for id, acc := range a.open {
		pending = append(pending, acc.Metrics(a.cfg.WindowSeconds))
		stats.windows++
		delete(a.open, id)
	}
	if err := a.flush(ctx, pending, newest); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("lines", stats.lines),
		zap.Int("fills", stats.fills),
		zap.Int("windows", stats.windows),
		zap.Int("skipped", stats.skipped),
		zap.Int("failed", stats.failed),
		zap.Uint64("watermark", newest),
	)
	return nil
}

// add routes a fill to its pool's open window, closing the previous window when the
// fill falls into a new one.
func (a *Aggregator) add(ev model.Event, ts uint64) (*model.PoolWindowMetrics, error) {
	start := ts - ts%a.cfg.WindowSeconds

	var closed *model.PoolWindowMetrics
	acc := a.open[ev.PoolID]
	if acc != nil && acc.WindowStart != start {
		m := acc.Metrics(a.cfg.WindowSeconds)
		closed = &m
		acc = nil
	}
	if acc == nil {
		acc = NewAccumulator(ev, start, start+a.cfg.WindowSeconds)
		a.open[ev.PoolID] = acc
	}
	return closed, acc.AddFill(ev)
}

func (a *Aggregator) flush(ctx context.Context, pending []model.PoolWindowMetrics, watermark uint64) error {
	if len(pending) > 0 {
		if err := a.store.UpsertWindowMetrics(ctx, pending); err != nil {
			return fmt.Errorf("upsert windows: %w", err)
		}
	}
	if a.cfg.Watermark == nil {
		return nil
	}
	return a.cfg.Watermark.Save(ctx, watermark)
}

func (a *Aggregator) startAfter(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.Watermark == nil {
		return 0, nil
	}
	ts, _, err := a.cfg.Watermark.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load watermark: %w", err)
	}
	return ts, nil
}

// safePoint is the newest timestamp that no open window still covers. Open windows are
// rebuilt from scratch on the next run.
func (a *Aggregator) safePoint(fallback uint64) uint64 {
	var oldest uint64
	for _, acc := range a.open {
		if oldest == 0 || acc.WindowStart < oldest {
			oldest = acc.WindowStart
		}
	}
	if oldest == 0 {
		return fallback
	}
	return max(oldest-1, fallback)
}
