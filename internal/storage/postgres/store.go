package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pmrouter/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store provides Postgres persistence for events, pool state and window metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables the store writes to.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PutEvents inserts events, ignoring ids already stored.
func (s *Store) PutEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(`
			INSERT INTO engine_events (
				id, seq, event_type, ts, pool_id, market_id, is_yes, kind, price, to_price,
				actor, recipient, shares, collateral, units, source, levels
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
			ON CONFLICT (id) DO NOTHING
		`,
			ev.ID,
			int64(ev.Seq),
			string(ev.Type),
			ev.Timestamp,
			ev.PoolID.Hex(),
			ev.Market.Hex(),
			ev.Yes,
			ev.Kind.String(),
			int32(ev.Price),
			int32(ev.ToPrice),
			ev.Actor.Hex(),
			ev.Recipient.Hex(),
			nullableNumeric(ev.Shares),
			nullableNumeric(ev.Collateral),
			nullableNumeric(ev.Units),
			string(ev.Source),
			ev.Levels,
		)
	}
	return s.sendBatch(ctx, batch)
}

// UpsertPoolStates writes the latest state of each pool.
func (s *Store) UpsertPoolStates(ctx context.Context, pools []model.PoolRecord) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range pools {
		batch.Queue(`
			INSERT INTO pool_state (
				pool_id, market_id, is_yes, kind, price, total_capital, total_units,
				acc_proceeds_per_unit, proceeds_collected, proceeds_claimed, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
			ON CONFLICT (pool_id)
			DO UPDATE SET
				total_capital = EXCLUDED.total_capital,
				total_units = EXCLUDED.total_units,
				acc_proceeds_per_unit = EXCLUDED.acc_proceeds_per_unit,
				proceeds_collected = EXCLUDED.proceeds_collected,
				proceeds_claimed = EXCLUDED.proceeds_claimed,
				updated_at = now()
		`,
			p.Key.ID().Hex(),
			p.Key.Market.Hex(),
			p.Key.Yes,
			p.Key.Kind.String(),
			int32(p.Key.Price),
			p.TotalCapital,
			p.TotalUnits,
			p.AccProceedsPerUnit,
			p.ProceedsCollected,
			p.ProceedsClaimed,
		)
	}
	return s.sendBatch(ctx, batch)
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				pool_id, market_id, is_yes, kind, price, window_size_seconds, window_start_ts, window_end_ts,
				fill_count, unique_takers, shares_volume, collateral_volume, vwap_bps, last_seq, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now(),now())
			ON CONFLICT (pool_id, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				fill_count = EXCLUDED.fill_count,
				unique_takers = EXCLUDED.unique_takers,
				shares_volume = EXCLUDED.shares_volume,
				collateral_volume = EXCLUDED.collateral_volume,
				vwap_bps = EXCLUDED.vwap_bps,
				last_seq = EXCLUDED.last_seq,
				updated_at = now()
		`,
			m.PoolID.Hex(),
			m.Market.Hex(),
			m.Yes,
			m.Kind.String(),
			int32(m.Price),
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.FillCount),
			int64(m.UniqueTakers),
			m.SharesVolume,
			m.CollateralVolume,
			m.VWAPBps,
			int64(m.LastSeq),
		)
	}
	return s.sendBatch(ctx, batch)
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Watermark returns the stored position for name.
func (s *Store) Watermark(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("watermark name required")
	}
	var pos int64
	err := s.pool.QueryRow(ctx, `SELECT position FROM watermarks WHERE name = $1`, name).Scan(&pos)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("load watermark %s: %w", name, err)
	}
	return uint64(pos), true, nil
}

// SetWatermark upserts the position for name.
func (s *Store) SetWatermark(ctx context.Context, name string, position uint64) error {
	if name == "" {
		return fmt.Errorf("watermark name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO watermarks (name, position, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET position = EXCLUDED.position, updated_at = now()
	`, name, int64(position))
	if err != nil {
		return fmt.Errorf("save watermark %s: %w", name, err)
	}
	return nil
}

func nullableNumeric(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
