// Package sqlite persists engine snapshots in an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"

	"pmrouter/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshot_pools (
    name                  TEXT    NOT NULL,
    market_id             TEXT    NOT NULL,
    is_yes                INTEGER NOT NULL,
    kind                  TEXT    NOT NULL,
    price                 INTEGER NOT NULL,
    total_capital         TEXT    NOT NULL,
    total_units           TEXT    NOT NULL,
    acc_proceeds_per_unit TEXT    NOT NULL,
    proceeds_collected    TEXT    NOT NULL,
    proceeds_claimed      TEXT    NOT NULL,
    PRIMARY KEY (name, market_id, is_yes, kind, price)
);

CREATE TABLE IF NOT EXISTS snapshot_positions (
    name          TEXT    NOT NULL,
    market_id     TEXT    NOT NULL,
    is_yes        INTEGER NOT NULL,
    kind          TEXT    NOT NULL,
    price         INTEGER NOT NULL,
    owner         TEXT    NOT NULL,
    units         TEXT    NOT NULL,
    proceeds_debt TEXT    NOT NULL,
    PRIMARY KEY (name, market_id, is_yes, kind, price, owner)
);
`

// SnapshotStore saves and loads named engine snapshots.
type SnapshotStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" works for tests.
func Open(path string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// Save replaces the snapshot stored under name.
func (s *SnapshotStore) Save(ctx context.Context, name string, snap model.Snapshot) error {
	if name == "" {
		return fmt.Errorf("snapshot name required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_pools WHERE name = ?`, name); err != nil {
		return fmt.Errorf("clear pools: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_positions WHERE name = ?`, name); err != nil {
		return fmt.Errorf("clear positions: %w", err)
	}

	poolStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_pools (name, market_id, is_yes, kind, price,
			total_capital, total_units, acc_proceeds_per_unit, proceeds_collected, proceeds_claimed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer poolStmt.Close()
	for _, p := range snap.Pools {
		if _, err := poolStmt.ExecContext(ctx, name, p.Key.Market.Hex(), boolToInt(p.Key.Yes), p.Key.Kind.String(), p.Key.Price,
			p.TotalCapital, p.TotalUnits, p.AccProceedsPerUnit, p.ProceedsCollected, p.ProceedsClaimed); err != nil {
			return fmt.Errorf("insert pool %s: %w", p.Key, err)
		}
	}

	posStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_positions (name, market_id, is_yes, kind, price, owner, units, proceeds_debt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer posStmt.Close()
	for _, p := range snap.Positions {
		if _, err := posStmt.ExecContext(ctx, name, p.Key.Market.Hex(), boolToInt(p.Key.Yes), p.Key.Kind.String(), p.Key.Price,
			p.Owner.Hex(), p.Units, p.ProceedsDebt); err != nil {
			return fmt.Errorf("insert position %s/%s: %w", p.Key, p.Owner.Hex(), err)
		}
	}

	return tx.Commit()
}

// Load returns the snapshot stored under name. found is false when nothing was saved.
func (s *SnapshotStore) Load(ctx context.Context, name string) (model.Snapshot, bool, error) {
	var snap model.Snapshot

	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, is_yes, kind, price, total_capital, total_units,
			acc_proceeds_per_unit, proceeds_collected, proceeds_claimed
		FROM snapshot_pools WHERE name = ?
		ORDER BY market_id, is_yes, kind, price`, name)
	if err != nil {
		return snap, false, err
	}
	for rows.Next() {
		var (
			rec    model.PoolRecord
			market string
			yes    int
			kind   string
		)
		if err := rows.Scan(&market, &yes, &kind, &rec.Key.Price, &rec.TotalCapital, &rec.TotalUnits,
			&rec.AccProceedsPerUnit, &rec.ProceedsCollected, &rec.ProceedsClaimed); err != nil {
			rows.Close()
			return snap, false, err
		}
		if rec.Key, err = poolKey(market, yes, kind, rec.Key.Price); err != nil {
			rows.Close()
			return snap, false, err
		}
		snap.Pools = append(snap.Pools, rec)
	}
	if err := closeRows(rows); err != nil {
		return snap, false, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT market_id, is_yes, kind, price, owner, units, proceeds_debt
		FROM snapshot_positions WHERE name = ?
		ORDER BY market_id, is_yes, kind, price, owner`, name)
	if err != nil {
		return snap, false, err
	}
	for rows.Next() {
		var (
			rec    model.PositionRecord
			market string
			yes    int
			kind   string
			price  uint16
			owner  string
		)
		if err := rows.Scan(&market, &yes, &kind, &price, &owner, &rec.Units, &rec.ProceedsDebt); err != nil {
			rows.Close()
			return snap, false, err
		}
		if rec.Key, err = poolKey(market, yes, kind, price); err != nil {
			rows.Close()
			return snap, false, err
		}
		if !common.IsHexAddress(owner) {
			rows.Close()
			return snap, false, fmt.Errorf("bad owner %q", owner)
		}
		rec.Owner = common.HexToAddress(owner)
		snap.Positions = append(snap.Positions, rec)
	}
	if err := closeRows(rows); err != nil {
		return snap, false, err
	}

	return snap, len(snap.Pools) > 0 || len(snap.Positions) > 0, nil
}

func poolKey(market string, yes int, kind string, price uint16) (model.PoolKey, error) {
	k, err := model.ParsePoolKind(kind)
	if err != nil {
		return model.PoolKey{}, err
	}
	return model.PoolKey{Market: common.HexToHash(market), Yes: yes != 0, Kind: k, Price: price}, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
