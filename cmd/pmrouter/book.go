package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pmrouter/internal/config"
	"pmrouter/internal/engine"
	"pmrouter/internal/journal"
	"pmrouter/internal/storage/sqlite"
	"pmrouter/internal/venue/sim"
)

func runBook(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadBook(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	decimals, _ := cmd.Flags().GetInt("decimals")

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	db, err := sqlite.Open(cfg.SnapshotDB)
	if err != nil {
		return err
	}
	defer db.Close()

	snap, found, err := db.Load(ctx, cfg.SnapshotName)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("snapshot %q not found in %s", cfg.SnapshotName, cfg.SnapshotDB)
	}

	// the ledger is read-only here; the simulated venues only satisfy the constructor
	j := journal.New()
	w := sim.NewWorld(j, time.Now, sim.DefaultBootstrapConfig(), sim.DefaultFeeConfig())
	e, err := engine.New(engine.Config{Self: common.HexToAddress(defaultSelf)}, engine.Collaborators{
		Vault:      w.Vault,
		Collateral: w.Balances,
	}, j, nil, logger)
	if err != nil {
		return err
	}
	if err := e.Restore(snap); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}

	logger.Info("snapshot loaded",
		zap.String("name", cfg.SnapshotName),
		zap.Int("pools", len(snap.Pools)),
		zap.Int("positions", len(snap.Positions)),
	)

	out := cmd.OutOrStdout()
	if cfg.Market == "" {
		pools := make([]engine.PoolInfo, 0, len(snap.Pools))
		for _, p := range snap.Pools {
			pools = append(pools, e.PoolInfo(p.Key))
		}
		printPools(out, pools, decimals)
		return nil
	}

	market, err := config.ParseHash(cfg.Market)
	if err != nil {
		return err
	}
	printBook(out, "YES "+market.Hex(), e.GetOrderbook(market, true, cfg.Depth), decimals)
	printBook(out, "NO "+market.Hex(), e.GetOrderbook(market, false, cfg.Depth), decimals)
	return nil
}
