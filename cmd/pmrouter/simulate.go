package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pmrouter/internal/config"
	"pmrouter/internal/eventlog"
	"pmrouter/internal/metrics"
	"pmrouter/internal/scenario"
	"pmrouter/internal/storage"
	"pmrouter/internal/storage/postgres"
	"pmrouter/internal/storage/sqlite"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	decimals, _ := cmd.Flags().GetInt("decimals")

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sc, err := scenario.Load(cfg.Scenario)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks := storage.FanOut{storage.NewJsonlStorage(cfg.EventsOut)}

	if cfg.LogsOut != "" {
		emitter, err := config.ParseAddress(cfg.Emitter)
		if err != nil {
			return fmt.Errorf("emitter: %w", err)
		}
		codec, err := eventlog.NewCodec(emitter)
		if err != nil {
			return err
		}
		sinks = append(sinks, storage.NewLogSink(codec, storage.NewJsonlStorage(cfg.LogsOut)))
	}

	reg := prometheus.NewRegistry()
	metricsSink, err := metrics.NewSink(reg)
	if err != nil {
		return err
	}
	sinks = append(sinks, metricsSink)

	var store *postgres.Store
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, store)
	}

	runner, err := scenario.New(sc, sinks, logger)
	if err != nil {
		return err
	}

	logger.Info("simulate start",
		zap.String("scenario", cfg.Scenario),
		zap.Int("steps", len(sc.Steps)),
		zap.String("events_out", cfg.EventsOut),
		zap.String("logs_out", cfg.LogsOut),
		zap.Bool("postgres", store != nil),
	)

	results, runErr := runner.Run(ctx)
	for _, res := range results {
		metricsSink.ObserveFailure(res.Err)
	}
	printSteps(cmd.OutOrStdout(), results, decimals)

	snap := runner.Engine().Snapshot()
	if cfg.SnapshotDB != "" {
		db, err := sqlite.Open(cfg.SnapshotDB)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Save(ctx, cfg.SnapshotName, snap); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	if store != nil {
		if err := store.UpsertPoolStates(ctx, snap.Pools); err != nil {
			return fmt.Errorf("upsert pool state: %w", err)
		}
	}
	if cfg.MetricsOut != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsOut, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	logger.Info("simulate complete",
		zap.Int("steps_run", len(results)),
		zap.Int("pools", len(snap.Pools)),
		zap.Int("positions", len(snap.Positions)),
		zap.Error(runErr),
	)
	return runErr
}
