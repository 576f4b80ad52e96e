package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pmrouter/internal/chain"
	"pmrouter/internal/config"
	"pmrouter/internal/eventlog"
	"pmrouter/internal/indexer"
	"pmrouter/internal/storage"
)

func runSync(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSync(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	routers := make([]common.Address, 0, len(cfg.Routers))
	for _, raw := range cfg.Routers {
		addr, err := config.ParseAddress(raw)
		if err != nil {
			return err
		}
		routers = append(routers, addr)
	}

	// Topic hashes do not depend on the emitter address.
	codec, err := eventlog.NewCodec(routers[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := chain.NewClient(ctx, cfg.RPCURL, chain.Options{
		RequestsPerSecond: cfg.RequestsPerSecond,
		MaxRetries:        cfg.MaxRetries,
		RetryBaseDelay:    cfg.RetryBackoff,
	})
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	logger.Info("sync start",
		zap.Int("routers", len(routers)),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.String("out", cfg.Out),
	)

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Routers:           routers,
		Topic0:            indexer.EngineTopics(codec),
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
	}, client, storage.NewJsonlStorage(cfg.Out), logger)

	return runner.Run(ctx)
}
