package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pmrouter/internal/chain"
	"pmrouter/internal/config"
)

func runMarket(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadMarket(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	vault, err := config.ParseAddress(cfg.Vault)
	if err != nil {
		return err
	}
	markets, err := config.ParseHashes(cfg.Markets)
	if err != nil {
		return err
	}
	if len(markets) == 0 {
		return fmt.Errorf("market list is required")
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

	chainID, err := client.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}
	reader, err := chain.NewVaultReader(client, vault)
	if err != nil {
		return err
	}

	logger.Info("market read",
		zap.String("chain_id", chainID.String()),
		zap.String("vault", vault.Hex()),
		zap.Int("markets", len(markets)),
	)

	now := time.Now()
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Market", "Exists", "Resolved", "Closes", "Collateral", "Open")
	for _, m := range markets {
		info, err := reader.MarketInfo(ctx, m)
		if err != nil {
			return err
		}
		table.Append(
			m.Hex(),
			fmt.Sprintf("%t", info.Exists),
			fmt.Sprintf("%t", info.Resolved),
			info.CloseTime.Format(time.RFC3339),
			info.Collateral.Hex(),
			fmt.Sprintf("%t", info.OpenAt(now)),
		)
	}
	table.Render()
	return nil
}
