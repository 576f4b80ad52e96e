package main

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"pmrouter/internal/config"
	"pmrouter/internal/engine"
	"pmrouter/internal/scenario"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	decimals, _ := cmd.Flags().GetInt("decimals")

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	market, err := config.ParseHash(cfg.Market)
	if err != nil {
		return err
	}
	amount, err := uint256.FromDecimal(cfg.Amount)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}

	sc, err := scenario.Load(cfg.Scenario)
	if err != nil {
		return err
	}
	runner, err := scenario.New(sc, nil, logger)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if _, err := runner.Run(ctx); err != nil {
		return err
	}

	e := runner.Engine()
	yes := cfg.Side == "yes"
	var res engine.TradeResult
	if cfg.Direction == "buy" {
		res = e.QuoteBuy(ctx, engine.BuyParams{
			Market: market, Yes: yes, CollateralIn: amount, MaxPrice: cfg.MaxPrice,
			UseBootstrap: cfg.UseBootstrap, Recipient: e.Self(),
		})
	} else {
		res = e.QuoteSell(ctx, engine.SellParams{
			Market: market, Yes: yes, SharesIn: amount, MinPrice: cfg.MinPrice,
			UseBootstrap: cfg.UseBootstrap, Recipient: e.Self(),
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s on %s\n", cfg.Direction, formatAmount(amount, decimals), cfg.Side, market.Hex())
	printTrade(cmd.OutOrStdout(), res, decimals)

	fee, impact, ok, err := e.MarketFees(ctx, market)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(cmd.OutOrStdout(), "  amm fee=%s max impact=%s\n", formatPrice(uint16(fee)), formatPrice(uint16(impact)))
	}
	return nil
}
