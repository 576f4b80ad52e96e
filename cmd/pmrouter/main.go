package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// defaultSelf is the custody address used when a scenario does not set one.
const defaultSelf = "0x00000000000000000000000000000000000000e0"

func main() {
	root := &cobra.Command{
		Use:          "pmrouter",
		Short:        "Prediction market limit-order liquidity engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a scenario against simulated venues",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("scenario", "", "scenario YAML path")
	simulateCmd.Flags().String("events-out", "./data/events.jsonl", "events JSONL path (appended)")
	simulateCmd.Flags().String("logs-out", "", "optional EVM-style log JSONL path (appended)")
	simulateCmd.Flags().String("emitter", defaultSelf, "address stamped on emitted logs")
	simulateCmd.Flags().String("snapshot-db", "", "optional SQLite file to store the final ledger snapshot")
	simulateCmd.Flags().String("snapshot-name", "default", "snapshot name inside the SQLite file")
	simulateCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for events and pool state")
	simulateCmd.Flags().String("metrics-out", "", "optional Prometheus textfile path")
	simulateCmd.Flags().Int("decimals", 0, "collateral decimals used when printing amounts")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a buy or sell after replaying a scenario",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("scenario", "", "scenario YAML path")
	quoteCmd.Flags().String("market", "", "market id")
	quoteCmd.Flags().String("side", "yes", "outcome side (yes, no)")
	quoteCmd.Flags().String("direction", "buy", "buy or sell")
	quoteCmd.Flags().String("amount", "", "collateral in for buys, shares in for sells")
	quoteCmd.Flags().Uint16("max-price", 9999, "highest ask level a buy may sweep")
	quoteCmd.Flags().Uint16("min-price", 1, "lowest bid level a sell may sweep")
	quoteCmd.Flags().Bool("use-bootstrap", true, "route the remainder to the bootstrap venue")
	quoteCmd.Flags().Int("decimals", 0, "collateral decimals used when printing amounts")
	quoteCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	bookCmd := &cobra.Command{
		Use:   "book",
		Short: "Print pools and order books from a stored snapshot",
		RunE:  runBook,
	}

	bookCmd.Flags().String("snapshot-db", "", "SQLite snapshot file")
	bookCmd.Flags().String("snapshot-name", "default", "snapshot name")
	bookCmd.Flags().String("market", "", "market id; empty lists every pool")
	bookCmd.Flags().Int("depth", 10, "levels per side")
	bookCmd.Flags().Int("decimals", 0, "collateral decimals used when printing amounts")
	bookCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(bookCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode EVM-style engine logs back into events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "", "input log JSONL")
	decodeCmd.Flags().String("out", "./data/decoded_events.jsonl", "output events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("emitter", "", "only decode logs from this address")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate fill events into pool window metrics",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("in", "", "input events JSONL")
	aggregateCmd.Flags().Duration("window", 5*time.Minute, "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("state-name", "aggregate", "state row name when tracking progress in Postgres")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	marketCmd := &cobra.Command{
		Use:   "market",
		Short: "Read market metadata from a deployed vault",
		RunE:  runMarket,
	}

	marketCmd.Flags().String("rpc", "", "RPC URL")
	marketCmd.Flags().String("vault", "", "vault contract address")
	marketCmd.Flags().StringSlice("market", nil, "market ids (comma-separated)")
	marketCmd.Flags().Float64("rps", 10, "maximum RPC requests per second")
	marketCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	marketCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	marketCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(marketCmd)

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy engine logs emitted by deployed routers into JSONL",
		RunE:  runSync,
	}

	syncCmd.Flags().String("rpc", "", "RPC URL")
	syncCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	syncCmd.Flags().Uint64("to", 0, "end block (inclusive, 0 = latest)")
	syncCmd.Flags().StringSlice("router", nil, "router addresses (comma-separated)")
	syncCmd.Flags().Uint64("batch-size", 2000, "block range size per request")
	syncCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	syncCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	syncCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	syncCmd.Flags().Float64("rps", 10, "maximum RPC requests per second")
	syncCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	syncCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	syncCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(syncCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
