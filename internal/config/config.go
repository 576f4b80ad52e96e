package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PMROUTER_PG_DSN.
const EnvPrefix = "PMROUTER"

// SimulateConfig configures the simulate command.
type SimulateConfig struct {
	Scenario     string
	EventsOut    string
	LogsOut      string
	Emitter      string
	SnapshotDB   string
	SnapshotName string
	PGDSN        string
	MetricsOut   string
	LogLevel     string
}

// BookConfig configures the book command.
type BookConfig struct {
	SnapshotDB   string
	SnapshotName string
	Market       string
	Depth        int
	LogLevel     string
}

// QuoteConfig configures the quote command.
type QuoteConfig struct {
	Scenario     string
	Market       string
	Side         string
	Direction    string
	Amount       string
	MaxPrice     uint16
	MinPrice     uint16
	UseBootstrap bool
	LogLevel     string
}

// DecodeConfig configures the decode command.
type DecodeConfig struct {
	In       string
	Out      string
	Errors   string
	Emitter  string
	LogLevel string
}

// AggregateConfig configures the aggregate command.
type AggregateConfig struct {
	Input         string
	Window        time.Duration
	PGDSN         string
	BatchSize     int
	StateFile     string
	StateName     string
	RecomputeFrom string
	LogLevel      string
}

// MarketConfig configures the market command.
type MarketConfig struct {
	RPCURL            string
	Vault             string
	Markets           []string
	RequestsPerSecond float64
	MaxRetries        int
	RetryBackoff      time.Duration
	LogLevel          string
}

// SyncConfig configures the sync command.
type SyncConfig struct {
	RPCURL            string
	FromBlock         uint64
	ToBlock           uint64
	Routers           []string
	BatchSize         uint64
	Out               string
	Checkpoint        string
	CheckpointEnabled bool
	RequestsPerSecond float64
	MaxRetries        int
	RetryBackoff      time.Duration
	LogLevel          string
}

// Load merges config file, environment variables, and flags into SimulateConfig.
func Load(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"events-out":    "./data/events.jsonl",
		"snapshot-name": "default",
		"emitter":       "0x00000000000000000000000000000000000000e0",
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		Scenario:     v.GetString("scenario"),
		EventsOut:    v.GetString("events-out"),
		LogsOut:      v.GetString("logs-out"),
		Emitter:      v.GetString("emitter"),
		SnapshotDB:   v.GetString("snapshot-db"),
		SnapshotName: v.GetString("snapshot-name"),
		PGDSN:        v.GetString("pg-dsn"),
		MetricsOut:   v.GetString("metrics-out"),
		LogLevel:     v.GetString("log-level"),
	}
	if cfg.Scenario == "" {
		return cfg, fmt.Errorf("scenario is required")
	}
	return cfg, nil
}

// LoadBook merges config file, environment variables, and flags into BookConfig.
func LoadBook(cfgFile string, flags *pflag.FlagSet) (BookConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"snapshot-name": "default",
		"depth":         10,
	})
	if err != nil {
		return BookConfig{}, err
	}

	cfg := BookConfig{
		SnapshotDB:   v.GetString("snapshot-db"),
		SnapshotName: v.GetString("snapshot-name"),
		Market:       v.GetString("market"),
		Depth:        v.GetInt("depth"),
		LogLevel:     v.GetString("log-level"),
	}
	if cfg.SnapshotDB == "" {
		return cfg, fmt.Errorf("snapshot-db is required")
	}
	return cfg, nil
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"side":          "yes",
		"direction":     "buy",
		"max-price":     9999,
		"min-price":     1,
		"use-bootstrap": true,
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	cfg := QuoteConfig{
		Scenario:     v.GetString("scenario"),
		Market:       v.GetString("market"),
		Side:         strings.ToLower(v.GetString("side")),
		Direction:    strings.ToLower(v.GetString("direction")),
		Amount:       v.GetString("amount"),
		MaxPrice:     uint16(v.GetUint("max-price")),
		MinPrice:     uint16(v.GetUint("min-price")),
		UseBootstrap: v.GetBool("use-bootstrap"),
		LogLevel:     v.GetString("log-level"),
	}
	if cfg.Scenario == "" || cfg.Market == "" || cfg.Amount == "" {
		return cfg, fmt.Errorf("scenario, market and amount are required")
	}
	if cfg.Side != "yes" && cfg.Side != "no" {
		return cfg, fmt.Errorf("side must be yes or no, got %q", cfg.Side)
	}
	if cfg.Direction != "buy" && cfg.Direction != "sell" {
		return cfg, fmt.Errorf("direction must be buy or sell, got %q", cfg.Direction)
	}
	return cfg, nil
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"out":    "./data/decoded_events.jsonl",
		"errors": "./data/decode_errors.jsonl",
	})
	if err != nil {
		return DecodeConfig{}, err
	}

	cfg := DecodeConfig{
		In:       v.GetString("in"),
		Out:      v.GetString("out"),
		Errors:   v.GetString("errors"),
		Emitter:  v.GetString("emitter"),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.In == "" {
		return cfg, fmt.Errorf("in is required")
	}
	return cfg, nil
}

// LoadAggregate merges config file, environment variables, and flags into AggregateConfig.
func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"batch-size": 1000,
		"window":     5 * time.Minute,
		"state-name": "aggregate",
	})
	if err != nil {
		return AggregateConfig{}, err
	}

	cfg := AggregateConfig{
		Input:         v.GetString("in"),
		Window:        v.GetDuration("window"),
		PGDSN:         v.GetString("pg-dsn"),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("state-file"),
		StateName:     v.GetString("state-name"),
		RecomputeFrom: v.GetString("recompute-from"),
		LogLevel:      v.GetString("log-level"),
	}
	if cfg.Input == "" {
		return cfg, fmt.Errorf("in is required")
	}
	if cfg.Window < time.Second {
		return cfg, fmt.Errorf("window must be at least 1s, got %s", cfg.Window)
	}
	return cfg, nil
}

// LoadMarket merges config file, environment variables, and flags into MarketConfig.
func LoadMarket(cfgFile string, flags *pflag.FlagSet) (MarketConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"rps":           10.0,
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
	})
	if err != nil {
		return MarketConfig{}, err
	}

	cfg := MarketConfig{
		RPCURL:            v.GetString("rpc"),
		Vault:             v.GetString("vault"),
		Markets:           getStringSlice(v, "market"),
		RequestsPerSecond: v.GetFloat64("rps"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		LogLevel:          v.GetString("log-level"),
	}
	if cfg.RPCURL == "" || cfg.Vault == "" {
		return cfg, fmt.Errorf("rpc and vault are required")
	}
	return cfg, nil
}

// LoadSync merges config file, environment variables, and flags into SyncConfig.
func LoadSync(cfgFile string, flags *pflag.FlagSet) (SyncConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"batch-size":         uint64(2000),
		"out":                "./data/logs.jsonl",
		"checkpoint":         "./data/checkpoint.json",
		"checkpoint-enabled": true,
		"rps":                10.0,
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
	})
	if err != nil {
		return SyncConfig{}, err
	}

	cfg := SyncConfig{
		RPCURL:            v.GetString("rpc"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		Routers:           getStringSlice(v, "router"),
		BatchSize:         v.GetUint64("batch-size"),
		Out:               v.GetString("out"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		RequestsPerSecond: v.GetFloat64("rps"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		LogLevel:          v.GetString("log-level"),
	}
	if cfg.RPCURL == "" {
		return cfg, fmt.Errorf("rpc is required")
	}
	if len(cfg.Routers) == 0 {
		return cfg, fmt.Errorf("at least one router address is required")
	}
	if cfg.ToBlock != 0 && cfg.ToBlock < cfg.FromBlock {
		return cfg, fmt.Errorf("to block %d is before from block %d", cfg.ToBlock, cfg.FromBlock)
	}
	return cfg, nil
}

// newViper layers defaults, config file, .env, environment and flags.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]any) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
