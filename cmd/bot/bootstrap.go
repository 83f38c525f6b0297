package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"scalp-trading-bot/internal/broker/brokerobs"
	"scalp-trading-bot/internal/broker/paper"
	"scalp-trading-bot/internal/broker/t212"
	"scalp-trading-bot/internal/engine"
	"scalp-trading-bot/internal/engine/engineobs"
	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/store"
	"scalp-trading-bot/internal/trace"
	"scalp-trading-bot/internal/tradelog"
)

// initializeSystem loads the environment and brings up logging and tracing.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(ctx context.Context) (*store.Config, error) {
	cfg, err := store.LoadConfig(flagConfig)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", flagConfig)
		return nil, err
	}
	if flagSymbol != "" {
		cfg.Symbol = flagSymbol
	}
	if flagQuantity > 0 {
		cfg.Quantity = flagQuantity
	}
	if flagAssetType != "" {
		cfg.AssetType = flagAssetType
	}
	if flagInterval > 0 {
		cfg.Poll.BarSeconds = flagInterval
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// compressOldLogs gzips trade logs past the retention window, if one is set.
func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// initializeBroker picks the execution venue for the configured mode and
// wraps it with observability middleware.
func initializeBroker(ctx context.Context, cfg *store.Config) interfaces.Broker {
	var brk interfaces.Broker
	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders are simulated in-process")
		brk = paper.New(cfg.Symbol, paperStartingCash())
	} else {
		key := os.Getenv("T212_API_KEY")
		if key == "" {
			logger.Warn(ctx, "T212_API_KEY is not set - live requests will be rejected")
		}
		logger.Info(ctx, "Using Trading 212 REST broker", "env", cfg.Env)
		brk = t212.New(t212.Params{APIKey: key, Env: cfg.Env})
	}
	return brokerobs.Wrap(brk)
}

func paperStartingCash() float64 {
	var cash float64
	if v := os.Getenv("PAPER_STARTING_CASH"); v != "" {
		fmt.Sscanf(v, "%f", &cash)
	}
	if cash <= 0 {
		cash = 10000
	}
	return cash
}

// initializeEngine builds the scalp engine with observability middleware.
func initializeEngine(cfg *store.Config, brk interfaces.Broker) interfaces.Engine {
	return engineobs.Wrap(engine.New(cfg, brk))
}
