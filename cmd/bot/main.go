package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scalp-trading-bot/internal/eod"
	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/metrics"
	"scalp-trading-bot/internal/trace"
)

var (
	flagConfig    string
	flagSymbol    string
	flagQuantity  float64
	flagAssetType string
	flagInterval  int
)

func main() {
	root := &cobra.Command{
		Use:          "scalp-bot",
		Short:        "ATR-based scalping bot for Trading 212",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	root.Flags().StringVar(&flagConfig, "config", "config.yaml", "path to config file")
	root.Flags().StringVar(&flagSymbol, "symbol", "", "ticker symbol (overrides config)")
	root.Flags().Float64Var(&flagQuantity, "quantity", 0, "shares per entry (overrides config)")
	root.Flags().StringVar(&flagAssetType, "asset-type", "", "instrument asset type (overrides config)")
	root.Flags().IntVar(&flagInterval, "interval", 0, "seconds between cycles (overrides config)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if err := initializeSystem(); err != nil {
		return err
	}
	defer func() { _ = trace.Shutdown(context.Background()) }()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	compressOldLogs(ctx)

	brk := initializeBroker(ctx, cfg)
	eng := initializeEngine(cfg, brk)

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(cfg.Metrics.Addr); err != nil {
				logger.ErrorWithErr(ctx, "Metrics server stopped", err, "addr", cfg.Metrics.Addr)
			}
		}()
		logger.Info(ctx, "Metrics listening", "addr", cfg.Metrics.Addr)
	}

	interval := time.Duration(cfg.Poll.BarSeconds) * time.Second
	tick := time.NewTicker(interval)
	defer tick.Stop()

	logger.Info(ctx, "Bot started",
		"symbol", cfg.Symbol, "mode", cfg.Mode, "env", cfg.Env, "interval", interval.String())

	for {
		select {
		case <-tick.C:
			res, err := eng.Step(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue // shutdown already in flight
				}
				logger.ErrorWithErr(ctx, "Cycle failed", err, "symbol", cfg.Symbol)
				continue
			}
			if res != nil {
				b, _ := json.Marshal(res)
				fmt.Println(string(b))
			}
		case <-ctx.Done():
			logger.Info(ctx, "Shutting down")
			if p, err := eod.SummarizeToday(); err == nil && p != "" {
				logger.Info(ctx, "EOD CSV written", "path", p)
			}
			return nil
		}
	}
}
