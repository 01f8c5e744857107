// Long-running background collector: keeps the local market store populated
// with daily bars, news, alt-data snapshots, and fundamentals for the
// configured benchmarks plus every symbol the store already tracks.
//
// Usage:
//
//	go run cmd/stockpulse-collector/main.go
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"stockpulse/internal/collect"
	"stockpulse/internal/config"
	"stockpulse/internal/fetch"
	"stockpulse/internal/provider"
	"stockpulse/internal/store"
	"stockpulse/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfgPath := "config/stockpulse.yaml"
	if p := os.Getenv("STOCKPULSE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if !cfg.Storage.StoreEnabled {
		log.Fatal("the collector requires the store (storage.store_enabled)")
	}

	mgr := store.NewManager(cfg.Storage.SQLitePath, logger)
	defer mgr.Close()
	st := store.New(mgr, logger)

	chain := provider.FromConfig(cfg, logger)
	logger.Info("provider chain assembled", "order", chain.Providers())

	oracle := fetch.NewOracle(st, logger)
	collector := collect.New(
		cfg.Collector,
		st,
		oracle,
		chain,
		chain,
		provider.NewStockTwits(),
		chain.ProfileSource(),
		logger,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("collector starting", "benchmarks", cfg.Collector.Benchmarks)
	if err := collector.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("collector error: %v", err)
	}
	logger.Info("collector stopped")
}
