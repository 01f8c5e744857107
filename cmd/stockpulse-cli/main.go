// Command-line front end for ad-hoc queries against the market data layer:
// resolve a price series, batch-resolve several symbols, search assets, or
// show stored news.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"stockpulse/internal/config"
	"stockpulse/internal/domain"
	"stockpulse/internal/fetch"
	"stockpulse/internal/provider"
	"stockpulse/internal/store"
	"stockpulse/internal/util"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: stockpulse-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version                    Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  fetch <symbol> [window]    Resolve a daily series (default window 1mo)\n")
		fmt.Fprintf(os.Stderr, "  refresh <symbol> [window]  Force a live fetch, bypassing caches\n")
		fmt.Fprintf(os.Stderr, "  batch <sym,sym,...> [win]  Resolve several symbols at once\n")
		fmt.Fprintf(os.Stderr, "  search <query>             Search assets across providers\n")
		fmt.Fprintf(os.Stderr, "  news <symbol>              Show stored news for a symbol\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	if os.Args[1] == "version" {
		fmt.Printf("stockpulse-cli %s\n", version)
		return
	}

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

	// With the store disabled the resolver runs file-only; no SQLite handle
	// is ever opened.
	var st *store.Store
	var oracle *fetch.Oracle
	if cfg.Storage.StoreEnabled {
		mgr := store.NewManager(cfg.Storage.SQLitePath, logger)
		defer mgr.Close()
		st = store.New(mgr, logger)
		oracle = fetch.NewOracle(st, logger)
	}

	chain := provider.FromConfig(cfg, logger)
	cache := fetch.NewFileCache(cfg.Storage.CacheDir, logger)
	resolver := fetch.NewResolver(cfg, st, oracle, chain, cache, logger)

	ctx := context.Background()

	switch os.Args[1] {
	case "fetch", "refresh":
		if len(os.Args) < 3 {
			flag.Usage()
			os.Exit(1)
		}
		symbol := strings.ToUpper(os.Args[2])
		window := parseWindowArg(os.Args, 3)

		var res domain.Result
		if os.Args[1] == "refresh" {
			res = resolver.Refresh(ctx, symbol, window)
		} else {
			res = resolver.Resolve(ctx, symbol, window)
		}
		printSeries(symbol, res)

		if st != nil {
			if err := st.RecordInteraction(ctx, symbol, "VIEW", map[string]any{"window": string(window)}); err != nil {
				logger.Warn("recording interaction failed", "symbol", symbol, "error", err)
			}
		}

	case "batch":
		if len(os.Args) < 3 {
			flag.Usage()
			os.Exit(1)
		}
		symbols := strings.Split(strings.ToUpper(os.Args[2]), ",")
		window := parseWindowArg(os.Args, 3)

		batcher := fetch.NewBatcher(st, resolver, oracle, logger)
		for symbol, res := range batcher.FetchBatch(ctx, symbols, window) {
			printSeries(symbol, res)
		}

	case "search":
		if len(os.Args) < 3 {
			flag.Usage()
			os.Exit(1)
		}
		matches := chain.SearchAssets(ctx, strings.Join(os.Args[2:], " "))
		if len(matches) == 0 {
			fmt.Println("no matches")
			return
		}
		for _, m := range matches {
			fmt.Printf("%-8s %-10s %-8s %s\n", m.Symbol, m.Kind, m.Region, m.Name)
		}

	case "news":
		if len(os.Args) < 3 {
			flag.Usage()
			os.Exit(1)
		}
		if st == nil {
			log.Fatal("news requires the store (storage.store_enabled)")
		}
		items, err := st.LatestNews(ctx, strings.ToUpper(os.Args[2]), 10)
		if err != nil {
			log.Fatalf("news query failed: %v", err)
		}
		if len(items) == 0 {
			fmt.Println("no stored news")
			return
		}
		for _, n := range items {
			fmt.Printf("%s  [%s] %s\n    %s\n", n.PublishTime.Format("2006-01-02 15:04"), n.Publisher, n.Title, n.Link)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}

func parseWindowArg(args []string, idx int) domain.Window {
	if len(args) <= idx {
		return domain.Win1Mo
	}
	w, ok := domain.ParseWindow(args[idx])
	if !ok {
		log.Fatalf("unknown window %q (use 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, max)", args[idx])
	}
	return w
}

func printSeries(symbol string, res domain.Result) {
	if res.IsEmpty() {
		fmt.Printf("%s: no data (%s)\n", symbol, res.Provenance)
		return
	}
	first := res.Bars[0]
	last := res.Bars[len(res.Bars)-1]
	fmt.Printf("%s: %d bars %s..%s, close %.2f (%s)\n",
		symbol, len(res.Bars),
		first.Date.Format("2006-01-02"), last.Date.Format("2006-01-02"),
		last.Close, res.Provenance)
}
