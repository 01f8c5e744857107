package fetch

import (
	"context"
	"log/slog"
	"sort"

	"stockpulse/internal/domain"
	"stockpulse/internal/store"
)

// Batcher resolves many symbols for one window with a single multi-symbol
// store query, falling back to per-symbol resolution only for the misses.
// Unknown symbols simply come back empty; one bad ticker never poisons the
// batch.
type Batcher struct {
	st       *store.Store
	resolver Resolver
	oracle   *Oracle
	log      *slog.Logger
}

// NewBatcher creates a batcher. A nil store disables the bulk query path and
// every symbol resolves individually. A non-nil oracle makes bulk hits
// freshness-aware: stale hits are routed through the resolver exactly as the
// single-symbol path would, so batching never changes behavior.
func NewBatcher(st *store.Store, resolver Resolver, oracle *Oracle, log *slog.Logger) *Batcher {
	if log == nil {
		log = slog.Default()
	}
	return &Batcher{st: st, resolver: resolver, oracle: oracle, log: log.With("component", "batch")}
}

// FetchBatch resolves the symbol set and returns one result per requested
// symbol. Symbols the store already covers are served from the single bulk
// query; the rest go through the resolver one at a time.
func (b *Batcher) FetchBatch(ctx context.Context, symbols []string, window domain.Window) map[string]domain.Result {
	symbols = dedupe(symbols)
	out := make(map[string]domain.Result, len(symbols))
	if len(symbols) == 0 {
		return out
	}

	var covered map[string][]domain.Bar
	if b.st != nil {
		var err error
		covered, err = b.st.QueryRangeMulti(ctx, symbols, window)
		if err != nil {
			b.log.Warn("bulk query failed, resolving individually", "symbols", len(symbols), "error", err)
			covered = nil
		}
	}

	var misses []string
	for _, sym := range symbols {
		bars := covered[sym]
		if len(bars) == 0 {
			misses = append(misses, sym)
			continue
		}
		if b.oracle != nil && !b.oracle.IsFresh(ctx, sym, window) {
			misses = append(misses, sym)
			continue
		}
		out[sym] = domain.Result{Bars: bars, Provenance: domain.ProvenanceCached}
	}

	for _, sym := range misses {
		out[sym] = b.resolver.Resolve(ctx, sym, window)
	}

	if len(misses) > 0 {
		b.log.Debug("batch resolved", "total", len(symbols), "bulk_hits", len(symbols)-len(misses), "individual", len(misses))
	}
	return out
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
