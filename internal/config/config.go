// Package config loads the stockpulse YAML configuration and applies
// environment-variable overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Strategy labels select the fetch-orchestrator mode.
const (
	StrategyPreferStore = "prefer-store"
	StrategyPreferLive  = "prefer-live"
	StrategyFileOnly    = "file-only"
)

// Config is the top-level configuration for the stockpulse data layer.
type Config struct {
	Storage   Storage         `yaml:"storage"`
	Fetch     Fetch           `yaml:"fetch"`
	Providers Providers       `yaml:"providers"`
	Collector CollectorConfig `yaml:"collector"`
	Logging   Logging         `yaml:"logging"`
}

// Storage holds paths and switches for data persistence.
type Storage struct {
	// StoreEnabled controls whether the SQLite store backend is used at all.
	// When false, only the legacy file cache is available.
	StoreEnabled bool   `yaml:"store_enabled"`
	SQLitePath   string `yaml:"sqlite_path"`
	// CacheDir is the filesystem location for the legacy parquet file cache.
	CacheDir string `yaml:"cache_dir"`
}

// Fetch controls the retrieval orchestration.
type Fetch struct {
	// Strategy selects the orchestrator mode: prefer-store, prefer-live,
	// or file-only.
	Strategy string `yaml:"strategy"`
	// ProviderTimeoutSec bounds every external provider call. Zero selects
	// the default of 15 seconds.
	ProviderTimeoutSec int `yaml:"provider_timeout_sec"`
}

// Providers holds external data source credentials. Absent credentials
// silently demote the corresponding provider out of the fallback chain.
type Providers struct {
	AlphaVantage AlphaVantage `yaml:"alphavantage"`
	Alpaca       Alpaca       `yaml:"alpaca"`
}

// AlphaVantage holds the Alpha Vantage API key.
type AlphaVantage struct {
	APIKey string `yaml:"api_key"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// CollectorConfig controls the background collector process.
type CollectorConfig struct {
	// Benchmarks are always refreshed in every cycle.
	Benchmarks []string `yaml:"benchmarks"`
	// MarketHoursIntervalMin is the cycle interval during market hours.
	MarketHoursIntervalMin int `yaml:"market_hours_interval_min"`
	// OffHoursIntervalMin is the cycle interval outside market hours.
	OffHoursIntervalMin int `yaml:"off_hours_interval_min"`
	RateLimitPerMin     int `yaml:"rate_limit_per_min"`
	MaxRetries          int `yaml:"max_retries"`
	NewsLimit           int `yaml:"news_limit"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with working defaults for every field.
func Default() *Config {
	return &Config{
		Storage: Storage{
			StoreEnabled: true,
			SQLitePath:   "data/market.db",
			CacheDir:     "data/raw",
		},
		Fetch: Fetch{
			Strategy:           StrategyPreferLive,
			ProviderTimeoutSec: 15,
		},
		Collector: CollectorConfig{
			Benchmarks:             []string{"SPY", "QQQ", "RSP"},
			MarketHoursIntervalMin: 15,
			OffHoursIntervalMin:    60,
			RateLimitPerMin:        30,
			MaxRetries:             3,
			NewsLimit:              5,
		},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it on top
// of the defaults, and then applies environment variable overrides. A missing
// file is not an error; defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to env overrides
	default:
		return nil, err
	}

	applyEnvOverrides(cfg)

	if _, ok := validStrategy(cfg.Fetch.Strategy); !ok {
		return nil, fmt.Errorf("unknown fetch strategy %q", cfg.Fetch.Strategy)
	}

	// Disabling the store leaves file-only as the only workable mode.
	if !cfg.Storage.StoreEnabled {
		cfg.Fetch.Strategy = StrategyFileOnly
	}

	return cfg, nil
}

func validStrategy(s string) (string, bool) {
	switch s {
	case StrategyPreferStore, StrategyPreferLive, StrategyFileOnly:
		return s, true
	}
	return "", false
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("DATA_CACHE_DIR"); v != "" {
		cfg.Storage.CacheDir = v
	}
	if v := os.Getenv("FETCH_STRATEGY"); v != "" {
		cfg.Fetch.Strategy = v
	}

	if v := os.Getenv("ALPHA_VANTAGE_API_KEY"); v != "" {
		cfg.Providers.AlphaVantage.APIKey = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Providers.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Providers.Alpaca.APISecret = v
	}
}
