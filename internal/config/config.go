package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the runtime configuration. Values come from an optional TOML
// file (CONFIG_FILE) with environment variables taking precedence.
type Config struct {
	Port          string `toml:"Port"`
	Env           string `toml:"Environment"`
	LedgerPath    string `toml:"LedgerPath"`
	CatalogPath   string `toml:"CatalogPath"`
	BindingsPath  string `toml:"BindingsPath"`
	DBSource      string `toml:"DBSource"`
	BotToken      string `toml:"BotToken"`
	ChainRPCURL   string `toml:"ChainRPCURL"`
	FaucetURL     string `toml:"FaucetURL"`
	SearchRadius  int64  `toml:"SearchRadius"`
	SettleTimeout string `toml:"SettleTimeout"`
	RequireAuth   bool   `toml:"RequireAuth"`
}

// Load builds the configuration from file and environment.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          "8080",
		Env:           "development",
		LedgerPath:    "data/royalties.json",
		CatalogPath:   "data/catalog.json",
		BindingsPath:  "data/bindings.db",
		SearchRadius:  100000,
		SettleTimeout: "90s",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}

	overrideString(&cfg.Port, "SERVER_PORT")
	overrideString(&cfg.Env, "ENVIRONMENT")
	overrideString(&cfg.LedgerPath, "LEDGER_PATH")
	overrideString(&cfg.CatalogPath, "CATALOG_PATH")
	overrideString(&cfg.BindingsPath, "BINDINGS_PATH")
	overrideString(&cfg.DBSource, "DB_SOURCE")
	overrideString(&cfg.BotToken, "BOT_TOKEN")
	overrideString(&cfg.ChainRPCURL, "CHAIN_RPC_URL")
	overrideString(&cfg.FaucetURL, "FAUCET_URL")
	overrideString(&cfg.SettleTimeout, "SETTLE_TIMEOUT")

	if v := os.Getenv("SEARCH_RADIUS"); v != "" {
		radius, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("SEARCH_RADIUS must be an integer: %w", err)
		}
		cfg.SearchRadius = radius
	}
	if v := os.Getenv("REQUIRE_AUTH"); v != "" {
		cfg.RequireAuth = v == "true" || v == "1"
	}

	if cfg.ChainRPCURL == "" {
		return nil, fmt.Errorf("CHAIN_RPC_URL is required")
	}
	if cfg.RequireAuth && cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required when REQUIRE_AUTH is set")
	}
	if _, err := cfg.SettleTimeoutDuration(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SettleTimeoutDuration parses the settlement wait budget.
func (c *Config) SettleTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.SettleTimeout)
	if err != nil {
		return 0, fmt.Errorf("SETTLE_TIMEOUT must be a duration: %w", err)
	}
	return d, nil
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
