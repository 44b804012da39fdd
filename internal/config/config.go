// Package config defines all configuration for the market-making agent.
// Config is loaded from a YAML file (default: configs/config.yaml), with a
// local .env preloaded into the process environment and sensitive fields
// overridable via MM_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun bool `mapstructure:"dry_run"`

	Wallet        WalletConfig        `mapstructure:"wallet"`
	API           APIConfig           `mapstructure:"api"`
	Market        MarketConfig        `mapstructure:"market"`
	ReferenceFeed ReferenceFeedConfig `mapstructure:"reference_feed"`
	Risk          RiskConfig          `mapstructure:"risk"`
	Store         StoreConfig         `mapstructure:"store"`
	Dashboard     DashboardConfig     `mapstructure:"dashboard"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// WalletConfig holds the Ethereum wallet used for signing orders.
// PrivateKey signs L1 (EIP-712) auth and derives L2 API credentials.
// FunderAddress is the on-chain address that funds orders (may differ from
// the signer when using a proxy/multisig wallet).
type WalletConfig struct {
	PrivateKey    string `mapstructure:"private_key"`
	SignatureType int    `mapstructure:"signature_type"`
	FunderAddress string `mapstructure:"funder_address"`
	ChainID       int    `mapstructure:"chain_id"`
}

// APIConfig holds venue REST/WS endpoints and optional pre-derived L2
// credentials. Outside dry-run the adapter always derives fresh credentials
// via L1 auth on startup, replacing any configured ApiKey/Secret/Passphrase.
type APIConfig struct {
	RESTBaseURL string `mapstructure:"rest_base_url"`
	WSVenueURL  string `mapstructure:"ws_venue_url"`
	ApiKey      string `mapstructure:"api_key"`
	Secret      string `mapstructure:"secret"`
	Passphrase  string `mapstructure:"passphrase"`
}

// MarketConfig is the per-market parameter set §6 names. cmd/quoter converts
// the grid, sizing, hysteresis and skew fields into the internal/ladder and
// internal/quote configs; Symbol and OrderLeverage go to the engine and the
// venue adapter. TargetLeverage is loaded but not read by any package.
type MarketConfig struct {
	Symbol string `mapstructure:"symbol"`

	TickJump        float64 `mapstructure:"tick_jump"`
	MinOrderSize    float64 `mapstructure:"min_order_size"`
	MaxOrderSize    float64 `mapstructure:"max_order_size"`
	OrdersPerSide   int     `mapstructure:"orders_per_side"`
	MaxPosition     float64 `mapstructure:"max_position"`
	MaxLiquidity    float64 `mapstructure:"max_liquidity"` // 0 => defaults to MaxPosition
	MaxDiff         float64 `mapstructure:"max_diff"`
	OrderLeverage   float64 `mapstructure:"order_leverage"`
	TargetLeverage  float64 `mapstructure:"target_leverage"`
	Spread          float64 `mapstructure:"spread"`
	HysteresisLow   float64 `mapstructure:"hysteresis_low"`  // tunable per Open Question 3, default 0.9
	HysteresisMin   float64 `mapstructure:"hysteresis_min"`  // default 0.8
}

// ReferenceFeedConfig points at the external spot/index feed driving §4.C.
type ReferenceFeedConfig struct {
	URL               string        `mapstructure:"url"`
	ReconnectBackoff  time.Duration `mapstructure:"reconnect_backoff"`
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay"`
}

// RiskConfig sets hard limits the supplemental risk monitor (internal/risk)
// watches outside the core (§9, "supplemented features").
type RiskConfig struct {
	MaxDailyLoss        float64       `mapstructure:"max_daily_loss"`
	KillSwitchDropPct    float64       `mapstructure:"kill_switch_drop_pct"`
	KillSwitchWindowSec  int           `mapstructure:"kill_switch_window_sec"`
	CooldownAfterKill    time.Duration `mapstructure:"cooldown_after_kill"`
}

// StoreConfig sets where the operational snapshot (next_client_id, last
// position, last auction id) is persisted.
type StoreConfig struct {
	Path          string        `mapstructure:"path"`
	WriteInterval time.Duration `mapstructure:"write_interval"`
}

// DashboardConfig controls the optional read-only status server.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file, preloading envPath (a .env file) into
// the process environment first so secrets never need to live in the YAML
// or be passed on argv. Sensitive fields use env vars: MM_WALLET_PRIVATE_KEY,
// MM_API_API_KEY, MM_API_SECRET, MM_API_PASSPHRASE.
func Load(path, envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load env file %s: %w", envPath, err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("MM_WALLET_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if key := os.Getenv("MM_API_API_KEY"); key != "" {
		cfg.API.ApiKey = key
	}
	if secret := os.Getenv("MM_API_SECRET"); secret != "" {
		cfg.API.Secret = secret
	}
	if pass := os.Getenv("MM_API_PASSPHRASE"); pass != "" {
		cfg.API.Passphrase = pass
	}
	if v := os.Getenv("MM_DRY_RUN"); v == "true" || v == "1" {
		cfg.DryRun = true
	}

	if cfg.Market.MaxLiquidity == 0 {
		cfg.Market.MaxLiquidity = cfg.Market.MaxPosition
	}
	if cfg.Market.HysteresisLow == 0 {
		cfg.Market.HysteresisLow = 0.9
	}
	if cfg.Market.HysteresisMin == 0 {
		cfg.Market.HysteresisMin = 0.8
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges. Per §7's "Config
// error" policy, the agent refuses to start rather than run with partial
// configuration.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set MM_WALLET_PRIVATE_KEY)")
	}
	if c.Wallet.ChainID == 0 {
		return fmt.Errorf("wallet.chain_id is required")
	}
	switch c.Wallet.SignatureType {
	case 0, 1, 2:
	default:
		return fmt.Errorf("wallet.signature_type must be one of: 0 (EOA), 1 (proxy), 2 (Gnosis Safe)")
	}
	if c.Wallet.SignatureType != 0 && c.Wallet.FunderAddress == "" {
		return fmt.Errorf("wallet.funder_address is required when wallet.signature_type is 1 or 2")
	}
	if c.API.RESTBaseURL == "" {
		return fmt.Errorf("api.rest_base_url is required")
	}
	if c.Market.Symbol == "" {
		return fmt.Errorf("market.symbol is required")
	}
	if c.Market.TickJump <= 0 {
		return fmt.Errorf("market.tick_jump must be > 0")
	}
	if c.Market.MinOrderSize <= 0 {
		return fmt.Errorf("market.min_order_size must be > 0")
	}
	if c.Market.MaxOrderSize < c.Market.MinOrderSize {
		return fmt.Errorf("market.max_order_size must be >= min_order_size")
	}
	if c.Market.OrdersPerSide <= 0 {
		return fmt.Errorf("market.orders_per_side must be > 0")
	}
	if c.Market.MaxPosition <= 0 {
		return fmt.Errorf("market.max_position must be > 0")
	}
	if c.Market.MaxDiff <= 0 {
		return fmt.Errorf("market.max_diff must be > 0")
	}
	if c.ReferenceFeed.URL == "" {
		return fmt.Errorf("reference_feed.url is required")
	}
	return nil
}
