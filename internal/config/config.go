// Package config defines all configuration for the market maker.
//
// Config is loaded from a TOML file passed on the command line. Credentials
// never live in the file: the wallet private key and address come from the
// PYPERLIQUIDITY_PRIVATE_KEY and PYPERLIQUIDITY_WALLET environment variables.
// Validation collects every violation so the operator sees the full list in
// one run instead of fixing errors one at a time.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Environment variable names for credentials.
const (
	EnvPrivateKey = "PYPERLIQUIDITY_PRIVATE_KEY"
	EnvWallet     = "PYPERLIQUIDITY_WALLET"
)

// Config is the top-level configuration. Maps directly to the TOML file
// structure.
type Config struct {
	Market     MarketConfig     `mapstructure:"market"`
	Strategy   StrategyConfig   `mapstructure:"strategy"`
	Allocation AllocationConfig `mapstructure:"allocation"`
	Tuning     TuningConfig     `mapstructure:"tuning"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Journal    JournalConfig    `mapstructure:"journal"`
}

// MarketConfig selects the traded market and endpoint.
type MarketConfig struct {
	Coin    string `mapstructure:"coin"`
	Testnet bool   `mapstructure:"testnet"`
}

// StrategyConfig holds the grid parameters.
//
//   - StartPx: first grid price (p_0 of the geometric recurrence).
//   - NOrders: number of grid levels.
//   - OrderSz: size of one full tranche.
//   - NSeededLevels: default boundary level when no asks are resting.
type StrategyConfig struct {
	StartPx       float64 `mapstructure:"start_px"`
	NOrders       int     `mapstructure:"n_orders"`
	OrderSz       float64 `mapstructure:"order_sz"`
	NSeededLevels int     `mapstructure:"n_seeded_levels"`
}

// AllocationConfig caps how much of the account the strategy may use. Set a
// ceiling above any realistic balance to use the full account.
type AllocationConfig struct {
	AllocatedToken float64 `mapstructure:"allocated_token"`
	AllocatedUSDC  float64 `mapstructure:"allocated_usdc"`
}

// TuningConfig holds control-loop tuning knobs. All have defaults.
type TuningConfig struct {
	IntervalS         float64 `mapstructure:"interval_s"`
	DeadZoneBps       float64 `mapstructure:"dead_zone_bps"`
	PriceToleranceBps float64 `mapstructure:"price_tolerance_bps"`
	SizeTolerancePct  float64 `mapstructure:"size_tolerance_pct"`
	ReconcileEvery    int64   `mapstructure:"reconcile_every"`
	MinNotional       float64 `mapstructure:"min_notional"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// JournalConfig enables the SQLite fill journal when Path is non-empty.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// Credentials is the wallet material sourced from the environment.
type Credentials struct {
	PrivateKey string
	Wallet     string
}

// Load reads and parses the TOML config file, applying tuning defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetDefault("tuning.interval_s", 3.0)
	v.SetDefault("tuning.dead_zone_bps", 5.0)
	v.SetDefault("tuning.price_tolerance_bps", 1.0)
	v.SetDefault("tuning.size_tolerance_pct", 1.0)
	v.SetDefault("tuning.reconcile_every", 20)
	v.SetDefault("tuning.min_notional", 0.0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks all required fields and value ranges, returning every
// violation at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Market.Coin == "" {
		errs = append(errs, errors.New("market.coin is required"))
	}
	if c.Strategy.StartPx <= 0 {
		errs = append(errs, errors.New("strategy.start_px must be positive"))
	}
	if c.Strategy.NOrders <= 0 {
		errs = append(errs, errors.New("strategy.n_orders must be a positive integer"))
	}
	if c.Strategy.OrderSz <= 0 {
		errs = append(errs, errors.New("strategy.order_sz must be positive"))
	}
	if c.Strategy.NSeededLevels < 0 {
		errs = append(errs, errors.New("strategy.n_seeded_levels must be >= 0"))
	}
	if c.Allocation.AllocatedToken <= 0 {
		errs = append(errs, errors.New("allocation.allocated_token must be positive"))
	}
	if c.Allocation.AllocatedUSDC <= 0 {
		errs = append(errs, errors.New("allocation.allocated_usdc must be positive"))
	}
	if c.Tuning.IntervalS <= 0 {
		errs = append(errs, errors.New("tuning.interval_s must be positive"))
	}
	if c.Tuning.ReconcileEvery <= 0 {
		errs = append(errs, errors.New("tuning.reconcile_every must be positive"))
	}
	if c.Tuning.MinNotional < 0 {
		errs = append(errs, errors.New("tuning.min_notional must be >= 0"))
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// LoadCredentials reads the wallet material from the environment. Both
// variables are required and trimmed; empty values are an error.
func LoadCredentials() (*Credentials, error) {
	var errs []error

	key := strings.TrimSpace(os.Getenv(EnvPrivateKey))
	if key == "" {
		errs = append(errs, fmt.Errorf("%s env var is not set or empty", EnvPrivateKey))
	}
	wallet := strings.TrimSpace(os.Getenv(EnvWallet))
	if wallet == "" {
		errs = append(errs, fmt.Errorf("%s env var is not set or empty", EnvWallet))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Credentials{PrivateKey: key, Wallet: wallet}, nil
}
