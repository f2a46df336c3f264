// Package config loads node configuration from a YAML file and HAGGLE_
// environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all node configuration.
type Config struct {
	Identity string       `mapstructure:"identity"`
	DataDir  string       `mapstructure:"data_dir"`
	LogPath  string       `mapstructure:"log_path"`  // ledger database
	ViewPath string       `mapstructure:"view_path"` // view database
	Bus      BusConfig    `mapstructure:"bus"`
	Rules    RulesConfig  `mapstructure:"rules"`
	Seller   SellerConfig `mapstructure:"seller"`
	Buyer    BuyerConfig  `mapstructure:"buyer"`
	Log      LogConfig    `mapstructure:"log"`
}

type BusConfig struct {
	Driver    string `mapstructure:"driver"` // memory, redis
	RedisAddr string `mapstructure:"redis_addr"`
	Prefix    string `mapstructure:"prefix"`
}

type RulesConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

type SellerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Listings []string      `mapstructure:"listings"`
	Interval time.Duration `mapstructure:"interval"`
}

type BuyerConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Categories []string      `mapstructure:"categories"`
	Budget     string        `mapstructure:"budget"`
	Interval   time.Duration `mapstructure:"interval"`
}

// BudgetAmount parses the buyer budget.
func (b BuyerConfig) BudgetAmount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(b.Budget)
	if err != nil {
		return decimal.Zero, fmt.Errorf("buyer.budget %q: %w", b.Budget, err)
	}
	return d, nil
}

type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// LedgerPath returns the log database path, defaulting into DataDir.
func (c *Config) LedgerPath() string {
	if c.LogPath != "" {
		return c.LogPath
	}
	return filepath.Join(c.DataDir, "log.db")
}

// ViewDBPath returns the view database path, defaulting into DataDir.
func (c *Config) ViewDBPath() string {
	if c.ViewPath != "" {
		return c.ViewPath
	}
	return filepath.Join(c.DataDir, "view.db")
}

// Validate checks values that defaults cannot fix.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Identity) == "" {
		return fmt.Errorf("identity is required")
	}
	switch c.Bus.Driver {
	case "memory":
	case "redis":
		if c.Bus.RedisAddr == "" {
			return fmt.Errorf("bus.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("bus.driver %q: want memory or redis", c.Bus.Driver)
	}
	if c.Rules.Limit <= 0 {
		return fmt.Errorf("rules.limit must be positive")
	}
	if c.Rules.Window <= 0 {
		return fmt.Errorf("rules.window must be positive")
	}
	if c.Buyer.Enabled {
		if _, err := c.Buyer.BudgetAmount(); err != nil {
			return err
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level)
	}
	return nil
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: HAGGLE_.
// Nested keys use underscore: HAGGLE_BUS_DRIVER, HAGGLE_RULES_LIMIT, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("identity", "")
	v.SetDefault("data_dir", ".haggle")
	v.SetDefault("log_path", "")
	v.SetDefault("view_path", "")
	v.SetDefault("bus.driver", "memory")
	v.SetDefault("bus.redis_addr", "localhost:6379")
	v.SetDefault("bus.prefix", "haggle:")
	v.SetDefault("rules.enabled", true)
	v.SetDefault("rules.limit", 10)
	v.SetDefault("rules.window", "1h")
	v.SetDefault("seller.enabled", false)
	v.SetDefault("seller.listings", []string{})
	v.SetDefault("seller.interval", "5s")
	v.SetDefault("buyer.enabled", false)
	v.SetDefault("buyer.categories", []string{})
	v.SetDefault("buyer.budget", "0")
	v.SetDefault("buyer.interval", "5s")
	v.SetDefault("log.level", "info")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("haggle")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment variables: HAGGLE_BUS_DRIVER -> bus.driver
	v.SetEnvPrefix("HAGGLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required: env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
