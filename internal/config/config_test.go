package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.Identity)
	assert.Equal(t, ".haggle", cfg.DataDir)
	assert.Equal(t, filepath.Join(".haggle", "log.db"), cfg.LedgerPath())
	assert.Equal(t, filepath.Join(".haggle", "view.db"), cfg.ViewDBPath())
	assert.Equal(t, "memory", cfg.Bus.Driver)
	assert.Equal(t, "haggle:", cfg.Bus.Prefix)
	assert.True(t, cfg.Rules.Enabled)
	assert.Equal(t, 10, cfg.Rules.Limit)
	assert.Equal(t, time.Hour, cfg.Rules.Window)
	assert.Equal(t, 5*time.Second, cfg.Seller.Interval)
	assert.False(t, cfg.Buyer.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.ErrorContains(t, cfg.Validate(), "identity")
}

func TestLoad_FromYAMLFile(t *testing.T) {
	content := []byte(`
identity: alice
data_dir: /var/lib/haggle
view_path: /tmp/view.db
bus:
  driver: redis
  redis_addr: redis.example.com:6380
rules:
  limit: 3
  window: 30m
seller:
  enabled: true
  listings: [LST-001, LST-002]
  interval: 2s
buyer:
  enabled: true
  categories: [electronics]
  budget: "250.50"
log:
  level: debug
`)
	path := filepath.Join(t.TempDir(), "haggle.yaml")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "alice", cfg.Identity)
	assert.Equal(t, "/var/lib/haggle/log.db", cfg.LedgerPath())
	assert.Equal(t, "/tmp/view.db", cfg.ViewDBPath())
	assert.Equal(t, "redis", cfg.Bus.Driver)
	assert.Equal(t, "redis.example.com:6380", cfg.Bus.RedisAddr)
	assert.Equal(t, 3, cfg.Rules.Limit)
	assert.Equal(t, 30*time.Minute, cfg.Rules.Window)
	assert.Equal(t, []string{"LST-001", "LST-002"}, cfg.Seller.Listings)
	assert.Equal(t, 2*time.Second, cfg.Seller.Interval)
	assert.Equal(t, []string{"electronics"}, cfg.Buyer.Categories)

	budget, err := cfg.Buyer.BudgetAmount()
	require.NoError(t, err)
	assert.Equal(t, "250.5", budget.String())
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HAGGLE_IDENTITY", "bob")
	t.Setenv("HAGGLE_RULES_LIMIT", "25")
	t.Setenv("HAGGLE_BUS_DRIVER", "redis")
	t.Setenv("HAGGLE_BUS_REDIS_ADDR", "127.0.0.1:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "bob", cfg.Identity)
	assert.Equal(t, 25, cfg.Rules.Limit)
	assert.Equal(t, "redis", cfg.Bus.Driver)
	assert.Equal(t, "127.0.0.1:6379", cfg.Bus.RedisAddr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Identity: "alice",
			Bus:      BusConfig{Driver: "memory"},
			Rules:    RulesConfig{Limit: 10, Window: time.Hour},
			Log:      LogConfig{Level: "info"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"driver", func(c *Config) { c.Bus.Driver = "kafka" }, "bus.driver"},
		{"redis addr", func(c *Config) { c.Bus.Driver = "redis" }, "redis_addr"},
		{"limit", func(c *Config) { c.Rules.Limit = 0 }, "rules.limit"},
		{"window", func(c *Config) { c.Rules.Window = 0 }, "rules.window"},
		{"budget", func(c *Config) { c.Buyer.Enabled = true; c.Buyer.Budget = "lots" }, "buyer.budget"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}
