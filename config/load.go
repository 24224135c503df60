package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Log      LogConfig      `yaml:"log"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Screen   ScreenConfig   `yaml:"screen"`
	Keeper   KeeperConfig   `yaml:"keeper"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

type GatewayConfig struct {
	BaseURL   string  `yaml:"baseURL"`
	StreamURL string  `yaml:"streamURL"`
	Token     string  `yaml:"token"`
	RestRate  float64 `yaml:"restRate"`  // token bucket: requests per second
	RestBurst int     `yaml:"restBurst"` // token bucket: burst size
}

// ScreenConfig holds the eligibility thresholds; minIncomeRatio and
// maxPriceUSD are hot-reloadable through the Watcher.
type ScreenConfig struct {
	USDToRUB            float64 `yaml:"usdToRub"`
	MaxPriceUSD         float64 `yaml:"maxPriceUSD"`
	MinIncomeRatio      float64 `yaml:"minIncomeRatio"`
	RequireChangedToday bool    `yaml:"requireChangedToday"`
}

type KeeperConfig struct {
	ReconcileIntervalSec int    `yaml:"reconcileIntervalSec"`
	ThrottleCooldownSec  int    `yaml:"throttleCooldownSec"`
	Lots                 int    `yaml:"lots"`
	DedupTTLHours        int    `yaml:"dedupTTLHours"`
	MetricsAddr          string `yaml:"metricsAddr"`
}

type SnapshotConfig struct {
	Path       string `yaml:"path"`
	ReportPath string `yaml:"reportPath"`
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env
// vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("KEEPER_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}
	return cfg, Validate(cfg)
}

func (c *AppConfig) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Keeper.ReconcileIntervalSec <= 0 {
		c.Keeper.ReconcileIntervalSec = 20
	}
	if c.Keeper.ThrottleCooldownSec <= 0 {
		c.Keeper.ThrottleCooldownSec = 60
	}
	if c.Keeper.Lots <= 0 {
		c.Keeper.Lots = 1
	}
	if c.Keeper.DedupTTLHours <= 0 {
		c.Keeper.DedupTTLHours = 24
	}
	if c.Gateway.RestRate <= 0 {
		c.Gateway.RestRate = 2
	}
	if c.Gateway.RestBurst <= 0 {
		c.Gateway.RestBurst = 5
	}
}

// ReconcileInterval returns the cycle period as a duration.
func (c AppConfig) ReconcileInterval() time.Duration {
	return time.Duration(c.Keeper.ReconcileIntervalSec) * time.Second
}

// ThrottleCooldown returns the rate-limit cooldown as a duration.
func (c AppConfig) ThrottleCooldown() time.Duration {
	return time.Duration(c.Keeper.ThrottleCooldownSec) * time.Second
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Gateway.BaseURL == "" {
		return errors.New("gateway.baseURL is required")
	}
	if cfg.Gateway.Token == "" {
		return errors.New("gateway.token is required (or KEEPER_TOKEN)")
	}
	if cfg.Screen.USDToRUB <= 0 {
		return errors.New("screen.usdToRub must be > 0")
	}
	if cfg.Screen.MaxPriceUSD <= 0 {
		return errors.New("screen.maxPriceUSD must be > 0")
	}
	if cfg.Screen.MinIncomeRatio < 0 {
		return errors.New("screen.minIncomeRatio must be >= 0")
	}
	return nil
}
