// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/riskflow/internal/utils"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds application configuration
type Config struct {
	DataDir     string   `toml:"data_dir"` // Base directory for all databases (always absolute after Load)
	LogLevel    string   `toml:"log_level"`
	LogPretty   bool     `toml:"log_pretty"`
	Port        int      `toml:"port"`
	DevMode     bool     `toml:"dev_mode"`
	CORSOrigins []string `toml:"cors_origins"`

	Engine  EngineConfig  `toml:"engine"`
	Pricing PricingConfig `toml:"pricing"`
	Risk    RiskConfig    `toml:"risk"`
}

// EngineConfig holds pattern orchestration settings
type EngineConfig struct {
	MaxConcurrency int    `toml:"max_concurrency"` // Steps of one run executing at the same time
	PatternsDir    string `toml:"patterns_dir"`    // Extra pattern documents loaded on top of the embedded set
}

// PricingConfig holds pricing pack settings
type PricingConfig struct {
	StalenessThreshold Duration `toml:"staleness_threshold"`
}

// RiskConfig holds risk computation settings
type RiskConfig struct {
	FactorWindow    int     `toml:"factor_window"`    // Trailing observations used in factor regressions
	MinObservations int     `toml:"min_observations"` // Below this the regression fails with insufficient history
	ScenariosFile   string  `toml:"scenarios_file"`   // Extra scenario library on top of the embedded set
	ReconcileTolBP  float64 `toml:"reconcile_tolerance_bp"`
	DefaultBase     string  `toml:"default_base_currency"`
}

// Duration is a time.Duration that reads from TOML strings such as "36h"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		DataDir:     "./data",
		LogLevel:    "info",
		LogPretty:   true,
		Port:        8010,
		CORSOrigins: []string{"*"},
		Engine: EngineConfig{
			MaxConcurrency: 4,
		},
		Pricing: PricingConfig{
			StalenessThreshold: Duration{36 * time.Hour},
		},
		Risk: RiskConfig{
			FactorWindow:    252,
			MinObservations: 60,
			ReconcileTolBP:  1.0,
			DefaultBase:     "USD",
		},
	}
}

// Load reads configuration with priority: defaults -> TOML file (RISKFLOW_CONFIG) -> environment.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	return LoadFromFile(os.Getenv("RISKFLOW_CONFIG"))
}

// LoadFromFile loads configuration from an optional TOML file and applies env overrides
func LoadFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	cfg.DataDir = absDataDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EnsureDataDir creates the data directory if it does not exist
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Engine.MaxConcurrency < 1 {
		return fmt.Errorf("engine.max_concurrency must be at least 1, got %d", c.Engine.MaxConcurrency)
	}
	if c.Pricing.StalenessThreshold.Duration <= 0 {
		return fmt.Errorf("pricing.staleness_threshold must be positive")
	}
	if c.Risk.MinObservations < 3 {
		return fmt.Errorf("risk.min_observations must be at least 3, got %d", c.Risk.MinObservations)
	}
	if c.Risk.FactorWindow < c.Risk.MinObservations {
		return fmt.Errorf("risk.factor_window (%d) must not be smaller than risk.min_observations (%d)",
			c.Risk.FactorWindow, c.Risk.MinObservations)
	}
	if c.Risk.ReconcileTolBP <= 0 {
		return fmt.Errorf("risk.reconcile_tolerance_bp must be positive")
	}
	return nil
}

// applyEnvOverrides applies RISKFLOW_* environment variable overrides
func applyEnvOverrides(c *Config) {
	c.DataDir = getEnv("RISKFLOW_DATA_DIR", c.DataDir)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogPretty = getEnvAsBool("RISKFLOW_LOG_PRETTY", c.LogPretty)
	c.Port = getEnvAsInt("RISKFLOW_PORT", c.Port)
	c.DevMode = getEnvAsBool("DEV_MODE", c.DevMode)
	if origins := utils.ParseCSV(os.Getenv("RISKFLOW_CORS_ORIGINS")); origins != nil {
		c.CORSOrigins = origins
	}

	c.Engine.MaxConcurrency = getEnvAsInt("RISKFLOW_MAX_CONCURRENCY", c.Engine.MaxConcurrency)
	c.Engine.PatternsDir = getEnv("RISKFLOW_PATTERNS_DIR", c.Engine.PatternsDir)

	if value := os.Getenv("RISKFLOW_STALENESS_THRESHOLD"); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			c.Pricing.StalenessThreshold = Duration{d}
		}
	}

	c.Risk.FactorWindow = getEnvAsInt("RISKFLOW_FACTOR_WINDOW", c.Risk.FactorWindow)
	c.Risk.MinObservations = getEnvAsInt("RISKFLOW_MIN_OBSERVATIONS", c.Risk.MinObservations)
	c.Risk.ScenariosFile = getEnv("RISKFLOW_SCENARIOS_FILE", c.Risk.ScenariosFile)
	c.Risk.DefaultBase = getEnv("RISKFLOW_BASE_CURRENCY", c.Risk.DefaultBase)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
