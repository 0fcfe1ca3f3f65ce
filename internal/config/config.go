package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Discovery modes
const (
	ModeRestart = "restart"
	ModeResume  = "resume"
)

// Results table layouts
const (
	LayoutIndexed = "indexed"
	LayoutColumn  = "column"
)

// Config holds all runtime configuration parameters
type Config struct {
	ListingURL       string            `json:"listing_url" yaml:"listing_url"`
	QuoteURL         string            `json:"quote_url" yaml:"quote_url"`
	PageSize         int               `json:"page_size" yaml:"page_size"`
	CheckpointEvery  int               `json:"checkpoint_every" yaml:"checkpoint_every"`
	DiscoveryMode    string            `json:"discovery_mode" yaml:"discovery_mode"`
	RequestTimeoutMs int               `json:"request_timeout_ms" yaml:"request_timeout_ms"`
	RetryAttempts    int               `json:"retry_attempts" yaml:"retry_attempts"`
	RetryDelayMs     int               `json:"retry_delay_ms" yaml:"retry_delay_ms"`
	RetryMaxDelayMs  int               `json:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`
	RetryMultiplier  float64           `json:"retry_multiplier" yaml:"retry_multiplier"`
	RetryJitter      float64           `json:"retry_jitter" yaml:"retry_jitter"`
	TickersPath      string            `json:"tickers_path" yaml:"tickers_path"`
	ResultsPath      string            `json:"results_path" yaml:"results_path"`
	ResultsLayout    string            `json:"results_layout" yaml:"results_layout"`
	DBPath           string            `json:"db_path" yaml:"db_path"`
	MetricsPath      string            `json:"metrics_path" yaml:"metrics_path"`
	LogLevel         string            `json:"log_level" yaml:"log_level"`
	Headers          map[string]string `json:"headers" yaml:"headers"`
}

// LoadConfig reads and validates configuration from a JSON or YAML file.
// A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	default:
		if err := decode(path, data, &cfg); err != nil {
			return nil, err
		}
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}
	return nil
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(cfg *Config) {
	if cfg.ListingURL == "" {
		cfg.ListingURL = "https://finviz.com/screener.ashx?v=111&f=ind_stocksonly"
	}
	if cfg.QuoteURL == "" {
		cfg.QuoteURL = "https://finviz.com/quote.ashx?t={ticker}&p=d"
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 20
	}
	if cfg.CheckpointEvery == 0 {
		cfg.CheckpointEvery = 10
	}
	if cfg.DiscoveryMode == "" {
		cfg.DiscoveryMode = ModeRestart
	}
	if cfg.RequestTimeoutMs == 0 {
		cfg.RequestTimeoutMs = 30000
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 8
	}
	if cfg.RetryDelayMs == 0 {
		cfg.RetryDelayMs = 3000
	}
	if cfg.RetryMaxDelayMs == 0 {
		cfg.RetryMaxDelayMs = 60000
	}
	if cfg.RetryMultiplier == 0 {
		cfg.RetryMultiplier = 2
	}
	if cfg.RetryJitter == 0 {
		cfg.RetryJitter = 0.25
	}
	if cfg.TickersPath == "" {
		cfg.TickersPath = "tickers.csv"
	}
	if cfg.ResultsPath == "" {
		cfg.ResultsPath = "financial_results.csv"
	}
	if cfg.ResultsLayout == "" {
		cfg.ResultsLayout = LayoutIndexed
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "weaver.db"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "metrics.log"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// validate checks that required fields are present and values are sensible
func validate(cfg *Config) error {
	if !strings.Contains(cfg.QuoteURL, "{ticker}") {
		return fmt.Errorf("quote_url must contain the {ticker} placeholder")
	}
	if cfg.PageSize < 1 {
		return fmt.Errorf("page_size must be >= 1")
	}
	if cfg.CheckpointEvery < 1 {
		return fmt.Errorf("checkpoint_every must be >= 1")
	}
	if cfg.DiscoveryMode != ModeRestart && cfg.DiscoveryMode != ModeResume {
		return fmt.Errorf("discovery_mode must be %q or %q", ModeRestart, ModeResume)
	}
	if cfg.ResultsLayout != LayoutIndexed && cfg.ResultsLayout != LayoutColumn {
		return fmt.Errorf("results_layout must be %q or %q", LayoutIndexed, LayoutColumn)
	}
	if cfg.RequestTimeoutMs < 1000 {
		return fmt.Errorf("request_timeout_ms must be >= 1000")
	}
	if cfg.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be >= 1")
	}
	if cfg.RetryMaxDelayMs < cfg.RetryDelayMs {
		return fmt.Errorf("retry_max_delay_ms must be >= retry_delay_ms")
	}
	if cfg.RetryMultiplier < 1 {
		return fmt.Errorf("retry_multiplier must be >= 1")
	}
	if cfg.RetryJitter < 0 || cfg.RetryJitter > 1 {
		return fmt.Errorf("retry_jitter must be within [0, 1]")
	}
	return nil
}
