// Package config provides configuration management for the trading core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Engine        EngineConfig       `mapstructure:"engine"`
	Feed          FeedConfig         `mapstructure:"feed"`
	Ledger        LedgerConfig       `mapstructure:"ledger"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Log           LogConfig          `mapstructure:"log"`
}

// EngineConfig holds order execution engine configuration.
type EngineConfig struct {
	PollIntervalMs    int `mapstructure:"poll_interval_ms"`
	MaxSymbolsPerTick int `mapstructure:"max_symbols_per_tick"`
	SymbolConcurrency int `mapstructure:"symbol_concurrency"`
}

// PollInterval returns the polling cadence as a duration.
func (c EngineConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// FeedConfig holds price feed configuration.
type FeedConfig struct {
	BaseURL              string        `mapstructure:"base_url"`
	APIKey               string        `mapstructure:"api_key"`
	MaxRequestsPerMinute int           `mapstructure:"max_requests_per_minute"`
	CacheTTL             time.Duration `mapstructure:"cache_ttl"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
}

// LedgerConfig holds ledger store configuration.
type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
	Path    string `mapstructure:"path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/papertrader"
	}
	return filepath.Join(home, ".config", "papertrader")
}

// Load loads configuration from the specified directory. If configDir
// is empty, the default config directory is used. A missing config file
// is not an error; defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("PAPERTRADER")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Engine: ~3.5s cadence matches a quote feed refreshed every few
	// seconds; 0 means no per-tick symbol cap.
	v.SetDefault("engine.poll_interval_ms", 3500)
	v.SetDefault("engine.max_symbols_per_tick", 0)
	v.SetDefault("engine.symbol_concurrency", 4)

	v.SetDefault("feed.base_url", "https://api.polygon.io")
	v.SetDefault("feed.api_key", "")
	v.SetDefault("feed.max_requests_per_minute", 40)
	v.SetDefault("feed.cache_ttl", 2*time.Second)
	v.SetDefault("feed.request_timeout", 10*time.Second)

	v.SetDefault("ledger.path", filepath.Join(DefaultConfigDir(), "ledger.db"))

	v.SetDefault("notifications.webhook.enabled", false)
	v.SetDefault("notifications.webhook.url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", false)
	v.SetDefault("log.path", filepath.Join(DefaultConfigDir(), "logs", "papertrader.log"))
}
