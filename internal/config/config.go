// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Browser BrowserConfig `mapstructure:"browser"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Sites   SitesConfig   `mapstructure:"sites"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port               int `mapstructure:"port"`
	MaxConcurrentCrawl int `mapstructure:"max_concurrent_crawls"`
	RequestTimeoutSec  int `mapstructure:"request_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// BrowserConfig configures the headless automation sessions.
type BrowserConfig struct {
	Headless     bool   `mapstructure:"headless"`
	ExecPath     string `mapstructure:"exec_path"`
	UserAgent    string `mapstructure:"user_agent"`
	OpTimeoutSec int    `mapstructure:"op_timeout_seconds"`
	WindowWidth  int    `mapstructure:"window_width"`
	WindowHeight int    `mapstructure:"window_height"`
}

// CrawlerConfig governs the engine: budgets, retries and pacing.
type CrawlerConfig struct {
	BudgetSeconds     int `mapstructure:"budget_seconds"`
	AttemptTimeoutSec int `mapstructure:"attempt_timeout_seconds"`
	PageDelayMs       int `mapstructure:"page_delay_ms"`
	MaxRetries        int `mapstructure:"max_retries"`
	BackoffInitialMs  int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int `mapstructure:"backoff_max_ms"`
	MaxPagesDefault   int `mapstructure:"max_pages_default"`
	SettleDelayMs     int `mapstructure:"settle_delay_ms"`
	HTTPTimeoutSec    int `mapstructure:"http_timeout_seconds"`
}

// SitesConfig allows overriding the board base URLs, mostly for tests and
// staging mirrors.
type SitesConfig struct {
	TOPISBaseURL string `mapstructure:"topis_base_url"`
	ICTRBaseURL  string `mapstructure:"ictr_base_url"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NOTICE_CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_concurrent_crawls", 2)
	v.SetDefault("server.request_timeout_seconds", 90)
	v.SetDefault("logging.development", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "notice-crawler/0.1")
	v.SetDefault("browser.op_timeout_seconds", 15)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 720)
	v.SetDefault("crawler.budget_seconds", 45)
	v.SetDefault("crawler.attempt_timeout_seconds", 15)
	v.SetDefault("crawler.page_delay_ms", 100)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.backoff_initial_ms", 250)
	v.SetDefault("crawler.backoff_max_ms", 5000)
	v.SetDefault("crawler.max_pages_default", 3)
	v.SetDefault("crawler.settle_delay_ms", 700)
	v.SetDefault("crawler.http_timeout_seconds", 10)
	v.SetDefault("sites.topis_base_url", "https://topis.seoul.go.kr")
	v.SetDefault("sites.ictr_base_url", "https://www.ictr.or.kr")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.MaxConcurrentCrawl <= 0 {
		return fmt.Errorf("server.max_concurrent_crawls must be > 0")
	}
	if c.Crawler.BudgetSeconds <= 0 {
		return fmt.Errorf("crawler.budget_seconds must be > 0")
	}
	if c.Crawler.AttemptTimeoutSec <= 0 {
		return fmt.Errorf("crawler.attempt_timeout_seconds must be > 0")
	}
	if c.Crawler.AttemptTimeoutSec >= c.Crawler.BudgetSeconds {
		return fmt.Errorf("crawler.attempt_timeout_seconds must be below the crawl budget")
	}
	if c.Crawler.MaxRetries <= 0 {
		return fmt.Errorf("crawler.max_retries must be > 0")
	}
	return nil
}

// Budget returns the crawl wall-clock budget as a duration.
func (c CrawlerConfig) Budget() time.Duration {
	return time.Duration(c.BudgetSeconds) * time.Second
}

// AttemptTimeout returns the per-attempt bound as a duration.
func (c CrawlerConfig) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptTimeoutSec) * time.Second
}

// PageDelay returns the inter-page pacing as a duration.
func (c CrawlerConfig) PageDelay() time.Duration {
	return time.Duration(c.PageDelayMs) * time.Millisecond
}
