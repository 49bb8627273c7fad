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
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Store    StoreConfig    `mapstructure:"store"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScrapeConfig governs jurisdiction run behavior.
type ScrapeConfig struct {
	DefaultMethod      string `mapstructure:"default_method"`
	StepTimeoutSeconds int    `mapstructure:"step_timeout_seconds"`
	MaxListingPages    int    `mapstructure:"max_listing_pages"`
	SummaryTopic       string `mapstructure:"summary_topic"`
}

// BrowserConfig configures the session methods.
type BrowserConfig struct {
	UserAgent string         `mapstructure:"user_agent"`
	Headless  HeadlessConfig `mapstructure:"headless"`
	Static    StaticConfig   `mapstructure:"static"`
	Colly     CollyConfig    `mapstructure:"colly"`
}

// HeadlessConfig configures chromedp sessions.
type HeadlessConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	SettleWaitMs int  `mapstructure:"settle_wait_ms"`
	NoSandbox    bool `mapstructure:"no_sandbox"`
}

// StaticConfig configures plain HTTP sessions.
type StaticConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	HostQPS        float64 `mapstructure:"host_qps"`
}

// CollyConfig configures colly sessions.
type CollyConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RespectRobots  bool `mapstructure:"respect_robots"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
	DelayMs        int  `mapstructure:"delay_ms"`
}

// BatchConfig sizes the batch worker pool and its pacing.
type BatchConfig struct {
	Workers       int `mapstructure:"workers"`
	PacePerMinute int `mapstructure:"pace_per_minute"`
}

// StoreConfig controls agency persistence.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// ArchiveConfig controls raw page snapshots.
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
// Backend "memory" records messages in-process for development.
type PubSubConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Backend    string `mapstructure:"backend"`
	ProjectID  string `mapstructure:"project_id"`
	EventTopic string `mapstructure:"event_topic"`
}

// ProgressConfig sizes the run event hub.
type ProgressConfig struct {
	Buffer    int `mapstructure:"buffer"`
	BatchSize int `mapstructure:"batch_size"`
	FlushMs   int `mapstructure:"flush_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NPIDB")
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
	v.SetDefault("scrape.default_method", "headless")
	v.SetDefault("scrape.step_timeout_seconds", 25)
	v.SetDefault("scrape.max_listing_pages", 100)
	v.SetDefault("scrape.summary_topic", "npidb.runs")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.headless.enabled", true)
	v.SetDefault("browser.headless.settle_wait_ms", 500)
	v.SetDefault("browser.headless.no_sandbox", false)
	v.SetDefault("browser.static.enabled", true)
	v.SetDefault("browser.static.timeout_seconds", 30)
	v.SetDefault("browser.static.host_qps", 1.0)
	v.SetDefault("browser.colly.enabled", true)
	v.SetDefault("browser.colly.respect_robots", false)
	v.SetDefault("browser.colly.timeout_seconds", 30)
	v.SetDefault("browser.colly.delay_ms", 1000)
	v.SetDefault("batch.workers", 2)
	v.SetDefault("batch.pace_per_minute", 6)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.backend", "local")
	v.SetDefault("archive.local_dir", "data/pages")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.backend", "pubsub")
	v.SetDefault("pubsub.event_topic", "npidb.events")
	v.SetDefault("progress.buffer", 1024)
	v.SetDefault("progress.batch_size", 256)
	v.SetDefault("progress.flush_ms", 500)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scrape.StepTimeoutSeconds <= 0 {
		return fmt.Errorf("scrape.step_timeout_seconds must be > 0")
	}
	if c.Scrape.MaxListingPages <= 0 {
		return fmt.Errorf("scrape.max_listing_pages must be > 0")
	}
	switch c.Scrape.DefaultMethod {
	case "headless", "static", "colly":
	default:
		return fmt.Errorf("scrape.default_method must be headless, static, or colly")
	}
	if !c.Browser.Headless.Enabled && !c.Browser.Static.Enabled && !c.Browser.Colly.Enabled {
		return fmt.Errorf("browser: at least one session method must be enabled")
	}
	if !c.methodEnabled(c.Scrape.DefaultMethod) {
		return fmt.Errorf("scrape.default_method %q is not enabled", c.Scrape.DefaultMethod)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("batch.workers must be > 0")
	}
	if c.Batch.PacePerMinute <= 0 {
		return fmt.Errorf("batch.pace_per_minute must be > 0")
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set when store.driver is postgres")
		}
	default:
		return fmt.Errorf("store.driver must be memory or postgres")
	}
	if c.Archive.Enabled {
		switch c.Archive.Backend {
		case "memory":
		case "local":
			if c.Archive.LocalDir == "" {
				return fmt.Errorf("archive.local_dir must be set when archive.backend is local")
			}
		case "gcs":
			if c.Archive.GCSBucket == "" {
				return fmt.Errorf("archive.gcs_bucket must be set when archive.backend is gcs")
			}
		default:
			return fmt.Errorf("archive.backend must be memory, local, or gcs")
		}
	}
	if c.PubSub.Enabled {
		switch c.PubSub.Backend {
		case "memory":
		case "pubsub":
			if c.PubSub.ProjectID == "" {
				return fmt.Errorf("pubsub.project_id must be set when pubsub.backend is pubsub")
			}
		default:
			return fmt.Errorf("pubsub.backend must be pubsub or memory")
		}
		if c.PubSub.EventTopic == "" {
			return fmt.Errorf("pubsub.event_topic must be set when pubsub is enabled")
		}
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

func (c Config) methodEnabled(method string) bool {
	switch method {
	case "headless":
		return c.Browser.Headless.Enabled
	case "static":
		return c.Browser.Static.Enabled
	case "colly":
		return c.Browser.Colly.Enabled
	}
	return false
}

// StepTimeout converts the step timeout config into a duration.
func (c Config) StepTimeout() time.Duration {
	return time.Duration(c.Scrape.StepTimeoutSeconds) * time.Second
}

// SettleWait converts the headless settle pause config into a duration.
func (c Config) SettleWait() time.Duration {
	return time.Duration(c.Browser.Headless.SettleWaitMs) * time.Millisecond
}

// StaticTimeout converts the static client timeout config into a duration.
func (c Config) StaticTimeout() time.Duration {
	return time.Duration(c.Browser.Static.TimeoutSeconds) * time.Second
}

// CollyTimeout converts the colly request timeout config into a duration.
func (c Config) CollyTimeout() time.Duration {
	return time.Duration(c.Browser.Colly.TimeoutSeconds) * time.Second
}

// CollyDelay converts the colly per-domain delay config into a duration.
func (c Config) CollyDelay() time.Duration {
	return time.Duration(c.Browser.Colly.DelayMs) * time.Millisecond
}

// FlushInterval converts the progress flush config into a duration.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.Progress.FlushMs) * time.Millisecond
}
