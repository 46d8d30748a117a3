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
	DB       DBConfig       `mapstructure:"db"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the health/metrics HTTP listener.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
	JobsTable    string `mapstructure:"jobs_table"`
	LifetimeMins int    `mapstructure:"conn_lifetime_minutes"`
}

// WorkerConfig governs the claim/search/extract/persist loop.
type WorkerConfig struct {
	IdlePollSeconds int    `mapstructure:"idle_poll_seconds"`
	EventTopic      string `mapstructure:"event_topic"`
}

// BrowserConfig configures the headless browser session per search.
type BrowserConfig struct {
	Headless           bool    `mapstructure:"headless"`
	NavTimeoutSeconds  int     `mapstructure:"nav_timeout_seconds"`
	ScrollIterations   int     `mapstructure:"scroll_iterations"`
	ScrollSettleMillis int     `mapstructure:"scroll_settle_ms"`
	SearchBaseURL      string  `mapstructure:"search_base_url"`
	UserAgent          string  `mapstructure:"user_agent"`
	Language           string  `mapstructure:"language"`
	SearchesPerMinute  float64 `mapstructure:"searches_per_minute"`
}

// RetryConfig bounds transient navigation retries inside the Searching step.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

// SnapshotConfig selects where blocked-page diagnostics are written.
type SnapshotConfig struct {
	Provider  string `mapstructure:"provider"` // local, gcs or none
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for observation-completed notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MEORANK")
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
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("worker.idle_poll_seconds", 5)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.scroll_iterations", 5)
	v.SetDefault("browser.scroll_settle_ms", 800)
	v.SetDefault("browser.search_base_url", "https://www.google.com/maps/search/")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.language", "ja")
	v.SetDefault("browser.searches_per_minute", 6)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 500)
	v.SetDefault("retry.max_delay_ms", 8000)
	v.SetDefault("snapshot.provider", "local")
	v.SetDefault("snapshot.base_dir", "data/snapshots")
	v.SetDefault("snapshot.prefix", "blocked")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Worker.IdlePollSeconds <= 0 {
		return fmt.Errorf("worker.idle_poll_seconds must be > 0")
	}
	if c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Browser.ScrollIterations < 0 {
		return fmt.Errorf("browser.scroll_iterations must be >= 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	switch c.Snapshot.Provider {
	case "local", "gcs", "none":
	default:
		return fmt.Errorf("snapshot.provider must be local, gcs or none")
	}
	if c.Snapshot.Provider == "gcs" && c.Snapshot.GCSBucket == "" {
		return fmt.Errorf("snapshot.gcs_bucket must be set when snapshot.provider is gcs")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// IdlePoll returns the worker idle interval as a duration.
func (c Config) IdlePoll() time.Duration {
	return time.Duration(c.Worker.IdlePollSeconds) * time.Second
}

// NavTimeout returns the per-navigation budget as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// ScrollSettle returns the per-scroll settle delay as a duration.
func (c Config) ScrollSettle() time.Duration {
	return time.Duration(c.Browser.ScrollSettleMillis) * time.Millisecond
}
