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
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Database     DatabaseConfig     `mapstructure:"database"`
	ContentStore ContentStoreConfig `mapstructure:"contentstore"`
	Fetcher      FetcherConfig      `mapstructure:"fetcher"`
	RefManager   RefManagerConfig   `mapstructure:"refmanager"`
	AI           AIConfig           `mapstructure:"ai"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Batch        BatchConfig        `mapstructure:"batch"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DatabaseConfig controls access to the relational database. Driver
// "memory" selects the in-process store for local runs and tests.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// ContentStoreConfig sets where fetched page content is cached. Backend
// "memory" keeps content in-process.
type ContentStoreConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
}

// FetcherConfig governs page retrieval. Robots.txt is honored unless
// ignore_robots is set.
type FetcherConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
	IgnoreRobots   bool   `mapstructure:"ignore_robots"`
}

// RefManagerConfig configures the reference manager API client.
type RefManagerConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	APIKey            string  `mapstructure:"api_key"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	RetryAttempts     int     `mapstructure:"retry_attempts"`
}

// AIConfig configures the AI metadata extraction fallback. An empty API
// key disables the stage.
type AIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxPromptChars int    `mapstructure:"max_prompt_chars"`
}

// PipelineConfig governs the processing cascade.
type PipelineConfig struct {
	MaxAttempts         int      `mapstructure:"max_attempts"`
	StageTimeoutSeconds int      `mapstructure:"stage_timeout_seconds"`
	RequireAIApproval   bool     `mapstructure:"require_ai_approval"`
	TranslatorDomains   []string `mapstructure:"translator_domains"`
}

// BatchConfig bounds batch processing concurrency.
type BatchConfig struct {
	Workers int `mapstructure:"workers"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CITEPIPE")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("contentstore.backend", "memory")
	v.SetDefault("contentstore.base_dir", "data/content")
	v.SetDefault("fetcher.user_agent", "citepipe-bot/0.1")
	v.SetDefault("fetcher.timeout_seconds", 30)
	v.SetDefault("fetcher.max_body_bytes", 10*1024*1024)
	v.SetDefault("fetcher.ignore_robots", false)
	v.SetDefault("refmanager.timeout_seconds", 30)
	v.SetDefault("refmanager.requests_per_second", 2)
	v.SetDefault("refmanager.retry_attempts", 3)
	v.SetDefault("ai.timeout_seconds", 60)
	v.SetDefault("ai.max_prompt_chars", 16000)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.stage_timeout_seconds", 60)
	v.SetDefault("pipeline.require_ai_approval", false)
	v.SetDefault("batch.workers", 4)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set when database.driver is postgres")
		}
	default:
		return fmt.Errorf("database.driver must be memory or postgres")
	}
	switch c.ContentStore.Backend {
	case "memory":
	case "fs":
		if c.ContentStore.BaseDir == "" {
			return fmt.Errorf("contentstore.base_dir must be set when contentstore.backend is fs")
		}
	default:
		return fmt.Errorf("contentstore.backend must be memory or fs")
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.timeout_seconds must be > 0")
	}
	if c.RefManager.BaseURL == "" {
		return fmt.Errorf("refmanager.base_url must be set")
	}
	if c.Pipeline.MaxAttempts <= 0 {
		return fmt.Errorf("pipeline.max_attempts must be > 0")
	}
	if c.Pipeline.StageTimeoutSeconds <= 0 {
		return fmt.Errorf("pipeline.stage_timeout_seconds must be > 0")
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("batch.workers must be > 0")
	}
	return nil
}

// StageTimeout converts the configured stage budget into a duration.
func (c Config) StageTimeout() time.Duration {
	return time.Duration(c.Pipeline.StageTimeoutSeconds) * time.Second
}
