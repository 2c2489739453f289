// Package config provides configuration loading for the learning agent.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables, with sensible defaults for everything.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete learning-agent configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Extraction ExtractionConfig `koanf:"extraction"`
	Analyzer   AnalyzerConfig   `koanf:"analyzer"`
	Learner    LearnerConfig    `koanf:"learner"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Lifecycle  LifecycleConfig  `koanf:"lifecycle"`
	NATS       NATSConfig       `koanf:"nats"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds the sqlite memory store location.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// EmbeddingsConfig holds the text-embeddings-inference endpoint settings.
type EmbeddingsConfig struct {
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
}

// ExtractionConfig holds the structured-extraction endpoint settings.
type ExtractionConfig struct {
	BaseURL string        `koanf:"base_url"`
	APIKey  Secret        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// AnalyzerConfig holds execution-analysis tunables.
type AnalyzerConfig struct {
	MaxStatusChecks int `koanf:"max_status_checks"`
}

// LearnerConfig holds background-learning scheduler tunables.
type LearnerConfig struct {
	DebounceWindow time.Duration `koanf:"debounce_window"`
	ProcessTimeout time.Duration `koanf:"process_timeout"`
}

// RetrievalConfig holds context-injection tunables.
type RetrievalConfig struct {
	Limit         int     `koanf:"limit"`
	MinSimilarity float64 `koanf:"min_similarity"`
	HistoryWindow int     `koanf:"history_window"`
}

// LifecycleConfig holds the lifecycle thresholds and job cadences.
type LifecycleConfig struct {
	DailyInterval   time.Duration `koanf:"daily_interval"`
	WeeklyInterval  time.Duration `koanf:"weekly_interval"`
	MonthlyInterval time.Duration `koanf:"monthly_interval"`
	JobTimeout      time.Duration `koanf:"job_timeout"`

	StableUnusedDays     int `koanf:"stable_unused_days"`
	DecliningUnusedDays  int `koanf:"declining_unused_days"`
	ArchiveRetentionDays int `koanf:"archive_retention_days"`
	FailedRetentionDays  int `koanf:"failed_retention_days"`

	GeneralizeSimilarity   float64 `koanf:"generalize_similarity"`
	GeneralizeConfidence   float64 `koanf:"generalize_confidence"`
	GeneralizeApplications int     `koanf:"generalize_applications"`
	GeneralizeGroupSize    int     `koanf:"generalize_group_size"`

	DuplicateSimilarity  float64 `koanf:"duplicate_similarity"`
	LowValueConfidence   float64 `koanf:"low_value_confidence"`
	LowValueApplications int     `koanf:"low_value_applications"`
	LowValueAgeDays      int     `koanf:"low_value_age_days"`
}

// NATSConfig holds the optional notification bus settings.
type NATSConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig holds logger construction settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Database.Path == "" {
		return errors.New("database path cannot be empty")
	}
	if c.Embeddings.BaseURL == "" {
		return errors.New("embeddings base URL cannot be empty")
	}
	if c.Extraction.BaseURL == "" {
		return errors.New("extraction base URL cannot be empty")
	}
	if c.Retrieval.MinSimilarity < 0 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("invalid retrieval min similarity: %f (must be 0-1)", c.Retrieval.MinSimilarity)
	}
	if c.Lifecycle.GeneralizeSimilarity < 0 || c.Lifecycle.GeneralizeSimilarity > 1 {
		return fmt.Errorf("invalid generalize similarity: %f (must be 0-1)", c.Lifecycle.GeneralizeSimilarity)
	}
	if c.Lifecycle.DuplicateSimilarity < 0 || c.Lifecycle.DuplicateSimilarity > 1 {
		return fmt.Errorf("invalid duplicate similarity: %f (must be 0-1)", c.Lifecycle.DuplicateSimilarity)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats url required when nats is enabled")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	return nil
}
