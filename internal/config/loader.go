package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, EMBEDDINGS_BASE_URL, etc.)
//  2. YAML config file (~/.config/learning-agent/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, uses
// the default path ~/.config/learning-agent/config.yaml.
//
// Configuration files must live in ~/.config/learning-agent/ or
// /etc/learning-agent/, have 0600 or 0400 permissions, and stay under 1MB.
// The extraction API key may appear in the file, hence the permission
// check.
//
// Environment variables use underscore separator and are uppercased; the
// transformer maps SECTION_FIELD_NAME to section.field_name:
//
//	SERVER_HTTP_PORT -> server.http_port
//	EMBEDDINGS_BASE_URL -> embeddings.base_url
//	LEARNER_DEBOUNCE_WINDOW -> learner.debounce_window
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "learning-agent", "config.yaml")
	}

	// Validate config path (even if file doesn't exist)
	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}
	if _, err := os.Stat(configPath); err == nil {
		// Open file once and validate using file descriptor to avoid TOCTOU race
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables. Split on the first underscore
	// only: the section name never contains one, field names may.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ExpandPath resolves a leading ~/ against the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

// EnsureConfigDir creates the learning-agent config directory if it
// doesn't exist, with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "learning-agent")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Resolve symlinks so they cannot escape the allowed directories
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Symlink evaluation fails for paths that don't exist yet
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "learning-agent"),
		"/etc/learning-agent",
	}

	allowed := false
	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir) {
			allowed = true
			break
		}
	}

	if !allowed {
		return fmt.Errorf("config file must be in ~/.config/learning-agent/ or /etc/learning-agent/")
	}

	return nil
}

// validateConfigFileProperties checks file permissions and size.
// Takes FileInfo from an already-opened file descriptor to avoid TOCTOU race.
func validateConfigFileProperties(info os.FileInfo) error {
	// Skip permission check on Windows (different permission model)
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "~/.config/learning-agent/memories.db"
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = 10 * time.Second
	}

	if cfg.Extraction.BaseURL == "" {
		cfg.Extraction.BaseURL = "http://localhost:8081"
	}
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = 30 * time.Second
	}

	if cfg.Analyzer.MaxStatusChecks == 0 {
		cfg.Analyzer.MaxStatusChecks = 3
	}

	if cfg.Learner.DebounceWindow == 0 {
		cfg.Learner.DebounceWindow = 30 * time.Second
	}
	if cfg.Learner.ProcessTimeout == 0 {
		cfg.Learner.ProcessTimeout = 2 * time.Minute
	}

	if cfg.Retrieval.Limit == 0 {
		cfg.Retrieval.Limit = 3
	}
	if cfg.Retrieval.MinSimilarity == 0 {
		cfg.Retrieval.MinSimilarity = 0.5
	}
	if cfg.Retrieval.HistoryWindow == 0 {
		cfg.Retrieval.HistoryWindow = 10
	}

	if cfg.Lifecycle.DailyInterval == 0 {
		cfg.Lifecycle.DailyInterval = 24 * time.Hour
	}
	if cfg.Lifecycle.WeeklyInterval == 0 {
		cfg.Lifecycle.WeeklyInterval = 7 * 24 * time.Hour
	}
	if cfg.Lifecycle.MonthlyInterval == 0 {
		cfg.Lifecycle.MonthlyInterval = 30 * 24 * time.Hour
	}
	if cfg.Lifecycle.JobTimeout == 0 {
		cfg.Lifecycle.JobTimeout = 10 * time.Minute
	}
	if cfg.Lifecycle.StableUnusedDays == 0 {
		cfg.Lifecycle.StableUnusedDays = 30
	}
	if cfg.Lifecycle.DecliningUnusedDays == 0 {
		cfg.Lifecycle.DecliningUnusedDays = 90
	}
	if cfg.Lifecycle.ArchiveRetentionDays == 0 {
		cfg.Lifecycle.ArchiveRetentionDays = 180
	}
	if cfg.Lifecycle.FailedRetentionDays == 0 {
		cfg.Lifecycle.FailedRetentionDays = 7
	}
	if cfg.Lifecycle.GeneralizeSimilarity == 0 {
		cfg.Lifecycle.GeneralizeSimilarity = 0.85
	}
	if cfg.Lifecycle.GeneralizeConfidence == 0 {
		cfg.Lifecycle.GeneralizeConfidence = 0.8
	}
	if cfg.Lifecycle.GeneralizeApplications == 0 {
		cfg.Lifecycle.GeneralizeApplications = 5
	}
	if cfg.Lifecycle.GeneralizeGroupSize == 0 {
		cfg.Lifecycle.GeneralizeGroupSize = 3
	}
	if cfg.Lifecycle.DuplicateSimilarity == 0 {
		cfg.Lifecycle.DuplicateSimilarity = 0.95
	}
	if cfg.Lifecycle.LowValueConfidence == 0 {
		cfg.Lifecycle.LowValueConfidence = 0.5
	}
	if cfg.Lifecycle.LowValueApplications == 0 {
		cfg.Lifecycle.LowValueApplications = 2
	}
	if cfg.Lifecycle.LowValueAgeDays == 0 {
		cfg.Lifecycle.LowValueAgeDays = 60
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.NATS.Timeout == 0 {
		cfg.NATS.Timeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
