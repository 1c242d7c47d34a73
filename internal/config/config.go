package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application settings. Values come from the YAML config file
// with environment-variable overrides for deployment secrets.
type Config struct {
	// Storage
	DBPath    string `yaml:"db_path"`
	DraftsDir string `yaml:"drafts_dir"`
	FeedsPath string `yaml:"feeds_path"`

	// Gemini settings
	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`

	// Pipeline policy
	WindowHours       int `yaml:"window_hours"`        // recency window for clustering input
	ClusterInputLimit int `yaml:"cluster_input_limit"` // max records sent to the clusterer
	MinEntries        int `yaml:"min_entries"`         // minimum-volume gate, entries seen across all feeds

	// Network
	FeedTimeout     time.Duration `yaml:"-"`
	ArticleTimeout  time.Duration `yaml:"-"`
	LLMTimeout      time.Duration `yaml:"-"`
	FeedTimeoutSec  int           `yaml:"feed_timeout_secs"`
	ArticleTimeSec  int           `yaml:"article_timeout_secs"`
	LLMTimeoutSec   int           `yaml:"llm_timeout_secs"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryDelaySec   int           `yaml:"retry_delay_secs"`
	InsecureSkipTLS bool          `yaml:"insecure_skip_tls"`

	// Telegram notification (optional)
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`

	// Daemon mode
	DigestTime     string `yaml:"digest_time"` // HH:MM, local to Timezone
	Timezone       string `yaml:"timezone"`
	MonitoringPort string `yaml:"monitoring_port"`
}

// Defaults returns a Config with every tunable set to its default.
func Defaults() Config {
	return Config{
		DBPath:            "data/news.sqlite",
		DraftsDir:         "drafts",
		FeedsPath:         "configs/feeds.yaml",
		GeminiModel:       "gemini-1.5-flash",
		WindowHours:       36,
		ClusterInputLimit: 10,
		MinEntries:        5,
		FeedTimeoutSec:    20,
		ArticleTimeSec:    15,
		LLMTimeoutSec:     90,
		RetryAttempts:     2,
		RetryDelaySec:     5,
		DigestTime:        "07:00",
		Timezone:          "UTC",
		MonitoringPort:    "8080",
	}
}

// Load reads the YAML config at path (MARKETBRIEF_CONFIG overrides the path),
// applies environment overrides and validates the result. A missing file is not
// an error: defaults plus environment are enough for a local run.
func Load(path string) (*Config, error) {
	if envPath := os.Getenv("MARKETBRIEF_CONFIG"); envPath != "" {
		path = envPath
	}

	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// fall through to env overrides
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// Environment overrides
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("MARKETBRIEF_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("MARKETBRIEF_DRAFTS_DIR"); v != "" {
		cfg.DraftsDir = v
	}
	if v := os.Getenv("MARKETBRIEF_FEEDS"); v != "" {
		cfg.FeedsPath = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.TelegramToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.TelegramChatID = v
	}
	if v := os.Getenv("CLUSTER_INPUT_LIMIT"); v != "" {
		val, err := strconv.Atoi(v)
		if err != nil || val <= 0 {
			return nil, fmt.Errorf("config: CLUSTER_INPUT_LIMIT must be a positive integer, got %q", v)
		}
		cfg.ClusterInputLimit = val
	}
	if v := os.Getenv("MIN_ENTRIES"); v != "" {
		val, err := strconv.Atoi(v)
		if err != nil || val < 0 {
			return nil, fmt.Errorf("config: MIN_ENTRIES must be a non-negative integer, got %q", v)
		}
		cfg.MinEntries = val
	}

	cfg.FeedTimeout = time.Duration(cfg.FeedTimeoutSec) * time.Second
	cfg.ArticleTimeout = time.Duration(cfg.ArticleTimeSec) * time.Second
	cfg.LLMTimeout = time.Duration(cfg.LLMTimeoutSec) * time.Second

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural settings. The Gemini credential is checked later,
// at collaborator construction, so ingest-only runs work without it.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path is required")
	}
	if c.DraftsDir == "" {
		return fmt.Errorf("config: drafts_dir is required")
	}
	if c.FeedsPath == "" {
		return fmt.Errorf("config: feeds_path is required")
	}
	if c.WindowHours <= 0 {
		return fmt.Errorf("config: window_hours must be positive, got %d", c.WindowHours)
	}
	if c.ClusterInputLimit <= 0 {
		return fmt.Errorf("config: cluster_input_limit must be positive, got %d", c.ClusterInputLimit)
	}
	if c.MinEntries < 0 {
		return fmt.Errorf("config: min_entries must not be negative, got %d", c.MinEntries)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	if err := validateDigestTime(c.DigestTime); err != nil {
		return err
	}
	return nil
}

func validateDigestTime(v string) error {
	if _, err := time.Parse("15:04", v); err != nil {
		return fmt.Errorf("config: digest_time must be HH:MM, got %q", v)
	}
	return nil
}

// RetryDelay returns the configured delay between retry attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySec) * time.Second
}
