package livequest

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a livequest server. Values come from an
// optional YAML file with environment-variable overrides on top.
type Config struct {
	Addr      string `yaml:"addr"`       // Listen address (default ":8080")
	PublicURL string `yaml:"public_url"` // Canonical base URL (default "http://localhost:8080")

	DatabasePath          string `yaml:"database_path"`           // Updates SQLite path (default "data/livequest.db")
	AnalyticsDatabasePath string `yaml:"analytics_database_path"` // Session telemetry SQLite path (default "data/analytics.db")
	StorageDir            string `yaml:"storage_dir"`             // Public storage object root (default "storage")

	SessionSecret string `yaml:"session_secret"` // Required: viewer cookie signing secret
	CookieSecure  bool   `yaml:"cookie_secure"`  // Set true behind HTTPS

	FeedPageSize int           `yaml:"feed_page_size"` // Snapshot row cap (default 50)
	FeedCacheTTL time.Duration `yaml:"feed_cache_ttl"` // Snapshot cache TTL (default 2s)

	TrackRateLimit  int           `yaml:"track_rate_limit"`  // Track calls per IP per window (default 120)
	TrackRateWindow time.Duration `yaml:"track_rate_window"` // Track limiter window (default 1m)

	LogLevel string `yaml:"log_level"` // zerolog level name (default "info")
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.PublicURL == "" {
		c.PublicURL = "http://localhost:8080"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/livequest.db"
	}
	if c.AnalyticsDatabasePath == "" {
		c.AnalyticsDatabasePath = "data/analytics.db"
	}
	if c.StorageDir == "" {
		c.StorageDir = "storage"
	}
	if c.FeedPageSize <= 0 {
		c.FeedPageSize = 50
	}
	if c.FeedCacheTTL <= 0 {
		c.FeedCacheTTL = 2 * time.Second
	}
	if c.TrackRateLimit <= 0 {
		c.TrackRateLimit = 120
	}
	if c.TrackRateWindow <= 0 {
		c.TrackRateWindow = time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// LoadConfig reads configuration from path (skipped when empty), then applies
// environment overrides and defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.Addr = EnvOr("LIVEQUEST_ADDR", cfg.Addr)
	cfg.PublicURL = EnvOr("LIVEQUEST_PUBLIC_URL", cfg.PublicURL)
	cfg.DatabasePath = EnvOr("LIVEQUEST_DB", cfg.DatabasePath)
	cfg.AnalyticsDatabasePath = EnvOr("LIVEQUEST_ANALYTICS_DB", cfg.AnalyticsDatabasePath)
	cfg.StorageDir = EnvOr("LIVEQUEST_STORAGE_DIR", cfg.StorageDir)
	cfg.SessionSecret = EnvOr("LIVEQUEST_SESSION_SECRET", cfg.SessionSecret)
	cfg.LogLevel = EnvOr("LIVEQUEST_LOG_LEVEL", cfg.LogLevel)
	if os.Getenv("LIVEQUEST_COOKIE_SECURE") == "true" {
		cfg.CookieSecure = true
	}

	cfg.setDefaults()
	return cfg, nil
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
