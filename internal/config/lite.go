// Package config provides configuration management for the risk fusion services.
// This file contains the lightweight, environment-only configuration used by the
// stdio tool server and the training CLI.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	DataDir string

	// DatabaseURL points at the outcomes store. Empty means the SQLite file in DataDir.
	DatabaseURL string
	WeightsPath string

	GroqAPIKey string
	GroqModel  string
	GroqURL    string

	RedisURL      string
	CacheMaxItems int
	CacheTTL      time.Duration

	Port            int
	CORSOrigins     []string
	RateLimit       int
	RateLimitPeriod time.Duration

	LogLevel  string
	LogFormat string
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".diabetes-risk")

	return &LiteConfig{
		DataDir:         dataDir,
		GroqModel:       "openai/gpt-oss-120b",
		GroqURL:         "https://api.groq.com/openai/v1/chat/completions",
		CacheMaxItems:   512,
		CacheTTL:        time.Hour,
		Port:            5000,
		CORSOrigins:     []string{"http://localhost:3000"},
		RateLimit:       100,
		RateLimitPeriod: 60 * time.Second,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("DRF_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.WeightsPath = os.Getenv("WEIGHTS_PATH")

	cfg.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	if v := os.Getenv("GROQ_MODEL"); v != "" {
		cfg.GroqModel = v
	}
	if v := os.Getenv("GROQ_URL"); v != "" {
		cfg.GroqURL = v
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if v := os.Getenv("CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Port = n
		}
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimit = n
		}
	}
	// RATE_LIMIT_PERIOD is in seconds.
	if v := os.Getenv("RATE_LIMIT_PERIOD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitPeriod = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// LLMEnabled reports whether an API key is configured.
func (c *LiteConfig) LLMEnabled() bool {
	return c.GroqAPIKey != ""
}

// OutcomesDBPath returns the path to the outcomes SQLite database.
func (c *LiteConfig) OutcomesDBPath() string {
	return filepath.Join(c.DataDir, "outcomes.db")
}

// ResolvedWeightsPath returns WeightsPath or the default artifact location in DataDir.
func (c *LiteConfig) ResolvedWeightsPath() string {
	if c.WeightsPath != "" {
		return c.WeightsPath
	}
	return filepath.Join(c.DataDir, "optimal_weights.json")
}

// OutcomesStore returns the driver and DSN for the outcomes store. A
// postgres:// DATABASE_URL selects Postgres; anything else is a SQLite path.
func (c *LiteConfig) OutcomesStore() (driver, dsn string) {
	switch {
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return "postgres", c.DatabaseURL
	case c.DatabaseURL != "":
		return "sqlite", strings.TrimPrefix(c.DatabaseURL, "sqlite://")
	default:
		return "sqlite", c.OutcomesDBPath()
	}
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
