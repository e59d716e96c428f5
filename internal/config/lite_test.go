package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, "openai/gpt-oss-120b", cfg.GroqModel)
	assert.Equal(t, 512, cfg.CacheMaxItems)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, 60*time.Second, cfg.RateLimitPeriod)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LLMEnabled())
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 100, cfg.RateLimit)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("DRF_DATA_DIR", "/tmp/test-drf")
	t.Setenv("DATABASE_URL", "postgres://localhost/outcomes")
	t.Setenv("WEIGHTS_PATH", "/tmp/w.json")
	t.Setenv("GROQ_API_KEY", "test-key")
	t.Setenv("GROQ_MODEL", "llama-3.1-8b-instant")
	t.Setenv("CACHE_MAX_ITEMS", "64")
	t.Setenv("CACHE_TTL", "12h")
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("RATE_LIMIT_PERIOD", "30")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-drf", cfg.DataDir)
	assert.Equal(t, "postgres://localhost/outcomes", cfg.DatabaseURL)
	assert.Equal(t, "/tmp/w.json", cfg.ResolvedWeightsPath())
	assert.True(t, cfg.LLMEnabled())
	assert.Equal(t, "llama-3.1-8b-instant", cfg.GroqModel)
	assert.Equal(t, 64, cfg.CacheMaxItems)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 30*time.Second, cfg.RateLimitPeriod)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadLiteConfig_IgnoresInvalidNumbers(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("PORT", "not-a-port")
	t.Setenv("CACHE_MAX_ITEMS", "-3")

	cfg := LoadLiteConfig()

	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, 512, cfg.CacheMaxItems)
}

func TestLiteConfig_Paths(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.diabetes-risk"}

	assert.Equal(t, "/home/user/.diabetes-risk/outcomes.db", cfg.OutcomesDBPath())
	assert.Equal(t, "/home/user/.diabetes-risk/exports", cfg.ExportDir())
	assert.Equal(t, "/home/user/.diabetes-risk/optimal_weights.json", cfg.ResolvedWeightsPath())
}

func TestLiteConfig_OutcomesStore(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantDriver string
		wantDSN    string
	}{
		{"default sqlite file", "", "sqlite", "/data/outcomes.db"},
		{"postgres url", "postgres://u:p@db:5432/risk", "postgres", "postgres://u:p@db:5432/risk"},
		{"postgresql scheme", "postgresql://db/risk", "postgres", "postgresql://db/risk"},
		{"sqlite url", "sqlite:///tmp/o.db", "sqlite", "/tmp/o.db"},
		{"bare path", "/var/lib/o.db", "sqlite", "/var/lib/o.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &LiteConfig{DataDir: "/data", DatabaseURL: tt.url}
			driver, dsn := cfg.OutcomesStore()
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantDSN, dsn)
		})
	}
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	cfg := &LiteConfig{DataDir: filepath.Join(tmpDir, "drf")}

	err = cfg.EnsureDataDir()
	require.NoError(t, err)

	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)

	_, err = os.Stat(cfg.ExportDir())
	assert.NoError(t, err)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"DRF_DATA_DIR",
		"DATABASE_URL",
		"WEIGHTS_PATH",
		"GROQ_API_KEY",
		"GROQ_MODEL",
		"GROQ_URL",
		"REDIS_URL",
		"CACHE_MAX_ITEMS",
		"CACHE_TTL",
		"PORT",
		"CORS_ORIGINS",
		"RATE_LIMIT",
		"RATE_LIMIT_PERIOD",
		"LOG_LEVEL",
		"LOG_FORMAT",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}
