package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestManager_Defaults(t *testing.T) {
	path := writeConfig(t, "environment: development\n")

	m, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	cfg := m.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "weighted_average", cfg.Fusion.Method)
	assert.True(t, cfg.Fusion.UseOptimizedWeights)
	assert.InDelta(t, 0.7, cfg.Fusion.BaseShare, 1e-9)
	assert.InDelta(t, 0.3, cfg.Fusion.ConfidenceShare, 1e-9)
	assert.InDelta(t, 0.4, cfg.Fusion.CalibrationMin, 1e-9)
	assert.InDelta(t, 0.01, cfg.Optimizer.LearningRate, 1e-9)
	assert.Equal(t, 500, cfg.LLM.MaxTokens)
	assert.Equal(t, "openai/gpt-oss-120b", cfg.LLM.Model)
	assert.True(t, m.IsDevelopment())
	assert.False(t, m.IsProduction())
}

func TestManager_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: production
server:
  port: 9000
fusion:
  method: max
  use_optimized_weights: false
  base_share: 0.6
  confidence_share: 0.4
outcomes:
  driver: postgres
  dsn: postgres://localhost/outcomes
`)

	m, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	assert.Equal(t, 9000, m.GetServerConfig().Port)
	assert.Equal(t, "max", m.GetFusionConfig().Method)
	assert.False(t, m.GetFusionConfig().UseOptimizedWeights)
	assert.InDelta(t, 0.6, m.GetFusionConfig().BaseShare, 1e-9)
	assert.Equal(t, "postgres", m.GetConfig().Outcomes.Driver)
	assert.True(t, m.IsProduction())
}

func TestManager_Validate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad port", "server:\n  port: 70000\n"},
		{"bad method", "fusion:\n  method: median\n"},
		{"bad shares", "fusion:\n  base_share: 0\n  confidence_share: 0\n"},
		{"bad calibration", "fusion:\n  calibration_min: 0.9\n  calibration_max: 0.5\n"},
		{"bad driver", "outcomes:\n  driver: mysql\n"},
		{"bad log level", "logging:\n  level: loud\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(writeConfig(t, tt.body))
			require.NoError(t, err)
			assert.Error(t, m.Validate())
		})
	}
}

func TestManager_ConnectionStrings(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db
  port: 5433
  database: risk
  username: app
  password: secret
cache:
  redis_url: redis://cache:6379/0
`)
	m, err := NewManager(path)
	require.NoError(t, err)

	assert.Equal(t, "host=db port=5433 user=app password=secret dbname=risk sslmode=disable", m.GetDatabaseConnectionString())
	assert.Equal(t, "redis://cache:6379/0", m.GetRedisConnectionString())
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("debug", "text")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	_, isText := logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)

	logger = NewLogger("nonsense", "json")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
