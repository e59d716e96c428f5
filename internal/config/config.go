package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/diabetes-risk-fusion/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a new configuration manager. configFile may be empty, in
// which case config.yaml is searched for in the usual locations.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{v: viper.New()}
	if configFile != "" {
		m.v.SetConfigFile(configFile)
	}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

func (m *Manager) loadConfig() error {
	v := m.v
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/diabetes-risk/")
	}

	// DRF_FUSION_WEIGHTS_PATH overrides fusion.weights_path, and so on.
	v.SetEnvPrefix("DRF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m.setDefaults()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

func (m *Manager) setDefaults() {
	v := m.v
	v.SetDefault("environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.persist_results", false)
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.rate_limit_period", "60s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "diabetes_risk")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "")

	v.SetDefault("outcomes.driver", "sqlite")
	v.SetDefault("outcomes.dsn", "outcomes.db")

	v.SetDefault("fusion.method", string(domain.FusionWeightedAverage))
	v.SetDefault("fusion.use_optimized_weights", true)
	v.SetDefault("fusion.weights_path", "models/fusion/optimal_weights.json")
	v.SetDefault("fusion.base_share", 0.7)
	v.SetDefault("fusion.confidence_share", 0.3)
	v.SetDefault("fusion.calibration_min", 0.4)
	v.SetDefault("fusion.calibration_max", 1.0)

	v.SetDefault("optimizer.learning_rate", 0.01)
	v.SetDefault("optimizer.regularization", 0.001)
	v.SetDefault("optimizer.epochs", 200)

	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1/chat/completions")
	v.SetDefault("llm.model", "openai/gpt-oss-120b")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.rate_limit", 100)
	v.SetDefault("llm.retry_count", 3)

	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "1h")
	v.SetDefault("cache.memory_size", 512)
	v.SetDefault("cache.pool_size", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetFusionConfig returns fusion engine configuration
func (m *Manager) GetFusionConfig() *domain.FusionConfig {
	return &m.config.Fusion
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if _, err := domain.ParseFusionMethod(config.Fusion.Method); err != nil {
		return fmt.Errorf("invalid fusion method %q: %w", config.Fusion.Method, err)
	}
	if config.Fusion.BaseShare < 0 || config.Fusion.ConfidenceShare < 0 ||
		config.Fusion.BaseShare+config.Fusion.ConfidenceShare <= 0 {
		return fmt.Errorf("fusion base/confidence shares must be non-negative with a positive sum")
	}
	if config.Fusion.CalibrationMax <= config.Fusion.CalibrationMin {
		return fmt.Errorf("calibration_max must exceed calibration_min")
	}

	if config.Optimizer.LearningRate <= 0 {
		return fmt.Errorf("optimizer learning rate must be positive")
	}
	if config.Optimizer.Regularization < 0 {
		return fmt.Errorf("optimizer regularization must not be negative")
	}

	switch config.Outcomes.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported outcomes driver: %s", config.Outcomes.Driver)
	}

	if config.Server.PersistResults && config.Database.Host == "" {
		return fmt.Errorf("database host is required when persist_results is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
