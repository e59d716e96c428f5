package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Outcomes    OutcomesConfig  `mapstructure:"outcomes"`
	Fusion      FusionConfig    `mapstructure:"fusion"`
	Optimizer   OptimizerConfig `mapstructure:"optimizer"`
	LLM         LLMConfig       `mapstructure:"llm"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Logging     LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`

	// RateLimit is requests per client per RateLimitPeriod; zero disables it.
	RateLimit       int           `mapstructure:"rate_limit"`
	RateLimitPeriod time.Duration `mapstructure:"rate_limit_period"`

	// PersistResults stores each analysis in Postgres when a database is configured.
	PersistResults bool `mapstructure:"persist_results"`
}

// DatabaseConfig represents the Postgres connection used for analysis history
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// OutcomesConfig selects the labeled-outcome store backing weight training
type OutcomesConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// FusionConfig controls the fusion engine
type FusionConfig struct {
	Method              string  `mapstructure:"method"`
	UseOptimizedWeights bool    `mapstructure:"use_optimized_weights"`
	WeightsPath         string  `mapstructure:"weights_path"`
	BaseShare           float64 `mapstructure:"base_share"`
	ConfidenceShare     float64 `mapstructure:"confidence_share"`
	CalibrationMin      float64 `mapstructure:"calibration_min"`
	CalibrationMax      float64 `mapstructure:"calibration_max"`
}

// OptimizerConfig holds weight optimizer hyperparameters
type OptimizerConfig struct {
	LearningRate   float64 `mapstructure:"learning_rate"`
	Regularization float64 `mapstructure:"regularization"`
	Epochs         int     `mapstructure:"epochs"`
}

// LLMConfig represents the advice-generation LLM configuration
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   int           `mapstructure:"rate_limit"`
	RetryCount  int           `mapstructure:"retry_count"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	RedisURL   string        `mapstructure:"redis_url"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	MemorySize int           `mapstructure:"memory_size"`
	PoolSize   int           `mapstructure:"pool_size"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
