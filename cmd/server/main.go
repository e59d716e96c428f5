// Command server runs the risk fusion HTTP API.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/diabetes-risk-fusion/internal/api"
	"github.com/diabetes-risk-fusion/internal/cache"
	"github.com/diabetes-risk-fusion/internal/config"
	"github.com/diabetes-risk-fusion/internal/database"
	"github.com/diabetes-risk-fusion/internal/domain"
	"github.com/diabetes-risk-fusion/internal/fusion"
	"github.com/diabetes-risk-fusion/internal/optimizer"
	"github.com/diabetes-risk-fusion/internal/outcomes"
	"github.com/diabetes-risk-fusion/internal/repository"
	"github.com/diabetes-risk-fusion/internal/service"
	"github.com/diabetes-risk-fusion/internal/training"
	"github.com/diabetes-risk-fusion/pkg/external"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	// Load configuration
	configManager, err := config.NewManager(os.Getenv("DRF_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, configManager.GetConfig()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Server stopped")
}

func run(ctx context.Context, cfg *domain.Config) error {
	logger := config.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"environment": cfg.Environment,
	}).Info("Starting diabetes risk fusion API")

	metrics := api.NewMetrics()

	memCache := cache.NewMemoryCache(cfg.Cache.MemorySize, cfg.Cache.DefaultTTL)
	if err := metrics.RegisterGauge("drf_advice_cache_hit_rate", "Hit rate of the in-process advice cache.", func() float64 {
		return memCache.Stats().HitRate
	}); err != nil {
		return fmt.Errorf("registering cache gauge: %w", err)
	}
	adviceCaches := []service.AdviceCache{memCache}
	if cfg.Cache.RedisURL != "" {
		redisCache, err := external.NewCacheClient(cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, advice cache is memory only")
		} else {
			defer redisCache.Close()
			adviceCaches = append(adviceCaches, redisCache)
		}
	}

	artifact := optimizer.LoadArtifact(logger, cfg.Fusion.WeightsPath)
	engine := fusion.NewEngine(logger, fusion.ConfigFromDomain(cfg.Fusion), artifact.Weights())
	calibrator := fusion.NewCalibrator(cfg.Fusion.CalibrationMin, cfg.Fusion.CalibrationMax)

	var generator domain.TextGenerator
	groq := external.NewGroqClient(external.GroqConfigFromDomain(cfg.LLM), logger)
	if groq.Enabled() {
		generator = external.NewResilientTextGenerator(groq, external.DefaultCircuitBreakerConfig(), logger)
	}

	advisor := service.NewAdviceService(logger, generator, cfg.Cache.DefaultTTL, adviceCaches...)
	opts := []service.OrchestratorOption{
		service.WithAdvisor(advisor),
		service.WithCalibrator(calibrator),
	}

	var repo domain.AnalysisRepository
	if cfg.Server.PersistResults {
		db, err := connectDatabase(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := metrics.RegisterGauge("drf_db_pool_acquired_conns", "Connections currently acquired from the Postgres pool.", func() float64 {
			return float64(db.Stats().AcquiredConns())
		}); err != nil {
			return fmt.Errorf("registering pool gauge: %w", err)
		}

		analyses := repository.NewAnalysisRepository(db.Pool, logger)
		repo = analyses
		opts = append(opts, service.WithRepository(analyses))
	}

	store, err := outcomes.Open(cfg.Outcomes.Driver, cfg.Outcomes.DSN)
	if err != nil {
		return fmt.Errorf("opening outcomes store: %w", err)
	}
	defer store.Close()

	trainOpts := training.DefaultOptions()
	trainOpts.Epochs = cfg.Optimizer.Epochs

	trainer := training.NewTrainer(logger, optimizer.Config{
		LearningRate:   cfg.Optimizer.LearningRate,
		Regularization: cfg.Optimizer.Regularization,
	}, calibrator)

	orchestrator := service.NewOrchestrator(
		logger,
		service.NewPrecomputedRetinalClassifier(logger),
		service.NewPrecomputedLifestyleClassifier(logger),
		engine,
		opts...,
	)

	server := api.NewServer(cfg.Server, api.Dependencies{
		Orchestrator: orchestrator,
		Advisor:      advisor,
		Calibrator:   calibrator,
		Repository:   repo,
		Outcomes:     store,
		Trainer:      trainer,
		TrainOptions: trainOpts,
		Artifact:     artifact,
		Metrics:      metrics,
	}, logger)

	return server.Start(ctx)
}

// connectDatabase opens the pool and applies pending migrations.
func connectDatabase(ctx context.Context, dc domain.DatabaseConfig, logger *logrus.Logger) (*database.DB, error) {
	dbConfig := database.ConfigFromDomain(dc)

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	db, err := database.NewConnection(connectCtx, dbConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	runner, err := database.NewMigrationRunner(dbConfig.URL(), dc.MigrationsPath, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	defer runner.Close()

	if err := runner.Up(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
