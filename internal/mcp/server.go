// Package mcp exposes the risk fusion pipeline as MCP tools over stdio.
// The server needs no external services: outcomes go to SQLite unless
// DATABASE_URL points at Postgres, and advice is cached in memory unless
// REDIS_URL is set.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/diabetes-risk-fusion/internal/cache"
	"github.com/diabetes-risk-fusion/internal/config"
	"github.com/diabetes-risk-fusion/internal/domain"
	"github.com/diabetes-risk-fusion/internal/fusion"
	"github.com/diabetes-risk-fusion/internal/optimizer"
	"github.com/diabetes-risk-fusion/internal/outcomes"
	"github.com/diabetes-risk-fusion/internal/service"
	"github.com/diabetes-risk-fusion/internal/simulation"
	"github.com/diabetes-risk-fusion/pkg/external"
)

const (
	serverName    = "diabetes-risk-fusion"
	serverVersion = "v1.0.0"
)

// Server is the stdio MCP server.
type Server struct {
	config       *config.LiteConfig
	mcpServer    *mcp.Server
	orchestrator *service.Orchestrator
	advisor      *service.AdviceService
	simulator    *simulation.Engine
	calibrator   fusion.Calibrator
	artifact     *optimizer.Artifact
	store        outcomes.Store
	cache        *cache.MemoryCache
	redis        *external.CacheClient
	generator    domain.TextGenerator
	logger       *logrus.Logger
}

// ServerOption is a functional option for Server.
type ServerOption func(*Server) error

// WithOutcomesStore sets a custom outcomes store.
func WithOutcomesStore(store outcomes.Store) ServerOption {
	return func(s *Server) error {
		s.store = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithTextGenerator replaces the Groq client used for advice.
func WithTextGenerator(gen domain.TextGenerator) ServerOption {
	return func(s *Server) error {
		s.generator = gen
		return nil
	}
}

// NewServer creates the MCP server and registers its tools.
func NewServer(cfg *config.LiteConfig, opts ...ServerOption) (*Server, error) {
	server := &Server{
		config:     cfg,
		logger:     config.NewLogger(cfg.LogLevel, cfg.LogFormat),
		calibrator: fusion.DefaultCalibrator,
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	server.cache = cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)
	adviceCaches := []service.AdviceCache{server.cache}
	if cfg.RedisURL != "" {
		redisCache, err := external.NewCacheClient(domain.CacheConfig{
			RedisURL:   cfg.RedisURL,
			DefaultTTL: cfg.CacheTTL,
		})
		if err != nil {
			server.logger.WithError(err).Warn("Redis unavailable, advice cache is memory only")
		} else {
			server.redis = redisCache
			adviceCaches = append(adviceCaches, redisCache)
		}
	}

	if server.store == nil {
		driver, dsn := cfg.OutcomesStore()
		store, err := outcomes.Open(driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open outcomes store: %w", err)
		}
		server.store = store
	}

	server.artifact = optimizer.LoadArtifact(server.logger, cfg.ResolvedWeightsPath())
	engine := fusion.NewEngine(server.logger, fusion.DefaultConfig(), server.artifact.Weights())
	server.simulator = simulation.NewEngine(server.logger)

	if server.generator == nil {
		groq := external.NewGroqClient(external.GroqConfigFromDomain(domain.LLMConfig{
			BaseURL: cfg.GroqURL,
			APIKey:  cfg.GroqAPIKey,
			Model:   cfg.GroqModel,
		}), server.logger)
		if groq.Enabled() {
			server.generator = external.NewResilientTextGenerator(groq, external.DefaultCircuitBreakerConfig(), server.logger)
		}
	}
	server.advisor = service.NewAdviceService(server.logger, server.generator, cfg.CacheTTL, adviceCaches...)

	server.orchestrator = service.NewOrchestrator(
		server.logger,
		service.NewPrecomputedRetinalClassifier(server.logger),
		service.NewPrecomputedLifestyleClassifier(server.logger),
		engine,
		service.WithAdvisor(server.advisor),
		service.WithCalibrator(server.calibrator),
	)

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)
	server.registerTools()

	server.logger.WithFields(logrus.Fields{
		"weights_loaded": server.artifact.Loaded,
		"llm_enabled":    server.generator != nil,
		"redis_cache":    server.redis != nil,
	}).Info("MCP server initialized")
	return server, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolAssessRisk,
		Description: "Run the full diabetes risk pipeline on retinal and lifestyle predictions: fusion, risk level, risk factors, advice and what-if simulations",
	}, s.handleAssessRisk)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolFuseScores,
		Description: "Fuse a retinal and a lifestyle risk/confidence pair into one score with its risk level and uncertainty",
	}, s.handleFuseScores)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolSimulate,
		Description: "Project how lifestyle interventions would change a current risk score, optionally explaining the best scenario",
	}, s.handleSimulate)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolRecordOutcome,
		Description: "Record the observed diagnosis for a subject's predictions as weight training data",
	}, s.handleRecordOutcome)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolExportOutcomes,
		Description: "Export all recorded outcomes to a JSON file in the data directory",
	}, s.handleExportOutcomes)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolGetWeights,
		Description: "Report the fusion weights in use and where they came from",
	}, s.handleGetWeights)

	s.logger.WithField("tool_count", len(toolNames)).Info("Registered MCP tools")
}

// Start serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting diabetes risk MCP server on stdio")
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Close cleans up server resources.
func (s *Server) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close outcomes store")
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close Redis cache")
		}
	}
	return nil
}

// OutcomesStore returns the outcomes store for external access.
func (s *Server) OutcomesStore() outcomes.Store {
	return s.store
}

// Cache returns the memory cache for external access.
func (s *Server) Cache() *cache.MemoryCache {
	return s.cache
}

// textResult renders a one-line summary followed by the JSON payload.
func textResult(summary string, payload any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summary},
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}

// createErrorResult reports a tool failure to the client without failing the call.
func (s *Server) createErrorResult(tool string, err error) *mcp.CallToolResult {
	entry := s.logger.WithError(err).WithField("tool", tool)
	code := domain.ErrorCode(err)
	if code == domain.ErrCodeValidation || code == domain.ErrCodeInvalidInput {
		entry.Warn("Tool rejected input")
	} else {
		entry.Error("Tool failed")
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%s failed: %v", tool, err)},
		},
	}
}

func elapsed(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}
