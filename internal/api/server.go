// Package api exposes the risk fusion pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/diabetes-risk-fusion/internal/domain"
	"github.com/diabetes-risk-fusion/internal/fusion"
	"github.com/diabetes-risk-fusion/internal/middleware"
	"github.com/diabetes-risk-fusion/internal/optimizer"
	"github.com/diabetes-risk-fusion/internal/outcomes"
	"github.com/diabetes-risk-fusion/internal/service"
	"github.com/diabetes-risk-fusion/internal/simulation"
	"github.com/diabetes-risk-fusion/internal/training"
)

// Version is reported by /health.
const Version = "1.0.0"

// Dependencies are the collaborators served by the API. Advisor, Repository,
// Outcomes and Artifact are optional.
type Dependencies struct {
	Orchestrator *service.Orchestrator
	Advisor      *service.AdviceService
	Simulator    *simulation.Engine
	Calibrator   fusion.Calibrator
	Repository   domain.AnalysisRepository
	Outcomes     outcomes.Store
	Trainer      *training.Trainer
	TrainOptions training.Options
	Artifact     *optimizer.Artifact
	Metrics      *Metrics
}

// Server represents the HTTP server
type Server struct {
	cfg    domain.ServerConfig
	deps   Dependencies
	logger *logrus.Logger
	router *gin.Engine
	server *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(cfg domain.ServerConfig, deps Dependencies, logger *logrus.Logger) *Server {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.Simulator == nil {
		deps.Simulator = simulation.NewEngine(logger)
	}
	if deps.Calibrator == (fusion.Calibrator{}) {
		deps.Calibrator = fusion.DefaultCalibrator
	}
	if deps.Trainer == nil {
		deps.Trainer = training.NewTrainer(logger, optimizer.DefaultConfig(), deps.Calibrator)
	}

	// Set Gin mode based on log level
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(deps.Metrics.Middleware())

	server := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		router: router,
	}

	server.setupRoutes()

	return server
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))

	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.RateLimit(s.cfg.RateLimit, s.cfg.RateLimitPeriod))
	{
		v1.POST("/assess", s.handleAssess)
		v1.POST("/fuse", s.handleFuse)
		v1.POST("/simulate", s.handleSimulate)
		v1.DELETE("/advice/cache", s.handleInvalidateAdviceCache)
		v1.POST("/calibrate", s.handleCalibrate)
		v1.GET("/weights", s.handleWeights)
		v1.POST("/weights/evaluate", s.handleEvaluateWeights)
		v1.POST("/outcomes", s.handleRecordOutcome)
		v1.GET("/outcomes", s.handleListOutcomes)
		v1.GET("/analyses", s.handleListAnalyses)
		v1.GET("/analyses/:id", s.handleGetAnalysis)
	}
}

// respondError writes err as a ServiceError with a status matching its code.
func (s *Server) respondError(c *gin.Context, err error) {
	code := domain.ErrorCode(err)
	status := statusForCode(code)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("request_id", middleware.GetRequestID(c)).Error("Request failed")
		message = "internal server error"
		if code != domain.ErrCodeInternalServer {
			message = err.Error()
		}
	}

	c.AbortWithStatusJSON(status, domain.NewServiceError(code, message, "", middleware.GetRequestID(c)))
}

func statusForCode(code string) int {
	switch code {
	case domain.ErrCodeValidation, domain.ErrCodeInvalidInput, domain.ErrCodeShapeMismatch:
		return http.StatusBadRequest
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case domain.ErrCodeLLMUnavailable, domain.ErrCodeStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
