package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/diabetes-risk-fusion/internal/domain"
	"github.com/diabetes-risk-fusion/internal/middleware"
	"github.com/diabetes-risk-fusion/internal/scoring"
	"github.com/diabetes-risk-fusion/internal/service"
)

// FuseRequest fuses two precomputed modality risks.
type FuseRequest struct {
	Retinal   domain.RiskInput      `json:"retinal"`
	Lifestyle domain.RiskInput      `json:"lifestyle"`
	Method    string                `json:"method,omitempty"`
	Weights   *domain.FusionWeights `json:"weights,omitempty"`
	// CalibrateLifestyle rescales a raw lifestyle probability before fusing.
	CalibrateLifestyle bool `json:"calibrate_lifestyle,omitempty"`
}

// FuseResponse is the result of /fuse.
type FuseResponse struct {
	FusedScore  float64                  `json:"fused_score"`
	RiskLevel   domain.RiskLevel         `json:"risk_level"`
	Method      domain.FusionMethod      `json:"method"`
	Weights     domain.FusionWeights     `json:"weights"`
	Uncertainty domain.UncertaintyResult `json:"uncertainty"`
}

// SimulateRequest asks for what-if projections from a current risk.
type SimulateRequest struct {
	CurrentRisk float64                 `json:"current_risk"`
	Lifestyle   domain.LifestyleProfile `json:"lifestyle_data"`
	RiskFactors []domain.RiskFactor     `json:"risk_factors"`
	// Explain asks the advice generator to explain the best scenario.
	Explain bool `json:"explain,omitempty"`
}

// CalibrateRequest carries raw lifestyle probabilities.
type CalibrateRequest struct {
	Values []float64 `json:"values"`
}

// CalibrateResponse returns the calibrated values and the range used.
type CalibrateResponse struct {
	Calibrated []float64 `json:"calibrated"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
}

// WeightsResponse describes the weights the engine is using.
type WeightsResponse struct {
	domain.FusionWeights
	FusionMethod domain.FusionMethod `json:"fusion_method"`
	Source       string              `json:"source"`
	Loaded       bool                `json:"loaded"`
	BestLoss     *float64            `json:"best_loss,omitempty"`
	Calibration  string              `json:"calibration,omitempty"`
	SavedAt      *time.Time          `json:"saved_at,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	components := map[string]string{}
	if s.deps.Orchestrator != nil {
		components = s.deps.Orchestrator.Health()
	}
	status := "healthy"
	if s.deps.Orchestrator == nil {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC(),
		"version":    Version,
	})
}

// handleAssess runs the full pipeline.
func (s *Server) handleAssess(c *gin.Context) {
	if s.deps.Orchestrator == nil {
		s.respondError(c, domain.NewServiceError(domain.ErrCodeInternalServer, "pipeline not configured", "", ""))
		return
	}

	var req service.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(c, err)
		return
	}

	result, err := s.deps.Orchestrator.Analyze(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, domain.NewServiceError(
				domain.ErrCodeInternalServer, "request cancelled", err.Error(), middleware.GetRequestID(c)))
			return
		}
		s.respondError(c, err)
		return
	}

	s.deps.Metrics.Analyses.WithLabelValues(result.Status).Inc()
	s.deps.Metrics.ObserveAssessment(result.Assessment.FusedScore, result.Assessment.RiskLevel)

	c.JSON(http.StatusOK, result)
}

// handleFuse fuses two risk inputs without running the classifiers.
func (s *Server) handleFuse(c *gin.Context) {
	if s.deps.Orchestrator == nil {
		s.respondError(c, domain.NewServiceError(domain.ErrCodeInternalServer, "fusion engine not configured", "", ""))
		return
	}

	var req FuseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}
	retinal, err := clampRiskInput("retinal", req.Retinal)
	if err != nil {
		s.respondError(c, err)
		return
	}
	lifestyle, err := clampRiskInput("lifestyle", req.Lifestyle)
	if err != nil {
		s.respondError(c, err)
		return
	}

	engine := s.deps.Orchestrator.Engine()
	method := engine.Method()
	if req.Method != "" {
		m, err := domain.ParseFusionMethod(req.Method)
		if err != nil {
			s.respondError(c, fmt.Errorf("method %q: %w", req.Method, err))
			return
		}
		method = m
	}

	weights := engine.Weights()
	if req.Weights != nil {
		if req.Weights.Retinal < 0 || req.Weights.Lifestyle < 0 || req.Weights.Sum() <= 0 {
			s.respondError(c, domain.NewValidationError("weights", "must be non-negative with a positive sum", req.Weights))
			return
		}
		weights = req.Weights.Normalize()
	}

	if req.CalibrateLifestyle {
		lifestyle.Risk = s.deps.Calibrator.Calibrate(lifestyle.Risk)
	}

	fused := engine.FuseWith(retinal, lifestyle, weights, method)
	resp := FuseResponse{
		FusedScore: fused,
		RiskLevel:  scoring.Level(fused),
		Method:     method,
		Weights:    engine.EffectiveWeights(retinal, lifestyle, weights),
		Uncertainty: engine.FuseWithUncertainty(map[domain.Modality]domain.RiskInput{
			domain.ModalityRetinal:   retinal,
			domain.ModalityLifestyle: lifestyle,
		}),
	}
	s.deps.Metrics.ObserveAssessment(resp.FusedScore, resp.RiskLevel)

	c.JSON(http.StatusOK, resp)
}

// handleSimulate projects lifestyle interventions.
func (s *Server) handleSimulate(c *gin.Context) {
	var req SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}
	if !isProbability(req.CurrentRisk) {
		s.respondError(c, domain.NewValidationError("current_risk", "must be within [0,1]", req.CurrentRisk))
		return
	}

	report := s.deps.Simulator.Simulate(req.CurrentRisk, req.Lifestyle, req.RiskFactors)
	if req.Explain && s.deps.Advisor != nil {
		if err := s.deps.Advisor.ExplainBestScenario(c.Request.Context(), &report); err != nil {
			s.respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, report)
}

// handleInvalidateAdviceCache empties the advice cache tiers.
func (s *Server) handleInvalidateAdviceCache(c *gin.Context) {
	if s.deps.Advisor == nil {
		s.respondError(c, domain.NewServiceError(domain.ErrCodeStorage, "advice cache is not configured", "", ""))
		return
	}

	removed, err := s.deps.Advisor.InvalidateCaches(c.Request.Context())
	if err != nil {
		s.respondError(c, domain.NewServiceError(domain.ErrCodeStorage, err.Error(), "", ""))
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// handleCalibrate rescales raw lifestyle probabilities.
func (s *Server) handleCalibrate(c *gin.Context) {
	var req CalibrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}
	if len(req.Values) == 0 {
		s.respondError(c, domain.NewValidationError("values", "at least one value is required", nil))
		return
	}

	c.JSON(http.StatusOK, CalibrateResponse{
		Calibrated: s.deps.Calibrator.CalibrateAll(req.Values),
		Min:        s.deps.Calibrator.Min,
		Max:        s.deps.Calibrator.Max,
	})
}

// handleWeights reports the active fusion weights and their provenance.
func (s *Server) handleWeights(c *gin.Context) {
	if s.deps.Orchestrator == nil {
		s.respondError(c, domain.NewServiceError(domain.ErrCodeInternalServer, "fusion engine not configured", "", ""))
		return
	}
	engine := s.deps.Orchestrator.Engine()

	resp := WeightsResponse{
		FusionWeights: engine.Weights(),
		FusionMethod:  engine.Method(),
		Source:        "default",
	}
	if a := s.deps.Artifact; a != nil {
		resp.Source = a.Method
		resp.Loaded = a.Loaded
		resp.BestLoss = a.BestLoss
		resp.Calibration = a.Calibration
		if !a.SavedAt.IsZero() {
			saved := a.SavedAt
			resp.SavedAt = &saved
		}
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetAnalysis returns one stored analysis.
func (s *Server) handleGetAnalysis(c *gin.Context) {
	if s.deps.Repository == nil {
		s.respondError(c, domain.NewServiceError(domain.ErrCodeStorage, "analysis history is not enabled", "", ""))
		return
	}

	result, err := s.deps.Repository.GetAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleListAnalyses returns recent analyses, optionally for one subject.
func (s *Server) handleListAnalyses(c *gin.Context) {
	if s.deps.Repository == nil {
		s.respondError(c, domain.NewServiceError(domain.ErrCodeStorage, "analysis history is not enabled", "", ""))
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(c, domain.NewValidationError("limit", "must be an integer", v))
			return
		}
		limit = n
	}

	results, err := s.deps.Repository.ListRecent(c.Request.Context(), c.Query("subject_id"), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"analyses": results,
		"count":    len(results),
	})
}

// clampRiskInput forces classifier output into [0,1]. Only a NaN risk is rejected.
func clampRiskInput(field string, in domain.RiskInput) (domain.RiskInput, error) {
	if math.IsNaN(in.Risk) {
		return in, domain.NewValidationError(field+".risk", "must be a number", in.Risk)
	}
	return in.Clamped(), nil
}

func isProbability(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
