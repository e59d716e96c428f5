package mcp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/diabetes-risk-fusion/internal/domain"
	"github.com/diabetes-risk-fusion/internal/outcomes"
	"github.com/diabetes-risk-fusion/internal/scoring"
	"github.com/diabetes-risk-fusion/internal/service"
)

const (
	toolAssessRisk     = "assess_risk"
	toolFuseScores     = "fuse_scores"
	toolSimulate       = "simulate_interventions"
	toolRecordOutcome  = "record_outcome"
	toolExportOutcomes = "export_outcomes"
	toolGetWeights     = "get_weights"
)

var toolNames = []string{
	toolAssessRisk,
	toolFuseScores,
	toolSimulate,
	toolRecordOutcome,
	toolExportOutcomes,
	toolGetWeights,
}

// FuseScoresParams defines parameters for the fuse_scores tool
type FuseScoresParams struct {
	Retinal            domain.RiskInput `json:"retinal"`
	Lifestyle          domain.RiskInput `json:"lifestyle"`
	Method             string           `json:"method,omitempty"`
	CalibrateLifestyle bool             `json:"calibrate_lifestyle,omitempty"`
}

// FuseScoresResult defines the result structure for the fuse_scores tool
type FuseScoresResult struct {
	FusedScore  float64                  `json:"fused_score"`
	RiskLevel   domain.RiskLevel         `json:"risk_level"`
	Method      domain.FusionMethod      `json:"method"`
	Weights     domain.FusionWeights     `json:"weights"`
	Uncertainty domain.UncertaintyResult `json:"uncertainty"`
}

// SimulateParams defines parameters for the simulate_interventions tool
type SimulateParams struct {
	CurrentRisk float64                 `json:"current_risk"`
	Lifestyle   domain.LifestyleProfile `json:"lifestyle_data"`
	RiskFactors []domain.RiskFactor     `json:"risk_factors,omitempty"`
	Explain     bool                    `json:"explain,omitempty"`
}

// RecordOutcomeParams defines parameters for the record_outcome tool
type RecordOutcomeParams struct {
	SubjectRef    string  `json:"subject_ref,omitempty"`
	RetinalPred   float64 `json:"retinal_pred"`
	LifestylePred float64 `json:"lifestyle_pred"`
	YTrue         float64 `json:"y_true"`
	Source        string  `json:"source,omitempty"`
}

// RecordOutcomeResult defines the result structure for the record_outcome tool
type RecordOutcomeResult struct {
	ID            int64  `json:"id"`
	SubjectRef    string `json:"subject_ref"`
	Source        string `json:"source"`
	TotalOutcomes int64  `json:"total_outcomes"`
}

// ExportOutcomesParams defines parameters for the export_outcomes tool
type ExportOutcomesParams struct {
	Filename string `json:"filename,omitempty"`
}

// ExportOutcomesResult defines the result structure for the export_outcomes tool
type ExportOutcomesResult struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

// GetWeightsParams takes no arguments.
type GetWeightsParams struct{}

// GetWeightsResult defines the result structure for the get_weights tool
type GetWeightsResult struct {
	Weights     domain.FusionWeights `json:"weights"`
	Method      domain.FusionMethod  `json:"fusion_method"`
	Source      string               `json:"source"`
	Loaded      bool                 `json:"loaded"`
	BestLoss    *float64             `json:"best_loss,omitempty"`
	Calibration string               `json:"calibration,omitempty"`
}

// handleAssessRisk handles the assess_risk tool invocation
func (s *Server) handleAssessRisk(ctx context.Context, req *mcp.CallToolRequest, params service.AnalyzeRequest) (*mcp.CallToolResult, any, error) {
	start := time.Now()
	s.logger.WithField("tool", toolAssessRisk).Info("Tool invoked")

	if err := params.Validate(); err != nil {
		return s.createErrorResult(toolAssessRisk, err), nil, nil
	}

	result, err := s.orchestrator.Analyze(ctx, params)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, err
		}
		return s.createErrorResult(toolAssessRisk, err), nil, nil
	}

	summary := fmt.Sprintf("Diabetes risk %.3f (%s), status %s, computed in %s",
		result.Assessment.FusedScore, result.Assessment.RiskLevel, result.Status, elapsed(start))
	return textResult(summary, result)
}

// handleFuseScores handles the fuse_scores tool invocation
func (s *Server) handleFuseScores(ctx context.Context, req *mcp.CallToolRequest, params FuseScoresParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", toolFuseScores).Info("Tool invoked")

	if math.IsNaN(params.Retinal.Risk) || math.IsNaN(params.Lifestyle.Risk) {
		return s.createErrorResult(toolFuseScores, domain.NewValidationError("risk", "must be a number", nil)), nil, nil
	}
	retinal := params.Retinal.Clamped()
	lifestyle := params.Lifestyle.Clamped()

	engine := s.orchestrator.Engine()
	method := engine.Method()
	if params.Method != "" {
		m, err := domain.ParseFusionMethod(params.Method)
		if err != nil {
			return s.createErrorResult(toolFuseScores, err), nil, nil
		}
		method = m
	}

	if params.CalibrateLifestyle {
		lifestyle.Risk = s.calibrator.Calibrate(lifestyle.Risk)
	}

	weights := engine.Weights()
	fused := engine.FuseWith(retinal, lifestyle, weights, method)
	result := FuseScoresResult{
		FusedScore: fused,
		RiskLevel:  scoring.Level(fused),
		Method:     method,
		Weights:    engine.EffectiveWeights(retinal, lifestyle, weights),
		Uncertainty: engine.FuseWithUncertainty(map[domain.Modality]domain.RiskInput{
			domain.ModalityRetinal:   retinal,
			domain.ModalityLifestyle: lifestyle,
		}),
	}

	summary := fmt.Sprintf("Fused risk %.3f (%s) using %s", result.FusedScore, result.RiskLevel, result.Method)
	return textResult(summary, result)
}

// handleSimulate handles the simulate_interventions tool invocation
func (s *Server) handleSimulate(ctx context.Context, req *mcp.CallToolRequest, params SimulateParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", toolSimulate).Info("Tool invoked")

	if !isProbability(params.CurrentRisk) {
		return s.createErrorResult(toolSimulate,
			domain.NewValidationError("current_risk", "must be within [0,1]", params.CurrentRisk)), nil, nil
	}

	report := s.simulator.Simulate(params.CurrentRisk, params.Lifestyle, params.RiskFactors)
	if params.Explain {
		if err := s.advisor.ExplainBestScenario(ctx, &report); err != nil {
			return nil, nil, err
		}
	}

	summary := fmt.Sprintf("%d interventions simulated from risk %.3f", len(report.Simulations), report.CurrentRisk)
	if best := report.BestScenario; best != nil {
		summary += fmt.Sprintf("; best: %s (%.3f)", best.Intervention, best.ProjectedRisk)
	}
	return textResult(summary, report)
}

// handleRecordOutcome handles the record_outcome tool invocation
func (s *Server) handleRecordOutcome(ctx context.Context, req *mcp.CallToolRequest, params RecordOutcomeParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", toolRecordOutcome).Info("Tool invoked")

	outcome := &outcomes.Outcome{
		SubjectRef:    strings.TrimSpace(params.SubjectRef),
		RetinalPred:   params.RetinalPred,
		LifestylePred: params.LifestylePred,
		YTrue:         params.YTrue,
		Source:        params.Source,
	}
	if err := s.store.Save(ctx, outcome); err != nil {
		return s.createErrorResult(toolRecordOutcome, err), nil, nil
	}

	total, err := s.store.Count(ctx)
	if err != nil {
		return s.createErrorResult(toolRecordOutcome, err), nil, nil
	}

	s.logger.WithFields(logrus.Fields{
		"id":          outcome.ID,
		"subject_ref": outcome.SubjectRef,
		"total":       total,
	}).Info("Outcome recorded")

	result := RecordOutcomeResult{
		ID:            outcome.ID,
		SubjectRef:    outcome.SubjectRef,
		Source:        outcome.Source,
		TotalOutcomes: total,
	}
	return textResult(fmt.Sprintf("Outcome recorded for %s (%d total)", outcome.SubjectRef, total), result)
}

// handleExportOutcomes handles the export_outcomes tool invocation
func (s *Server) handleExportOutcomes(ctx context.Context, req *mcp.CallToolRequest, params ExportOutcomesParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", toolExportOutcomes).Info("Tool invoked")

	name := filepath.Base(strings.TrimSpace(params.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = fmt.Sprintf("outcomes-%s.json", time.Now().UTC().Format("20060102-150405"))
	}
	if filepath.Ext(name) != ".json" {
		name += ".json"
	}
	path := filepath.Join(s.config.ExportDir(), name)

	file, err := os.Create(path)
	if err != nil {
		return s.createErrorResult(toolExportOutcomes, fmt.Errorf("failed to create export file: %w", err)), nil, nil
	}
	defer file.Close()

	if err := s.store.ExportJSON(ctx, file); err != nil {
		return s.createErrorResult(toolExportOutcomes, err), nil, nil
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		return s.createErrorResult(toolExportOutcomes, err), nil, nil
	}

	result := ExportOutcomesResult{Path: path, Count: count}
	return textResult(fmt.Sprintf("Exported %d outcomes to %s", count, path), result)
}

// handleGetWeights handles the get_weights tool invocation
func (s *Server) handleGetWeights(ctx context.Context, req *mcp.CallToolRequest, params GetWeightsParams) (*mcp.CallToolResult, any, error) {
	engine := s.orchestrator.Engine()
	result := GetWeightsResult{
		Weights:     engine.Weights(),
		Method:      engine.Method(),
		Source:      s.artifact.Method,
		Loaded:      s.artifact.Loaded,
		BestLoss:    s.artifact.BestLoss,
		Calibration: s.artifact.Calibration,
	}

	summary := fmt.Sprintf("Retinal %.3f, lifestyle %.3f (%s)", result.Weights.Retinal, result.Weights.Lifestyle, result.Source)
	return textResult(summary, result)
}

func isProbability(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
