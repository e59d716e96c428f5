package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/diabetes-risk-fusion/internal/domain"
	"github.com/diabetes-risk-fusion/internal/fusion"
	"github.com/diabetes-risk-fusion/internal/scoring"
	"github.com/diabetes-risk-fusion/internal/simulation"
)

// Analysis status values.
const (
	StatusSuccess  = "success"
	StatusPartial  = "partial"
	StatusDegraded = "degraded"
)

// AnalyzeRequest is one end-to-end assessment request.
type AnalyzeRequest struct {
	SubjectID  string                `json:"subject_id,omitempty"`
	Retinal    domain.RetinalInput   `json:"retinal"`
	Lifestyle  domain.LifestyleInput `json:"lifestyle"`
	SkipAdvice bool                  `json:"skip_advice,omitempty"`
}

// Validate rejects precomputed probabilities that are not numbers. Values
// slightly outside [0,1] are accepted; the classifier adapters clamp them.
func (r AnalyzeRequest) Validate() error {
	if p := r.Retinal.Prediction; p != nil && math.IsNaN(p.DRProbability) {
		return domain.NewValidationError("retinal.prediction.dr_probability", "must be a number", p.DRProbability)
	}
	if p := r.Lifestyle.Prediction; p != nil && math.IsNaN(p.Probability) {
		return domain.NewValidationError("lifestyle.prediction.probability", "must be a number", p.Probability)
	}
	return nil
}

// Orchestrator runs the full pipeline: both classifiers concurrently, then
// calibration, fusion, scoring, advice and simulation.
type Orchestrator struct {
	logger     *logrus.Logger
	retinal    domain.RetinalClassifier
	lifestyle  domain.LifestyleClassifier
	calibrator fusion.Calibrator
	engine     *fusion.Engine
	scorer     *scoring.Scorer
	simulator  *simulation.Engine
	advisor    domain.AdviceGenerator
	repo       domain.AnalysisRepository
}

// OrchestratorOption configures optional collaborators.
type OrchestratorOption func(*Orchestrator)

// WithAdvisor enables advice generation.
func WithAdvisor(advisor domain.AdviceGenerator) OrchestratorOption {
	return func(o *Orchestrator) { o.advisor = advisor }
}

// WithRepository persists every analysis.
func WithRepository(repo domain.AnalysisRepository) OrchestratorOption {
	return func(o *Orchestrator) { o.repo = repo }
}

// WithCalibrator overrides the lifestyle calibration range.
func WithCalibrator(c fusion.Calibrator) OrchestratorOption {
	return func(o *Orchestrator) { o.calibrator = c }
}

// NewOrchestrator wires the pipeline.
func NewOrchestrator(
	logger *logrus.Logger,
	retinal domain.RetinalClassifier,
	lifestyle domain.LifestyleClassifier,
	engine *fusion.Engine,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		logger:     logger,
		retinal:    retinal,
		lifestyle:  lifestyle,
		calibrator: fusion.DefaultCalibrator,
		engine:     engine,
		scorer:     scoring.NewScorer(logger),
		simulator:  simulation.NewEngine(logger),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Engine returns the fusion engine used by the pipeline.
func (o *Orchestrator) Engine() *fusion.Engine {
	return o.engine
}

// Analyze runs the pipeline. Classifier failures never fail the request: a
// failed modality contributes a neutral 0.5/0.5 input, and when both fail the
// result is degraded to risk 0.5 with level unknown. Only context
// cancellation is returned as an error.
func (o *Orchestrator) Analyze(ctx context.Context, req AnalyzeRequest) (*domain.AnalysisResult, error) {
	start := time.Now()
	o.logger.WithField("subject_id", req.SubjectID).Info("Starting analysis pipeline")

	// Step 1: retinal and lifestyle analysis in parallel
	var (
		retinalRes   *domain.RetinalResult
		lifestyleRes *domain.LifestyleResult
		retinalErr   error
		lifestyleErr error
	)
	// Branch errors are kept apart: one failed modality must not cancel the other.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		retinalRes, retinalErr = o.retinal.Analyze(ctx, req.Retinal)
	}()
	go func() {
		defer wg.Done()
		lifestyleRes, lifestyleErr = o.lifestyle.Predict(ctx, req.Lifestyle)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis cancelled: %w", err)
	}

	if retinalErr == nil && retinalRes == nil {
		retinalErr = ErrNoPrediction
	}
	if lifestyleErr == nil && lifestyleRes == nil {
		lifestyleErr = ErrNoPrediction
	}

	var failures []error
	if retinalErr != nil {
		o.logger.WithError(retinalErr).Warn("Retinal analysis failed, using neutral input")
		failures = append(failures, fmt.Errorf("retinal: %w", retinalErr))
		retinalRes = &domain.RetinalResult{Success: false, Error: retinalErr.Error()}
	}
	if lifestyleErr != nil {
		o.logger.WithError(lifestyleErr).Warn("Lifestyle analysis failed, using neutral input")
		failures = append(failures, fmt.Errorf("lifestyle: %w", lifestyleErr))
		lifestyleRes = &domain.LifestyleResult{Success: false, Error: lifestyleErr.Error()}
	}

	result := &domain.AnalysisResult{
		SubjectID: req.SubjectID,
		Retinal:   *retinalRes,
		Lifestyle: *lifestyleRes,
		CreatedAt: start.UTC(),
	}

	// Step 2: calibrate, fuse and score
	if retinalErr != nil && lifestyleErr != nil {
		result.Status = StatusDegraded
		result.Error = errors.Join(failures...).Error()
		result.Assessment = o.degradedAssessment()
	} else {
		if len(failures) > 0 {
			result.Status = StatusPartial
			result.Error = errors.Join(failures...).Error()
		} else {
			result.Status = StatusSuccess
		}
		result.Assessment = o.assess(retinalRes, lifestyleRes)
	}

	// Step 3: advice, best effort
	if o.advisor != nil && !req.SkipAdvice && result.Status != StatusDegraded {
		advice, err := o.advisor.GenerateAdvice(ctx, domain.AdviceRequest{
			RiskScore:       result.Assessment.FusedScore,
			RiskFactors:     result.Assessment.RiskFactors,
			Lifestyle:       req.Lifestyle.Profile,
			RetinalFindings: retinalRes.Findings,
		})
		if err != nil {
			o.logger.WithError(err).Warn("Advice generation failed")
		} else {
			result.Advice = advice
		}
	}

	// Step 4: what-if simulations
	result.Simulations = o.simulator.Simulate(result.Assessment.FusedScore, req.Lifestyle.Profile, result.Assessment.RiskFactors)
	result.ProcessingTime = time.Since(start)

	// Step 5: persistence, best effort
	if o.repo != nil {
		if err := o.repo.SaveAnalysis(ctx, result); err != nil {
			o.logger.WithError(err).Warn("Failed to persist analysis")
		}
	}

	o.logger.WithFields(logrus.Fields{
		"subject_id":      req.SubjectID,
		"status":          result.Status,
		"fused_score":     result.Assessment.FusedScore,
		"risk_level":      result.Assessment.RiskLevel,
		"processing_time": result.ProcessingTime,
	}).Info("Analysis pipeline completed")

	return result, nil
}

func (o *Orchestrator) assess(retinal *domain.RetinalResult, lifestyle *domain.LifestyleResult) domain.FusedAssessment {
	retinalIn := domain.NeutralRiskInput()
	if retinal.Success {
		retinalIn = domain.NewRiskInput(RetinalRisk(retinal), retinal.Confidence)
	}
	lifestyleIn := domain.NeutralRiskInput()
	if lifestyle.Success {
		lifestyleIn = domain.NewRiskInput(o.calibrator.Calibrate(lifestyle.RawProbability), lifestyle.Confidence)
	}

	fused := o.engine.Fuse(retinalIn, lifestyleIn)
	assessment := o.scorer.Assess(fused, retinal.Findings, lifestyle.KeyFactors)

	return domain.FusedAssessment{
		FusedScore:          fused,
		RiskLevel:           assessment.RiskLevel,
		Confidence:          assessment.Confidence,
		Interpretation:      assessment.Interpretation,
		Priority:            assessment.Priority,
		RecommendedAction:   assessment.RecommendedAction,
		PreventionPotential: scoring.PreventionPotential(lifestyle.KeyFactors),
		RiskFactors:         CompileRiskFactors(retinal, lifestyle),
		ComponentScores:     domain.ComponentScores{Retinal: retinalIn.Risk, Lifestyle: lifestyleIn.Risk},
		Method:              o.engine.Method(),
		Weights:             o.engine.Weights(),
	}
}

func (o *Orchestrator) degradedAssessment() domain.FusedAssessment {
	return domain.FusedAssessment{
		FusedScore:        domain.NeutralRisk,
		RiskLevel:         domain.RiskUnknown,
		Priority:          scoring.PriorityFor(domain.RiskUnknown),
		RecommendedAction: scoring.RecommendedAction(domain.RiskUnknown),
		Interpretation:    scoring.Interpret(domain.RiskUnknown, nil, nil),
		RiskFactors:       []domain.RiskFactor{},
		ComponentScores:   domain.ComponentScores{Retinal: domain.NeutralRisk, Lifestyle: domain.NeutralRisk},
		Method:            o.engine.Method(),
		Weights:           o.engine.Weights(),
	}
}

// Health reports the status of each pipeline component.
func (o *Orchestrator) Health() map[string]string {
	status := map[string]string{
		"orchestrator":         "healthy",
		"retinal_classifier":   "healthy",
		"lifestyle_classifier": "healthy",
		"fusion_engine":        "healthy",
		"risk_scorer":          "healthy",
		"simulation_engine":    "healthy",
		"advice_generator":     "disabled",
		"repository":           "disabled",
	}
	if o.advisor != nil {
		status["advice_generator"] = "healthy"
	}
	if o.repo != nil {
		status["repository"] = "healthy"
	}
	return status
}
