package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Weight sum tolerance used when validating and loading fusion weights.
const WeightTolerance = 1e-3

// Neutral values substituted when a modality is missing or failed.
const (
	NeutralRisk       = 0.5
	NeutralConfidence = 0.5
)

// RiskInput is one modality's contribution to a fused assessment.
type RiskInput struct {
	Risk       float64 `json:"risk"`
	Confidence float64 `json:"confidence"`
}

// UnmarshalJSON decodes a RiskInput; an absent confidence is NeutralConfidence.
func (r *RiskInput) UnmarshalJSON(data []byte) error {
	type plain RiskInput
	in := plain{Confidence: NeutralConfidence}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = RiskInput(in)
	return nil
}

// NewRiskInput builds a RiskInput with both fields clamped to [0,1].
// A NaN confidence is treated as missing and replaced with the neutral 0.5.
func NewRiskInput(risk, confidence float64) RiskInput {
	if math.IsNaN(confidence) {
		confidence = NeutralConfidence
	}
	return RiskInput{
		Risk:       Clamp01(risk),
		Confidence: Clamp01(confidence),
	}
}

// NeutralRiskInput is substituted for a modality whose inference failed.
func NeutralRiskInput() RiskInput {
	return RiskInput{Risk: NeutralRisk, Confidence: NeutralConfidence}
}

// Clamped returns a copy with both fields forced into [0,1].
func (r RiskInput) Clamped() RiskInput {
	return NewRiskInput(r.Risk, r.Confidence)
}

// FusionWeights is the retinal/lifestyle weight pair. The pair always sums to one.
type FusionWeights struct {
	Retinal   float64 `json:"retinal_weight"`
	Lifestyle float64 `json:"lifestyle_weight"`
}

// DefaultFusionWeights returns equal weights.
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{Retinal: 0.5, Lifestyle: 0.5}
}

// Sum returns Retinal + Lifestyle.
func (w FusionWeights) Sum() float64 {
	return w.Retinal + w.Lifestyle
}

// Valid reports whether both weights lie in [0,1] and sum to one within WeightTolerance.
func (w FusionWeights) Valid() bool {
	if math.IsNaN(w.Retinal) || math.IsNaN(w.Lifestyle) {
		return false
	}
	if w.Retinal < 0 || w.Retinal > 1 || w.Lifestyle < 0 || w.Lifestyle > 1 {
		return false
	}
	return math.Abs(w.Sum()-1) < WeightTolerance
}

// Normalize rescales the pair to sum to one. Pairs that cannot be rescaled
// (negative, NaN, or zero sum) fall back to DefaultFusionWeights.
func (w FusionWeights) Normalize() FusionWeights {
	total := w.Sum()
	if math.IsNaN(total) || math.IsInf(total, 0) || total <= 0 || w.Retinal < 0 || w.Lifestyle < 0 {
		return DefaultFusionWeights()
	}
	if math.Abs(total-1) <= WeightTolerance {
		return w
	}
	return FusionWeights{Retinal: w.Retinal / total, Lifestyle: w.Lifestyle / total}
}

// RetinalFindings are the lesion flags reported by the retinal classifier.
type RetinalFindings struct {
	Microaneurysms        bool `json:"microaneurysms"`
	Hemorrhages           bool `json:"hemorrhages"`
	Exudates              bool `json:"exudates"`
	Neovascularization    bool `json:"neovascularization"`
	TotalFeaturesDetected int  `json:"total_features_detected"`
}

// NewRetinalFindings builds findings and counts the detected features.
func NewRetinalFindings(microaneurysms, hemorrhages, exudates, neovascularization bool) *RetinalFindings {
	f := &RetinalFindings{
		Microaneurysms:     microaneurysms,
		Hemorrhages:        hemorrhages,
		Exudates:           exudates,
		Neovascularization: neovascularization,
	}
	for _, v := range []bool{microaneurysms, hemorrhages, exudates, neovascularization} {
		if v {
			f.TotalFeaturesDetected++
		}
	}
	return f
}

// RiskFactor is a single contributing factor from either modality.
type RiskFactor struct {
	Source     Modality         `json:"source"`
	Factor     string           `json:"factor"`
	Value      any              `json:"value,omitempty"`
	Severity   Severity         `json:"severity,omitempty"`
	Importance float64          `json:"importance"`
	Modifiable bool             `json:"modifiable"`
	Details    *RetinalFindings `json:"details,omitempty"`
}

// RetinalResult is the output contract of the retinal classifier.
type RetinalResult struct {
	Success       bool             `json:"success"`
	DRDetected    bool             `json:"dr_detected"`
	DRProbability float64          `json:"dr_probability"`
	Severity      Severity         `json:"severity"`
	Confidence    float64          `json:"confidence"`
	Findings      *RetinalFindings `json:"findings,omitempty"`
	ModelVersion  string           `json:"model_version,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// LifestyleProfile holds the user's lifestyle and demographic data.
// Numeric fields are optional; nil means the user did not supply a value.
type LifestyleProfile struct {
	Age              *float64 `json:"age,omitempty"`
	BMI              *float64 `json:"bmi,omitempty"`
	PhysicalActivity *float64 `json:"physical_activity,omitempty"`
	SleepHours       *float64 `json:"sleep_hours,omitempty"`
	FamilyHistory    bool     `json:"family_history"`
	Smoking          bool     `json:"smoking"`
}

// Float64 returns a pointer to v. Convenience for building profiles.
func Float64(v float64) *float64 {
	return &v
}

// ValueOr dereferences v, returning def when v is nil or NaN.
func ValueOr(v *float64, def float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return def
	}
	return *v
}

// IsEmpty reports whether no field was supplied.
func (p LifestyleProfile) IsEmpty() bool {
	return p.Age == nil && p.BMI == nil && p.PhysicalActivity == nil && p.SleepHours == nil &&
		!p.FamilyHistory && !p.Smoking
}

// LifestyleResult is the output contract of the lifestyle classifier.
// RawProbability is pre-calibration.
type LifestyleResult struct {
	Success           bool               `json:"success"`
	RawProbability    float64            `json:"raw_probability"`
	Confidence        float64            `json:"confidence"`
	KeyFactors        []RiskFactor       `json:"key_factors"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
	ModelVersion      string             `json:"model_version,omitempty"`
	Error             string             `json:"error,omitempty"`
}

// Assessment is the Risk Scorer's categorical view of a fused score.
type Assessment struct {
	RiskLevel         RiskLevel `json:"risk_level"`
	Confidence        float64   `json:"confidence"`
	Interpretation    string    `json:"interpretation"`
	Priority          Priority  `json:"priority"`
	RecommendedAction string    `json:"recommended_action"`
}

// ComponentScores are the per-modality risks that went into fusion.
type ComponentScores struct {
	Retinal   float64 `json:"retinal"`
	Lifestyle float64 `json:"lifestyle"`
}

// FusedAssessment is created once per pipeline run and not mutated afterwards.
type FusedAssessment struct {
	FusedScore          float64         `json:"fused_score"`
	RiskLevel           RiskLevel       `json:"risk_level"`
	Confidence          float64         `json:"confidence"`
	Interpretation      string          `json:"interpretation,omitempty"`
	Priority            Priority        `json:"priority,omitempty"`
	RecommendedAction   string          `json:"recommended_action,omitempty"`
	PreventionPotential float64         `json:"prevention_potential"`
	RiskFactors         []RiskFactor    `json:"risk_factors"`
	ComponentScores     ComponentScores `json:"component_scores"`
	Method              FusionMethod    `json:"method"`
	Weights             FusionWeights   `json:"weights"`
}

// UncertaintyResult is the N-modality fusion output.
type UncertaintyResult struct {
	Risk        float64 `json:"risk"`
	Confidence  float64 `json:"confidence"`
	Uncertainty float64 `json:"uncertainty"`
}

// Simulation is one projected what-if intervention.
type Simulation struct {
	Intervention         string     `json:"intervention"`
	Description          string     `json:"description"`
	ActionItems          []string   `json:"action_items"`
	CurrentRisk          float64    `json:"current_risk"`
	ProjectedRisk        float64    `json:"projected_risk"`
	RiskReductionPercent float64    `json:"risk_reduction_percent"`
	Timeframe            string     `json:"timeframe"`
	Difficulty           Difficulty `json:"difficulty"`
	Impact               Impact     `json:"impact"`
	Note                 string     `json:"note,omitempty"`
	Explanation          string     `json:"explanation,omitempty"`
}

// SimulationReport is the full what-if result for one request.
type SimulationReport struct {
	CurrentRisk  float64      `json:"current_risk"`
	Simulations  []Simulation `json:"simulations"`
	BestScenario *Simulation  `json:"best_scenario,omitempty"`
}

// Advice is structured prevention advice from the advice generator.
type Advice struct {
	Recommendations []string `json:"recommendations"`
	PriorityActions []string `json:"priority_actions"`
	Explanation     string   `json:"explanation"`
	PreventiveTips  []string `json:"preventive_tips"`
	Source          string   `json:"source"`
}

// AnalysisResult is the orchestrator's full pipeline output.
type AnalysisResult struct {
	ID             string           `json:"id,omitempty"`
	SubjectID      string           `json:"subject_id,omitempty"`
	Status         string           `json:"status"`
	Assessment     FusedAssessment  `json:"assessment"`
	Retinal        RetinalResult    `json:"retinal_analysis"`
	Lifestyle      LifestyleResult  `json:"lifestyle_analysis"`
	Advice         *Advice          `json:"personalized_advice,omitempty"`
	Simulations    SimulationReport `json:"what_if_simulations"`
	ProcessingTime time.Duration    `json:"processing_time"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Clamp01 forces v into [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
