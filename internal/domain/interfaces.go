package domain

import (
	"context"
	"encoding/json"
)

// RetinalInput is what the retinal classifier needs for one analysis.
// Image holds encoded fundus bytes; Prediction carries model output computed
// elsewhere (the classifier adapter only normalizes it).
type RetinalInput struct {
	Image      []byte             `json:"-"`
	Prediction *RetinalPrediction `json:"prediction,omitempty"`
}

// RetinalPrediction is the raw retinal model output.
type RetinalPrediction struct {
	DRProbability      float64 `json:"dr_probability"`
	Confidence         float64 `json:"confidence"`
	Microaneurysms     bool    `json:"microaneurysms"`
	Hemorrhages        bool    `json:"hemorrhages"`
	Exudates           bool    `json:"exudates"`
	Neovascularization bool    `json:"neovascularization"`
	ModelVersion       string  `json:"model_version,omitempty"`
}

// UnmarshalJSON presets a missing confidence to NeutralConfidence.
func (p *RetinalPrediction) UnmarshalJSON(data []byte) error {
	type plain RetinalPrediction
	in := plain{Confidence: NeutralConfidence}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*p = RetinalPrediction(in)
	return nil
}

// LifestyleInput is what the lifestyle classifier needs for one analysis.
type LifestyleInput struct {
	Profile    LifestyleProfile     `json:"profile"`
	Prediction *LifestylePrediction `json:"prediction,omitempty"`
}

// LifestylePrediction is the raw lifestyle model output (pre-calibration).
type LifestylePrediction struct {
	Probability       float64            `json:"probability"`
	Confidence        float64            `json:"confidence"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
	ModelVersion      string             `json:"model_version,omitempty"`
}

// UnmarshalJSON presets a missing confidence to NeutralConfidence.
func (p *LifestylePrediction) UnmarshalJSON(data []byte) error {
	type plain LifestylePrediction
	in := plain{Confidence: NeutralConfidence}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*p = LifestylePrediction(in)
	return nil
}

// RetinalClassifier produces a retinal risk contribution.
type RetinalClassifier interface {
	Analyze(ctx context.Context, input RetinalInput) (*RetinalResult, error)
}

// LifestyleClassifier produces a lifestyle risk contribution.
type LifestyleClassifier interface {
	Predict(ctx context.Context, input LifestyleInput) (*LifestyleResult, error)
}

// TextGenerator is a plain completion capability, e.g. an LLM.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// AdviceRequest carries everything the advice generator may use.
type AdviceRequest struct {
	RiskScore       float64          `json:"risk_score"`
	RiskFactors     []RiskFactor     `json:"risk_factors"`
	Lifestyle       LifestyleProfile `json:"lifestyle_data"`
	RetinalFindings *RetinalFindings `json:"retinal_findings,omitempty"`
}

// AdviceGenerator turns an assessment into structured advice.
type AdviceGenerator interface {
	GenerateAdvice(ctx context.Context, req AdviceRequest) (*Advice, error)
}

// AnalysisRepository persists pipeline results.
type AnalysisRepository interface {
	SaveAnalysis(ctx context.Context, result *AnalysisResult) error
	GetAnalysis(ctx context.Context, id string) (*AnalysisResult, error)
	ListRecent(ctx context.Context, subjectID string, limit int) ([]*AnalysisResult, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetFusionConfig() *FusionConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
