package service

import (
	"context"
	"errors"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/diabetes-risk-fusion/internal/domain"
)

// ErrNoPrediction is returned by the precomputed classifiers when the request
// carries no model output.
var ErrNoPrediction = errors.New("no model prediction supplied")

// ErrNoLifestyleData is returned when the lifestyle profile is empty.
var ErrNoLifestyleData = errors.New("no lifestyle data provided")

const (
	// Retinal probability above which diabetic retinopathy is reported.
	drDetectionThreshold = 0.5
	maxKeyFactors        = 5
)

var severityWeights = map[domain.Severity]float64{
	domain.SeverityNone:     0.0,
	domain.SeverityMild:     0.2,
	domain.SeverityModerate: 0.5,
	domain.SeveritySevere:   0.7,
}

// SeverityFromProbability grades retinopathy from the model probability.
func SeverityFromProbability(p float64) domain.Severity {
	switch {
	case p < 0.3:
		return domain.SeverityNone
	case p < 0.5:
		return domain.SeverityMild
	case p < 0.7:
		return domain.SeverityModerate
	default:
		return domain.SeveritySevere
	}
}

// RetinalRisk converts a retinal analysis into a risk on [0,1]: the DR
// probability and severity grade blended 80/20, doubled, then clamped.
// Failed analyses are neutral.
func RetinalRisk(result *domain.RetinalResult) float64 {
	if result == nil || !result.Success {
		return domain.NeutralRisk
	}
	severity := severityWeights[result.Severity]
	return domain.Clamp01((result.DRProbability*0.8 + severity*0.2) * 2)
}

// keyFactorCheck flags one lifestyle risk factor.
type keyFactorCheck struct {
	feature    string
	label      string
	modifiable bool
	value      func(p domain.LifestyleProfile) (any, bool)
}

func above(get func(domain.LifestyleProfile) *float64, limit float64) func(domain.LifestyleProfile) (any, bool) {
	return func(p domain.LifestyleProfile) (any, bool) {
		v := get(p)
		if v == nil {
			return nil, false
		}
		return *v, *v > limit
	}
}

func below(get func(domain.LifestyleProfile) *float64, limit float64) func(domain.LifestyleProfile) (any, bool) {
	return func(p domain.LifestyleProfile) (any, bool) {
		v := get(p)
		if v == nil {
			return nil, false
		}
		return *v, *v < limit
	}
}

var keyFactorChecks = []keyFactorCheck{
	{"bmi", "High BMI", true, above(func(p domain.LifestyleProfile) *float64 { return p.BMI }, 30)},
	{"age", "Age over 45", false, above(func(p domain.LifestyleProfile) *float64 { return p.Age }, 45)},
	{"physical_activity", "Low physical activity", true, below(func(p domain.LifestyleProfile) *float64 { return p.PhysicalActivity }, 30)},
	{"sleep_hours", "Insufficient sleep", true, below(func(p domain.LifestyleProfile) *float64 { return p.SleepHours }, 6)},
	{"family_history", "Family history of diabetes", false, func(p domain.LifestyleProfile) (any, bool) { return p.FamilyHistory, p.FamilyHistory }},
	{"smoking", "Smoking", true, func(p domain.LifestyleProfile) (any, bool) { return p.Smoking, p.Smoking }},
}

// KeyFactors lists the lifestyle risk factors present in the profile, ranked by
// the model's feature importance and capped at five. Age and family history
// are reported as not modifiable.
func KeyFactors(profile domain.LifestyleProfile, importance map[string]float64) []domain.RiskFactor {
	factors := make([]domain.RiskFactor, 0, len(keyFactorChecks))
	for _, check := range keyFactorChecks {
		value, flagged := check.value(profile)
		if !flagged {
			continue
		}
		factors = append(factors, domain.RiskFactor{
			Source:     domain.ModalityLifestyle,
			Factor:     check.label,
			Value:      value,
			Importance: importance[check.feature],
			Modifiable: check.modifiable,
		})
	}

	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].Importance > factors[j].Importance
	})
	if len(factors) > maxKeyFactors {
		factors = factors[:maxKeyFactors]
	}
	return factors
}

// CompileRiskFactors merges both modalities: a retinopathy entry first when DR
// was detected, then the lifestyle factors in their ranked order.
func CompileRiskFactors(retinal *domain.RetinalResult, lifestyle *domain.LifestyleResult) []domain.RiskFactor {
	var factors []domain.RiskFactor
	if retinal != nil && retinal.DRDetected {
		factors = append(factors, domain.RiskFactor{
			Source:   domain.ModalityRetinal,
			Factor:   "Diabetic Retinopathy detected",
			Severity: retinal.Severity,
			Details:  retinal.Findings,
		})
	}
	if lifestyle != nil {
		factors = append(factors, lifestyle.KeyFactors...)
	}
	return factors
}

// PrecomputedRetinalClassifier normalizes retinal model output produced by an
// external inference service. Image decoding is not performed here.
type PrecomputedRetinalClassifier struct {
	logger *logrus.Logger
}

// NewPrecomputedRetinalClassifier creates the retinal adapter.
func NewPrecomputedRetinalClassifier(logger *logrus.Logger) *PrecomputedRetinalClassifier {
	return &PrecomputedRetinalClassifier{logger: logger}
}

// Analyze implements domain.RetinalClassifier.
func (c *PrecomputedRetinalClassifier) Analyze(ctx context.Context, input domain.RetinalInput) (*domain.RetinalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pred := input.Prediction
	if pred == nil {
		return nil, ErrNoPrediction
	}

	p := domain.Clamp01(pred.DRProbability)
	result := &domain.RetinalResult{
		Success:       true,
		DRDetected:    p > drDetectionThreshold,
		DRProbability: p,
		Severity:      SeverityFromProbability(p),
		Confidence:    domain.NewRiskInput(p, pred.Confidence).Confidence,
		Findings:      domain.NewRetinalFindings(pred.Microaneurysms, pred.Hemorrhages, pred.Exudates, pred.Neovascularization),
		ModelVersion:  pred.ModelVersion,
	}

	c.logger.WithFields(logrus.Fields{
		"dr_detected": result.DRDetected,
		"severity":    result.Severity,
		"confidence":  result.Confidence,
	}).Info("Retinal analysis complete")
	return result, nil
}

// PrecomputedLifestyleClassifier normalizes lifestyle model output and derives
// the key factors from the profile.
type PrecomputedLifestyleClassifier struct {
	logger *logrus.Logger
}

// NewPrecomputedLifestyleClassifier creates the lifestyle adapter.
func NewPrecomputedLifestyleClassifier(logger *logrus.Logger) *PrecomputedLifestyleClassifier {
	return &PrecomputedLifestyleClassifier{logger: logger}
}

// Predict implements domain.LifestyleClassifier.
func (c *PrecomputedLifestyleClassifier) Predict(ctx context.Context, input domain.LifestyleInput) (*domain.LifestyleResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if input.Profile.IsEmpty() {
		return nil, ErrNoLifestyleData
	}
	pred := input.Prediction
	if pred == nil {
		return nil, ErrNoPrediction
	}

	normalized := domain.NewRiskInput(pred.Probability, pred.Confidence)
	result := &domain.LifestyleResult{
		Success:           true,
		RawProbability:    normalized.Risk,
		Confidence:        normalized.Confidence,
		KeyFactors:        KeyFactors(input.Profile, pred.FeatureImportance),
		FeatureImportance: pred.FeatureImportance,
		ModelVersion:      pred.ModelVersion,
	}

	c.logger.WithFields(logrus.Fields{
		"raw_probability": result.RawProbability,
		"key_factors":     len(result.KeyFactors),
	}).Info("Lifestyle analysis complete")
	return result, nil
}
