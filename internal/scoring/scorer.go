// Package scoring turns a fused risk score into a categorical assessment.
package scoring

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/diabetes-risk-fusion/internal/domain"
)

// Category boundaries. Intervals are half-open: [0,0.3) is low.
const (
	ModerateThreshold = 0.3
	HighThreshold     = 0.5
	VeryHighThreshold = 0.7
)

const (
	baseConfidence     = 0.75
	confidenceStep     = 0.10
	borderlineDistance = 0.05
	minConfidence      = 0.5
	maxConfidence      = 0.95

	maxPreventionPotential = 0.8
	unmodifiablePotential  = 0.1
)

var thresholds = []float64{ModerateThreshold, HighThreshold, VeryHighThreshold}

type levelInfo struct {
	priority       domain.Priority
	action         string
	interpretation string
}

var levels = map[domain.RiskLevel]levelInfo{
	domain.RiskLow: {
		priority:       domain.PriorityRoutine,
		action:         "Continue healthy lifestyle habits. Schedule routine check-up in 12 months.",
		interpretation: "Your current risk of developing diabetes is low. Continue maintaining healthy lifestyle habits.",
	},
	domain.RiskModerate: {
		priority:       domain.PriorityElevated,
		action:         "Implement lifestyle modifications. Schedule check-up in 6 months.",
		interpretation: "You have a moderate risk of developing diabetes. Making lifestyle changes now can significantly reduce your risk.",
	},
	domain.RiskHigh: {
		priority:       domain.PriorityUrgent,
		action:         "Begin preventive interventions immediately. Consult healthcare provider within 1 month.",
		interpretation: "You have a high risk of developing diabetes. We strongly recommend implementing preventive measures and consulting with a healthcare provider.",
	},
	domain.RiskVeryHigh: {
		priority:       domain.PriorityCritical,
		action:         "Seek immediate medical evaluation. Schedule appointment within 1-2 weeks.",
		interpretation: "You have a very high risk of developing diabetes. Please consult with a healthcare provider as soon as possible for comprehensive evaluation and intervention.",
	},
	domain.RiskUnknown: {
		priority:       domain.PriorityRoutine,
		action:         "Consult with healthcare provider",
		interpretation: "Unable to determine risk level",
	},
}

// Scorer assesses fused scores. It has no mutable state.
type Scorer struct {
	logger *logrus.Logger
}

// NewScorer creates a Scorer.
func NewScorer(logger *logrus.Logger) *Scorer {
	return &Scorer{logger: logger}
}

// Level maps a score onto its risk level.
func Level(score float64) domain.RiskLevel {
	switch {
	case math.IsNaN(score):
		return domain.RiskUnknown
	case score < ModerateThreshold:
		return domain.RiskLow
	case score < HighThreshold:
		return domain.RiskModerate
	case score < VeryHighThreshold:
		return domain.RiskHigh
	default:
		return domain.RiskVeryHigh
	}
}

// PriorityFor returns the follow-up priority for a level.
func PriorityFor(level domain.RiskLevel) domain.Priority {
	return lookup(level).priority
}

// RecommendedAction returns the next-step text for a level.
func RecommendedAction(level domain.RiskLevel) string {
	return lookup(level).action
}

func lookup(level domain.RiskLevel) levelInfo {
	if info, ok := levels[level]; ok {
		return info
	}
	return levels[domain.RiskUnknown]
}

// Assess builds the assessment for a fused score. A nil findings value means
// no retinal analysis was available.
func (s *Scorer) Assess(fused float64, findings *domain.RetinalFindings, factors []domain.RiskFactor) domain.Assessment {
	level := Level(fused)
	info := lookup(level)

	assessment := domain.Assessment{
		RiskLevel:         level,
		Confidence:        Confidence(fused, findings, factors),
		Interpretation:    Interpret(level, findings, factors),
		Priority:          info.priority,
		RecommendedAction: info.action,
	}

	s.logger.WithFields(logrus.Fields{
		"fused_score": fused,
		"risk_level":  level,
		"confidence":  assessment.Confidence,
	}).Debug("Risk assessed")

	return assessment
}

// Confidence rates how certain the assessment is given the evidence available.
// Scores near a category boundary are reported as less certain.
func Confidence(fused float64, findings *domain.RetinalFindings, factors []domain.RiskFactor) float64 {
	confidence := baseConfidence
	if findings != nil {
		confidence += confidenceStep
	}
	if len(factors) >= 3 {
		confidence += confidenceStep
	}
	for _, t := range thresholds {
		if math.Abs(fused-t) < borderlineDistance {
			confidence -= confidenceStep
			break
		}
	}
	return math.Min(math.Max(confidence, minConfidence), maxConfidence)
}

// Interpret renders the per-level template plus the retinal and modifiable
// factor clauses.
func Interpret(level domain.RiskLevel, findings *domain.RetinalFindings, factors []domain.RiskFactor) string {
	text := lookup(level).interpretation

	if findings != nil && findings.TotalFeaturesDetected > 0 {
		text += " Retinal signs consistent with diabetes have been detected."
	}

	if n := countModifiable(factors); n > 0 {
		text += fmt.Sprintf(" You have %d modifiable risk factor(s) that you can address.", n)
	}
	return text
}

// PreventionPotential estimates how much risk behavior change could remove:
// the summed importance of modifiable factors, capped at 0.8.
func PreventionPotential(factors []domain.RiskFactor) float64 {
	if len(factors) == 0 {
		return 0
	}
	var potential float64
	modifiable := 0
	for _, f := range factors {
		if f.Modifiable {
			modifiable++
			potential += f.Importance
		}
	}
	if modifiable == 0 {
		return unmodifiablePotential
	}
	return math.Min(potential, maxPreventionPotential)
}

func countModifiable(factors []domain.RiskFactor) int {
	n := 0
	for _, f := range factors {
		if f.Modifiable {
			n++
		}
	}
	return n
}
