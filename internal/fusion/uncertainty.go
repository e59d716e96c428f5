package fusion

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/diabetes-risk-fusion/internal/domain"
)

// FuseWithUncertainty fuses any number of modalities. The risk is the
// confidence-weighted mean, the uncertainty is the population standard deviation
// of the per-modality risks, and disagreement lowers confidence down to half of
// the mean confidence.
func (e *Engine) FuseWithUncertainty(predictions map[domain.Modality]domain.RiskInput) domain.UncertaintyResult {
	if len(predictions) == 0 {
		return domain.UncertaintyResult{Risk: domain.NeutralRisk}
	}

	// Sorted keys keep the floating-point sums reproducible.
	keys := make([]domain.Modality, 0, len(predictions))
	for k := range predictions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	risks := make([]float64, len(keys))
	confidences := make([]float64, len(keys))
	for i, k := range keys {
		in := predictions[k].Clamped()
		risks[i] = in.Risk
		confidences[i] = in.Confidence
	}

	var risk float64
	if total := floats.Sum(confidences); total > 0 {
		weights := make([]float64, len(confidences))
		floats.ScaleTo(weights, 1/total, confidences)
		risk = floats.Dot(risks, weights)
	} else {
		risk = stat.Mean(risks, nil)
	}

	uncertainty := stat.PopStdDev(risks, nil)
	agreement := math.Max(1-2*uncertainty, 0.5)
	confidence := stat.Mean(confidences, nil) * agreement

	result := domain.UncertaintyResult{
		Risk:        domain.Clamp01(risk),
		Confidence:  domain.Clamp01(confidence),
		Uncertainty: uncertainty,
	}
	e.logger.WithField("modalities", len(keys)).Debugf("Uncertainty fusion: %+v", result)
	return result
}
