package optimizer

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/diabetes-risk-fusion/internal/domain"
)

// Method names an optimization procedure.
type Method string

const (
	MethodGradient Method = "gradient"
	MethodBounded  Method = "bounded"
)

// Per-fold settings for cross-validation.
const (
	foldEpochs = 50
)

var foldInitialWeights = domain.FusionWeights{Retinal: 0.7, Lifestyle: 0.3}

// IsValid reports whether the method is known.
func (m Method) IsValid() bool {
	return m == MethodGradient || m == MethodBounded
}

func (m Method) String() string {
	return string(m)
}

// CrossValidationResult aggregates per-fold optimal weights.
type CrossValidationResult struct {
	AverageWeights domain.FusionWeights   `json:"average_weights"`
	StdW1          float64                `json:"std_w1"`
	StdW2          float64                `json:"std_w2"`
	AverageLoss    float64                `json:"average_loss"`
	AllWeights     []domain.FusionWeights `json:"all_weights"`
}

// CrossValidate optimizes each fold independently from 0.7/0.3 and averages
// the resulting weights. The spread across folds is reported as population
// standard deviation. The averaged pair becomes the current weights.
func (o *Optimizer) CrossValidate(folds []domain.TrainingSet, method Method) (*CrossValidationResult, error) {
	if len(folds) == 0 {
		return nil, domain.NewValidationError("folds", "at least one fold is required", 0)
	}
	if !method.IsValid() {
		return nil, domain.NewValidationError("method", "must be gradient or bounded", method)
	}

	all := make([]domain.FusionWeights, 0, len(folds))
	w1s := make([]float64, 0, len(folds))
	w2s := make([]float64, 0, len(folds))
	losses := make([]float64, 0, len(folds))

	for i, fold := range folds {
		o.logger.WithFields(logrus.Fields{
			"fold":   i + 1,
			"folds":  len(folds),
			"method": method,
		}).Info("Cross-validation fold")

		o.SetWeights(foldInitialWeights)

		var w domain.FusionWeights
		var loss float64
		switch method {
		case MethodGradient:
			res, err := o.TrainBatch(fold, foldEpochs)
			if err != nil {
				return nil, fmt.Errorf("fold %d: %w", i+1, err)
			}
			w, loss = res.BestWeights, res.BestLoss
		case MethodBounded:
			res, err := o.OptimizeBounded(fold, BoundedOptions{})
			if err != nil {
				return nil, fmt.Errorf("fold %d: %w", i+1, err)
			}
			w, loss = res.Weights(), res.OptimalLoss
		}

		all = append(all, w)
		w1s = append(w1s, w.Retinal)
		w2s = append(w2s, w.Lifestyle)
		losses = append(losses, loss)
	}

	avg := domain.FusionWeights{
		Retinal:   stat.Mean(w1s, nil),
		Lifestyle: stat.Mean(w2s, nil),
	}
	total := avg.Sum()
	avg = domain.FusionWeights{Retinal: avg.Retinal / total, Lifestyle: avg.Lifestyle / total}

	result := &CrossValidationResult{
		AverageWeights: avg,
		StdW1:          stat.PopStdDev(w1s, nil),
		StdW2:          stat.PopStdDev(w2s, nil),
		AverageLoss:    stat.Mean(losses, nil),
		AllWeights:     all,
	}

	o.w1, o.w2 = avg.Retinal, avg.Lifestyle
	o.best = avg
	o.bestLoss = result.AverageLoss
	o.method = "cross_validated_" + method.String()

	o.logger.WithFields(logrus.Fields{
		"w1":     avg.Retinal,
		"w2":     avg.Lifestyle,
		"std_w1": result.StdW1,
	}).Info("Cross-validation complete")

	return result, nil
}
