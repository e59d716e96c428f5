// Package optimizer learns the retinal/lifestyle fusion weight pair from labeled
// data. The pair is constrained to w1 + w2 = 1, so every procedure here searches
// over the retinal weight w1 alone.
package optimizer

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/diabetes-risk-fusion/internal/domain"
)

// Bounds on w1 during training. Neither modality may be dropped entirely.
const (
	MinWeight = 0.01
	MaxWeight = 0.99
)

const (
	DefaultLearningRate   = 0.01
	DefaultRegularization = 0.001

	resultHistoryLen = 10
)

// Config holds optimizer hyperparameters
type Config struct {
	LearningRate   float64 `json:"learning_rate"`
	Regularization float64 `json:"regularization"`
}

// DefaultConfig returns lr=0.01, λ=0.001.
func DefaultConfig() Config {
	return Config{
		LearningRate:   DefaultLearningRate,
		Regularization: DefaultRegularization,
	}
}

// TrainingStep is one gradient descent epoch. Loss is evaluated before the
// update; W1/W2 are the weights after it.
type TrainingStep struct {
	Epoch    int     `json:"epoch"`
	Loss     float64 `json:"loss"`
	W1       float64 `json:"w1"`
	W2       float64 `json:"w2"`
	Gradient float64 `json:"gradient"`
}

// TrainResult summarizes a TrainBatch run
type TrainResult struct {
	BestWeights  domain.FusionWeights `json:"best_weights"`
	BestLoss     float64              `json:"best_loss"`
	FinalWeights domain.FusionWeights `json:"final_weights"`
	History      []TrainingStep       `json:"history"`
}

// Optimizer tracks the current weight pair, the best pair seen, and the
// training history. It is single-writer and intended for offline use.
type Optimizer struct {
	logger *logrus.Logger
	cfg    Config

	w1, w2   float64
	best     domain.FusionWeights
	bestLoss float64
	history  []TrainingStep
	method   string
}

// New creates an optimizer starting at the given weights (renormalized).
func New(logger *logrus.Logger, cfg Config, initial domain.FusionWeights) *Optimizer {
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = DefaultLearningRate
	}
	if cfg.Regularization < 0 {
		cfg.Regularization = DefaultRegularization
	}
	o := &Optimizer{logger: logger, cfg: cfg, method: MethodGradient.String()}
	o.SetWeights(initial)

	logger.WithFields(logrus.Fields{
		"w1":             o.w1,
		"w2":             o.w2,
		"learning_rate":  cfg.LearningRate,
		"regularization": cfg.Regularization,
	}).Info("Initialized weight optimizer")
	return o
}

// SetWeights resets the current pair and clears best-so-far tracking.
func (o *Optimizer) SetWeights(w domain.FusionWeights) {
	w = w.Normalize()
	o.w1, o.w2 = w.Retinal, w.Lifestyle
	o.best = w
	o.bestLoss = math.Inf(1)
}

// Weights returns the current weight pair.
func (o *Optimizer) Weights() domain.FusionWeights {
	return domain.FusionWeights{Retinal: o.w1, Lifestyle: o.w2}
}

// BestLoss returns the lowest loss seen, or +Inf before any training.
func (o *Optimizer) BestLoss() float64 {
	return o.bestLoss
}

// History returns a copy of the full training history.
func (o *Optimizer) History() []TrainingStep {
	out := make([]TrainingStep, len(o.history))
	copy(out, o.history)
	return out
}

// Method returns the tag of the last procedure that set the weights.
func (o *Optimizer) Method() string {
	return o.method
}

// Loss computes MSE(y, w1·r + (1-w1)·l) + λ(w1² + w2²) with w2 = 1 - w1.
func (o *Optimizer) Loss(set domain.TrainingSet, w1 float64) (float64, error) {
	if err := set.Validate(); err != nil {
		return 0, err
	}
	return o.loss(set, w1), nil
}

// Gradient computes dL/dw1 = (2/n)·Σ(err·(r - l)) + 2λ(w1 - w2).
func (o *Optimizer) Gradient(set domain.TrainingSet, w1 float64) (float64, error) {
	if err := set.Validate(); err != nil {
		return 0, err
	}
	return o.gradient(set, w1), nil
}

func (o *Optimizer) residuals(set domain.TrainingSet, w1 float64) []float64 {
	w2 := 1 - w1
	pred := make([]float64, set.Len())
	floats.ScaleTo(pred, w1, set.RetinalPreds)
	floats.AddScaled(pred, w2, set.LifestylePreds)
	floats.Sub(pred, set.YTrue)
	return pred
}

func (o *Optimizer) loss(set domain.TrainingSet, w1 float64) float64 {
	w2 := 1 - w1
	res := o.residuals(set, w1)
	mse := floats.Dot(res, res) / float64(len(res))
	return mse + o.cfg.Regularization*(w1*w1+w2*w2)
}

func (o *Optimizer) gradient(set domain.TrainingSet, w1 float64) float64 {
	w2 := 1 - w1
	res := o.residuals(set, w1)
	diff := make([]float64, len(res))
	floats.SubTo(diff, set.RetinalPreds, set.LifestylePreds)
	mseGrad := (2.0 / float64(len(res))) * floats.Dot(res, diff)
	return mseGrad + 2*o.cfg.Regularization*(w1-w2)
}

// TrainBatch runs epochs of projected gradient descent. The returned and
// applied weights are the best seen, which may differ from the last epoch's.
func (o *Optimizer) TrainBatch(set domain.TrainingSet, epochs int) (*TrainResult, error) {
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("train batch: %w", err)
	}
	if epochs <= 0 {
		return nil, domain.NewValidationError("epochs", "must be positive", epochs)
	}

	o.logger.WithFields(logrus.Fields{
		"epochs":  epochs,
		"samples": set.Len(),
	}).Info("Starting weight optimization")

	o.w1 = clampWeight(o.w1)
	o.w2 = 1 - o.w1

	for epoch := 0; epoch < epochs; epoch++ {
		evaluatedAt := o.w1
		currentLoss := o.loss(set, evaluatedAt)
		grad := o.gradient(set, evaluatedAt)

		o.w1 = clampWeight(o.w1 - o.cfg.LearningRate*grad)
		o.w2 = 1 - o.w1

		if currentLoss < o.bestLoss {
			o.bestLoss = currentLoss
			o.best = domain.FusionWeights{Retinal: evaluatedAt, Lifestyle: 1 - evaluatedAt}
		}

		if epoch%10 == 0 {
			o.logger.WithFields(logrus.Fields{
				"epoch":    epoch,
				"loss":     currentLoss,
				"w1":       o.w1,
				"gradient": grad,
			}).Debug("Optimizer epoch")
		}

		o.history = append(o.history, TrainingStep{
			Epoch:    epoch,
			Loss:     currentLoss,
			W1:       o.w1,
			W2:       o.w2,
			Gradient: grad,
		})
	}

	final := o.Weights()
	o.w1, o.w2 = o.best.Retinal, o.best.Lifestyle
	o.method = MethodGradient.String()

	o.logger.WithFields(logrus.Fields{
		"w1":   o.w1,
		"w2":   o.w2,
		"loss": o.bestLoss,
	}).Info("Training complete")

	return &TrainResult{
		BestWeights:  o.best,
		BestLoss:     o.bestLoss,
		FinalWeights: final,
		History:      tail(o.history, resultHistoryLen),
	}, nil
}

func clampWeight(w float64) float64 {
	if math.IsNaN(w) {
		return 0.5
	}
	return math.Min(math.Max(w, MinWeight), MaxWeight)
}

func tail(steps []TrainingStep, n int) []TrainingStep {
	if len(steps) > n {
		steps = steps[len(steps)-n:]
	}
	out := make([]TrainingStep, len(steps))
	copy(out, steps)
	return out
}
