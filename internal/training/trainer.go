package training

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/diabetes-risk-fusion/internal/domain"
	"github.com/diabetes-risk-fusion/internal/fusion"
	"github.com/diabetes-risk-fusion/internal/optimizer"
)

// CalibrationTag marks artifacts trained on calibrated lifestyle predictions.
const CalibrationTag = "lifestyle_calibrated"

// Candidate names, in comparison order.
const (
	CandidateGradient = "gradient_descent"
	CandidateBounded  = "bounded"
	CandidateExpert   = "domain_expert"
	CandidateBayesian = "bayesian_prior"
	CandidateEnsemble = "ensemble_vote"
)

// Options configures Compare.
type Options struct {
	Epochs        int
	TrainFraction float64
	// ExpertWeights is the fixed clinician-chosen pair, also used as the
	// Bayesian prior mean.
	ExpertWeights domain.FusionWeights
	// PriorStrength is the share of the prior in the Bayesian blend.
	PriorStrength float64
	// EnsembleThreshold selects which candidates vote: those with w1 above it.
	EnsembleThreshold float64
}

// DefaultOptions returns 200 epochs, an 80/20 split, an 85/15 expert pair,
// a 0.3 prior strength and a 0.7 ensemble threshold.
func DefaultOptions() Options {
	return Options{
		Epochs:            200,
		TrainFraction:     0.8,
		ExpertWeights:     domain.FusionWeights{Retinal: 0.85, Lifestyle: 0.15},
		PriorStrength:     0.3,
		EnsembleThreshold: 0.7,
	}
}

// Candidate is one weight pair and its held-out loss.
type Candidate struct {
	Name    string               `json:"name"`
	Weights domain.FusionWeights `json:"weights"`
	Loss    float64              `json:"loss"`
}

// Report is the outcome of Compare.
type Report struct {
	TrainSamples int                      `json:"train_samples"`
	TestSamples  int                      `json:"test_samples"`
	Candidates   []Candidate              `json:"candidates"`
	Best         Candidate                `json:"best"`
	Performance  optimizer.Performance    `json:"performance"`
	History      []optimizer.TrainingStep `json:"-"`
}

// Artifact converts the report into the weight document consumed by the
// fusion engine.
func (r *Report) Artifact() *optimizer.Artifact {
	loss := r.Best.Loss
	perf := r.Performance
	return &optimizer.Artifact{
		RetinalWeight:   r.Best.Weights.Retinal,
		LifestyleWeight: r.Best.Weights.Lifestyle,
		BestLoss:        &loss,
		TrainingHistory: r.History,
		Method:          r.Best.Name + "_optimized",
		Calibration:     CalibrationTag,
		Performance:     &perf,
		SavedAt:         time.Now().UTC(),
	}
}

// Trainer calibrates data and runs the weight selection procedures.
type Trainer struct {
	logger     *logrus.Logger
	cfg        optimizer.Config
	calibrator fusion.Calibrator
}

// NewTrainer creates a trainer.
func NewTrainer(logger *logrus.Logger, cfg optimizer.Config, calibrator fusion.Calibrator) *Trainer {
	return &Trainer{logger: logger, cfg: cfg, calibrator: calibrator}
}

// Calibrate returns a copy of set with calibrated lifestyle predictions.
func (t *Trainer) Calibrate(set domain.TrainingSet) domain.TrainingSet {
	return set.WithLifestyle(t.calibrator.CalibrateAll(set.LifestylePreds))
}

// Compare calibrates set, splits it into train and test portions and scores
// every candidate on the test portion. The lowest loss wins. Zero-valued
// options take the DefaultOptions values.
func (t *Trainer) Compare(set domain.TrainingSet, opts Options) (*Report, error) {
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("compare: %w", err)
	}
	defaults := DefaultOptions()
	if opts.Epochs <= 0 {
		opts.Epochs = defaults.Epochs
	}
	if opts.TrainFraction <= 0 || opts.TrainFraction >= 1 {
		opts.TrainFraction = defaults.TrainFraction
	}
	if opts.ExpertWeights.Sum() == 0 {
		opts.ExpertWeights = defaults.ExpertWeights
	}
	if opts.PriorStrength <= 0 || opts.PriorStrength > 1 {
		opts.PriorStrength = defaults.PriorStrength
	}
	if opts.EnsembleThreshold <= 0 {
		opts.EnsembleThreshold = defaults.EnsembleThreshold
	}
	opts.ExpertWeights = opts.ExpertWeights.Normalize()

	calibrated := t.Calibrate(set)
	split := int(float64(set.Len()) * opts.TrainFraction)
	if split < 1 || split >= set.Len() {
		return nil, domain.NewValidationError("samples", "too few examples to split into train and test", set.Len())
	}
	train := calibrated.Slice(0, split)
	test := calibrated.Slice(split, set.Len())

	// Step 1: fit the two data-driven candidates concurrently.
	var gradient *optimizer.TrainResult
	var bounded *optimizer.BoundedResult
	var history []optimizer.TrainingStep

	var g errgroup.Group
	g.Go(func() error {
		opt := optimizer.New(t.logger, t.cfg, domain.FusionWeights{Retinal: 0.5, Lifestyle: 0.5})
		res, err := opt.TrainBatch(train, opts.Epochs)
		if err != nil {
			return fmt.Errorf("gradient descent: %w", err)
		}
		gradient = res
		history = opt.History()
		return nil
	})
	g.Go(func() error {
		opt := optimizer.New(t.logger, t.cfg, domain.DefaultFusionWeights())
		res, err := opt.OptimizeBounded(train, optimizer.BoundedOptions{MultiStart: true})
		if err != nil {
			return fmt.Errorf("bounded optimization: %w", err)
		}
		bounded = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Step 2: derive the remaining candidates.
	bayesW1 := opts.PriorStrength*opts.ExpertWeights.Retinal + (1-opts.PriorStrength)*bounded.OptimalW1
	weights := []Candidate{
		{Name: CandidateGradient, Weights: gradient.BestWeights},
		{Name: CandidateBounded, Weights: bounded.Weights()},
		{Name: CandidateExpert, Weights: opts.ExpertWeights},
		{Name: CandidateBayesian, Weights: domain.FusionWeights{Retinal: bayesW1, Lifestyle: 1 - bayesW1}},
	}
	var voters []float64
	for _, c := range weights {
		if c.Weights.Retinal > opts.EnsembleThreshold {
			voters = append(voters, c.Weights.Retinal)
		}
	}
	if len(voters) > 0 {
		w1 := stat.Mean(voters, nil)
		weights = append(weights, Candidate{Name: CandidateEnsemble, Weights: domain.FusionWeights{Retinal: w1, Lifestyle: 1 - w1}})
	}

	// Step 3: score everything on the held-out data.
	evaluator := optimizer.New(t.logger, t.cfg, domain.DefaultFusionWeights())
	for i := range weights {
		loss, err := evaluator.Loss(test, weights[i].Weights.Retinal)
		if err != nil {
			return nil, fmt.Errorf("scoring %s: %w", weights[i].Name, err)
		}
		weights[i].Loss = loss
		t.logger.WithFields(logrus.Fields{
			"method": weights[i].Name,
			"w1":     weights[i].Weights.Retinal,
			"w2":     weights[i].Weights.Lifestyle,
			"loss":   loss,
		}).Info("Candidate scored")
	}

	ranked := make([]Candidate, len(weights))
	copy(ranked, weights)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Loss < ranked[j].Loss })
	best := ranked[0]

	report := &Report{
		TrainSamples: train.Len(),
		TestSamples:  test.Len(),
		Candidates:   weights,
		Best:         best,
		Performance: optimizer.Performance{
			TrainingSamples:             set.Len(),
			RetinalAccuracy:             Accuracy(set.RetinalPreds, set.YTrue),
			LifestyleAccuracy:           Accuracy(set.LifestylePreds, set.YTrue),
			LifestyleCalibratedAccuracy: Accuracy(calibrated.LifestylePreds, set.YTrue),
			FusedAccuracyEstimate:       Accuracy(Fused(test, best.Weights), test.YTrue),
		},
		History: history,
	}

	t.logger.WithFields(logrus.Fields{
		"method": best.Name,
		"w1":     best.Weights.Retinal,
		"loss":   best.Loss,
	}).Info("Selected fusion weights")

	return report, nil
}

// CrossValidate calibrates set, splits it into k folds and averages the
// per-fold optima. The returned artifact carries the averaged weights.
func (t *Trainer) CrossValidate(set domain.TrainingSet, k int, method optimizer.Method) (*optimizer.CrossValidationResult, *optimizer.Artifact, error) {
	folds, err := t.Calibrate(set).Folds(k)
	if err != nil {
		return nil, nil, fmt.Errorf("cross-validate: %w", err)
	}
	opt := optimizer.New(t.logger, t.cfg, domain.DefaultFusionWeights())
	result, err := opt.CrossValidate(folds, method)
	if err != nil {
		return nil, nil, err
	}
	return result, opt.Artifact(CalibrationTag), nil
}

// Fused returns w1·r + w2·l for every example.
func Fused(set domain.TrainingSet, w domain.FusionWeights) []float64 {
	out := make([]float64, set.Len())
	floats.AddScaledTo(out, out, w.Retinal, set.RetinalPreds)
	floats.AddScaled(out, w.Lifestyle, set.LifestylePreds)
	return out
}

// Accuracy is 1 - mean|pred - y|. Empty or mismatched input yields NaN.
func Accuracy(preds, yTrue []float64) float64 {
	if len(preds) == 0 || len(preds) != len(yTrue) {
		return math.NaN()
	}
	return 1 - floats.Distance(preds, yTrue, 1)/float64(len(preds))
}
