package optimizer

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/optimize"

	"github.com/diabetes-risk-fusion/internal/domain"
)

// MultiStartPoints are the restart positions for bounded minimization.
var MultiStartPoints = []float64{0.1, 0.3, 0.5, 0.7, 0.9}

// Soft floor for the retinal weight when a retinal bias is requested.
const biasFloor = 0.6

// outOfBoundsPenalty keeps the simplex near the feasible interval.
const outOfBoundsPenalty = 1e3

// BoundedOptions configures OptimizeBounded.
type BoundedOptions struct {
	MultiStart bool
	// RetinalBias > 0 adds bias·exp(-3·w1) + 10·bias·max(0, 0.6-w1)² to the
	// objective. Reported losses never include the bias.
	RetinalBias   float64
	MaxIterations int
}

// BoundedResult is the outcome of OptimizeBounded.
type BoundedResult struct {
	OptimalW1   float64 `json:"optimal_w1"`
	OptimalW2   float64 `json:"optimal_w2"`
	OptimalLoss float64 `json:"optimal_loss"`
	Success     bool    `json:"success"`
	Starts      int     `json:"n_starts"`
	Message     string  `json:"message"`
}

// Weights returns the optimal pair.
func (r *BoundedResult) Weights() domain.FusionWeights {
	return domain.FusionWeights{Retinal: r.OptimalW1, Lifestyle: r.OptimalW2}
}

var successStatuses = map[optimize.Status]bool{
	optimize.Success:             true,
	optimize.FunctionConvergence: true,
	optimize.GradientThreshold:   true,
	optimize.MethodConverge:      true,
	optimize.StepConvergence:     true,
}

func retinalBiasPenalty(w1, bias float64) float64 {
	if bias <= 0 {
		return 0
	}
	shortfall := math.Max(0, biasFloor-w1)
	return bias*math.Exp(-3*w1) + 10*bias*shortfall*shortfall
}

// OptimizeBounded minimizes the loss over w1 ∈ [0.01, 0.99] with Nelder-Mead,
// optionally from several starting points. Among the starts, the one with the
// lowest unbiased loss wins and becomes the optimizer's current weights.
func (o *Optimizer) OptimizeBounded(set domain.TrainingSet, opts BoundedOptions) (*BoundedResult, error) {
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("bounded optimization: %w", err)
	}

	starts := []float64{clampWeight(o.w1)}
	if opts.MultiStart {
		starts = MultiStartPoints
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			w := clampWeight(x[0])
			excess := x[0] - w
			return o.loss(set, w) + retinalBiasPenalty(w, opts.RetinalBias) + outOfBoundsPenalty*excess*excess
		},
	}
	settings := &optimize.Settings{}
	if opts.MaxIterations > 0 {
		settings.MajorIterations = opts.MaxIterations
	}

	best := &BoundedResult{OptimalLoss: math.Inf(1), Starts: len(starts)}
	var messages []string

	for _, start := range starts {
		result, err := optimize.Minimize(problem, []float64{start}, settings, &optimize.NelderMead{})
		if result == nil {
			o.logger.WithError(err).WithField("start", start).Warn("Bounded optimization start failed")
			messages = append(messages, fmt.Sprintf("start %.1f: %v", start, err))
			continue
		}

		w := clampWeight(result.X[0])
		unbiased := o.loss(set, w)
		ok := err == nil && successStatuses[result.Status]

		o.logger.WithFields(logrus.Fields{
			"start":  start,
			"w1":     w,
			"loss":   unbiased,
			"status": result.Status.String(),
		}).Debug("Bounded optimization start complete")

		if unbiased < best.OptimalLoss {
			best.OptimalW1 = w
			best.OptimalW2 = 1 - w
			best.OptimalLoss = unbiased
			best.Success = ok
			best.Message = result.Status.String()
		}
	}

	if math.IsInf(best.OptimalLoss, 1) {
		return nil, fmt.Errorf("bounded optimization failed for every start: %s", strings.Join(messages, "; "))
	}

	o.w1, o.w2 = best.OptimalW1, best.OptimalW2
	if best.OptimalLoss < o.bestLoss {
		o.bestLoss = best.OptimalLoss
		o.best = best.Weights()
	}
	o.method = MethodBounded.String()

	o.logger.WithFields(logrus.Fields{
		"w1":      best.OptimalW1,
		"w2":      best.OptimalW2,
		"loss":    best.OptimalLoss,
		"starts":  best.Starts,
		"success": best.Success,
	}).Info("Bounded optimization complete")

	return best, nil
}
