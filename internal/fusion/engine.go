package fusion

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/diabetes-risk-fusion/internal/domain"
)

// Config controls how the engine combines modalities.
type Config struct {
	Method domain.FusionMethod
	// UseOptimizedWeights disables confidence blending; learned weights are used as-is.
	UseOptimizedWeights bool
	// BaseShare and ConfidenceShare blend base weights with confidence shares
	// when optimized weights are disabled.
	BaseShare       float64
	ConfidenceShare float64
}

// DefaultConfig returns the weighted-average configuration with a 70/30 blend.
func DefaultConfig() Config {
	return Config{
		Method:              domain.FusionWeightedAverage,
		UseOptimizedWeights: true,
		BaseShare:           0.7,
		ConfidenceShare:     0.3,
	}
}

// ConfigFromDomain converts the application config section. Invalid methods
// fall back to weighted average.
func ConfigFromDomain(fc domain.FusionConfig) Config {
	cfg := DefaultConfig()
	if m, err := domain.ParseFusionMethod(fc.Method); err == nil {
		cfg.Method = m
	}
	cfg.UseOptimizedWeights = fc.UseOptimizedWeights
	if fc.BaseShare >= 0 && fc.ConfidenceShare >= 0 && fc.BaseShare+fc.ConfidenceShare > 0 {
		cfg.BaseShare = fc.BaseShare
		cfg.ConfidenceShare = fc.ConfidenceShare
	}
	return cfg
}

// Engine fuses a retinal and a lifestyle RiskInput into one score.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	logger  *logrus.Logger
	cfg     Config
	weights domain.FusionWeights
}

// NewEngine creates an engine with the given weights, renormalized if needed.
func NewEngine(logger *logrus.Logger, cfg Config, weights domain.FusionWeights) *Engine {
	if !cfg.Method.IsValid() {
		cfg.Method = domain.FusionWeightedAverage
	}
	normalized := weights.Normalize()

	logger.WithFields(logrus.Fields{
		"method":           cfg.Method,
		"retinal_weight":   normalized.Retinal,
		"lifestyle_weight": normalized.Lifestyle,
		"optimized":        cfg.UseOptimizedWeights,
	}).Info("Fusion engine initialized")

	return &Engine{logger: logger, cfg: cfg, weights: normalized}
}

// Weights returns the engine's base weights.
func (e *Engine) Weights() domain.FusionWeights {
	return e.weights
}

// Method returns the configured fusion method.
func (e *Engine) Method() domain.FusionMethod {
	return e.cfg.Method
}

// Fuse combines the two inputs using the engine's weights and method.
func (e *Engine) Fuse(retinal, lifestyle domain.RiskInput) float64 {
	return e.FuseWith(retinal, lifestyle, e.weights, e.cfg.Method)
}

// FuseWith combines the two inputs with explicit weights and method. The result
// is always within [0,1]; a non-finite intermediate falls back to the plain mean.
func (e *Engine) FuseWith(retinal, lifestyle domain.RiskInput, weights domain.FusionWeights, method domain.FusionMethod) float64 {
	r := retinal.Clamped()
	l := lifestyle.Clamped()

	var fused float64
	switch method {
	case domain.FusionMax:
		fused = math.Max(r.Risk, l.Risk)
	case domain.FusionMin:
		fused = math.Min(r.Risk, l.Risk)
	case domain.FusionGeometricMean:
		fused = math.Sqrt(r.Risk * l.Risk)
	default:
		w := e.EffectiveWeights(r, l, weights)
		fused = w.Retinal*r.Risk + w.Lifestyle*l.Risk
	}

	if math.IsNaN(fused) || math.IsInf(fused, 0) {
		mean := (r.Risk + l.Risk) / 2
		e.logger.WithFields(logrus.Fields{
			"method":         method,
			"retinal_risk":   r.Risk,
			"lifestyle_risk": l.Risk,
		}).Error("Fusion produced a non-finite score, using unweighted mean")
		return mean
	}

	fused = domain.Clamp01(fused)
	e.logger.WithFields(logrus.Fields{
		"retinal_risk":   r.Risk,
		"lifestyle_risk": l.Risk,
		"fused":          fused,
	}).Debug("Fused risk")
	return fused
}

// EffectiveWeights returns the weights actually applied by the weighted average.
// With optimized weights enabled they are returned unchanged; otherwise they are
// blended with the confidence shares and renormalized.
func (e *Engine) EffectiveWeights(retinal, lifestyle domain.RiskInput, weights domain.FusionWeights) domain.FusionWeights {
	if e.cfg.UseOptimizedWeights {
		return weights
	}
	totalConf := retinal.Confidence + lifestyle.Confidence
	if totalConf <= 0 {
		return weights
	}
	blended := domain.FusionWeights{
		Retinal:   weights.Retinal*e.cfg.BaseShare + (retinal.Confidence/totalConf)*e.cfg.ConfidenceShare,
		Lifestyle: weights.Lifestyle*e.cfg.BaseShare + (lifestyle.Confidence/totalConf)*e.cfg.ConfidenceShare,
	}
	total := blended.Sum()
	if total <= 0 || math.IsNaN(total) {
		return weights
	}
	return domain.FusionWeights{Retinal: blended.Retinal / total, Lifestyle: blended.Lifestyle / total}
}
