// Package training prepares labeled data and selects the fusion weights that
// get written to the weight artifact.
package training

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/diabetes-risk-fusion/internal/domain"
)

// SyntheticConfig shapes the generated population. Retinal predictions are
// the more accurate modality but occasionally miss entirely; lifestyle
// predictions are noisier but sometimes close to exact.
type SyntheticConfig struct {
	Samples      int
	Seed         uint64
	PositiveRate float64

	RetinalNoise    float64
	RetinalMissRate float64

	LifestyleNoise      float64
	LifestyleExcelRate  float64
	LifestyleExcelNoise float64
}

// DefaultSyntheticConfig returns 1000 samples, seed 42 and a 35% positive rate.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Samples:             1000,
		Seed:                42,
		PositiveRate:        0.35,
		RetinalNoise:        0.15,
		RetinalMissRate:     0.10,
		LifestyleNoise:      0.25,
		LifestyleExcelRate:  0.15,
		LifestyleExcelNoise: 0.10,
	}
}

// GenerateSynthetic draws a reproducible training set. Identical configs
// produce identical sets. Lifestyle predictions are raw, i.e. uncalibrated.
func GenerateSynthetic(cfg SyntheticConfig) domain.TrainingSet {
	n := cfg.Samples
	if n <= 0 {
		n = DefaultSyntheticConfig().Samples
	}

	src := rand.NewPCG(cfg.Seed, cfg.Seed)
	uniform := rand.New(src)

	labels := distuv.Bernoulli{P: cfg.PositiveRate, Src: src}
	retinalNoise := distuv.Normal{Mu: 0, Sigma: cfg.RetinalNoise, Src: src}
	lifestyleNoise := distuv.Normal{Mu: 0, Sigma: cfg.LifestyleNoise, Src: src}
	excelNoise := distuv.Normal{Mu: 0, Sigma: cfg.LifestyleExcelNoise, Src: src}

	set := domain.TrainingSet{
		YTrue:          make([]float64, 0, n),
		RetinalPreds:   make([]float64, 0, n),
		LifestylePreds: make([]float64, 0, n),
	}
	for i := 0; i < n; i++ {
		y := labels.Rand()

		retinal := y + retinalNoise.Rand()
		if uniform.Float64() < cfg.RetinalMissRate {
			retinal = 1 - y
		}

		lifestyle := y + lifestyleNoise.Rand()
		if uniform.Float64() < cfg.LifestyleExcelRate {
			lifestyle = y + excelNoise.Rand()
		}

		set.Add(y, domain.Clamp01(retinal), domain.Clamp01(lifestyle))
	}
	return set
}
