// Package fusion combines per-modality diabetes risk estimates into a single
// calibrated score.
package fusion

import (
	"math"
)

// Observed output range of the lifestyle classifier. Fusion weights are tuned
// against inputs rescaled from this range, so it must not drift.
const (
	DefaultCalibrationMin = 0.4
	DefaultCalibrationMax = 1.0
)

// Calibrator rescales raw lifestyle probabilities from [Min, Max] onto [0, 1].
type Calibrator struct {
	Min float64
	Max float64
}

// DefaultCalibrator maps [0.4, 1.0] onto [0, 1].
var DefaultCalibrator = Calibrator{Min: DefaultCalibrationMin, Max: DefaultCalibrationMax}

// NewCalibrator returns a calibrator for the given range. An empty or inverted
// range falls back to the default.
func NewCalibrator(min, max float64) Calibrator {
	if !(max > min) {
		return DefaultCalibrator
	}
	return Calibrator{Min: min, Max: max}
}

// Calibrate applies the affine rescaling and clamps to [0,1]. NaN maps to 0.
func (c Calibrator) Calibrate(raw float64) float64 {
	if math.IsNaN(raw) || raw <= c.Min {
		return 0
	}
	if raw >= c.Max {
		return 1
	}
	v := (raw - c.Min) / (c.Max - c.Min)
	return math.Min(math.Max(v, 0), 1)
}

// CalibrateAll calibrates every value into a new slice.
func (c Calibrator) CalibrateAll(raw []float64) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = c.Calibrate(v)
	}
	return out
}

// Calibrate applies DefaultCalibrator.
func Calibrate(raw float64) float64 {
	return DefaultCalibrator.Calibrate(raw)
}
