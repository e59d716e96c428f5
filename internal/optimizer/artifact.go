package optimizer

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/diabetes-risk-fusion/internal/domain"
)

const (
	artifactHistoryLen = 20
	weightConstraint   = "w1 + w2 = 1"
)

// Artifact is the persisted weight document read by the fusion engine at startup.
type Artifact struct {
	RetinalWeight   float64        `json:"retinal_weight"`
	LifestyleWeight float64        `json:"lifestyle_weight"`
	BestLoss        *float64       `json:"best_loss"`
	TrainingHistory []TrainingStep `json:"training_history"`
	Method          string         `json:"method"`
	Constraint      string         `json:"constraint"`
	Calibration     string         `json:"calibration,omitempty"`
	Performance     *Performance   `json:"performance,omitempty"`
	SavedAt         time.Time      `json:"saved_at,omitempty"`

	// Loaded is false when defaults were substituted for a missing or unreadable file.
	Loaded bool `json:"-"`
}

// Performance records standalone and fused accuracy, each 1 - mean|pred - y|.
type Performance struct {
	TrainingSamples             int     `json:"training_samples"`
	RetinalAccuracy             float64 `json:"retinal_standalone_accuracy"`
	LifestyleAccuracy           float64 `json:"lifestyle_standalone_accuracy"`
	LifestyleCalibratedAccuracy float64 `json:"lifestyle_calibrated_accuracy"`
	FusedAccuracyEstimate       float64 `json:"fused_accuracy_estimate"`
}

// Weights returns the artifact's weight pair.
func (a *Artifact) Weights() domain.FusionWeights {
	return domain.FusionWeights{Retinal: a.RetinalWeight, Lifestyle: a.LifestyleWeight}
}

// DefaultArtifact is used whenever no usable artifact exists.
func DefaultArtifact() *Artifact {
	w := domain.DefaultFusionWeights()
	return &Artifact{
		RetinalWeight:   w.Retinal,
		LifestyleWeight: w.Lifestyle,
		Method:          "default",
		Constraint:      weightConstraint,
	}
}

// Artifact snapshots the optimizer's current state.
func (o *Optimizer) Artifact(calibration string) *Artifact {
	a := &Artifact{
		RetinalWeight:   o.w1,
		LifestyleWeight: o.w2,
		TrainingHistory: tail(o.history, artifactHistoryLen),
		Method:          o.method,
		Constraint:      weightConstraint,
		Calibration:     calibration,
		SavedAt:         time.Now().UTC(),
	}
	if !math.IsInf(o.bestLoss, 0) && !math.IsNaN(o.bestLoss) {
		loss := o.bestLoss
		a.BestLoss = &loss
	}
	return a
}

// SaveWeights writes the current weights to path.
func (o *Optimizer) SaveWeights(path, calibration string) (*Artifact, error) {
	a := o.Artifact(calibration)
	if err := SaveArtifact(path, a); err != nil {
		return nil, err
	}
	o.logger.WithFields(logrus.Fields{
		"path": path,
		"w1":   a.RetinalWeight,
		"w2":   a.LifestyleWeight,
	}).Info("Weights saved")
	return a, nil
}

// SaveArtifact writes the artifact atomically: a temp file in the target
// directory is renamed over path.
func SaveArtifact(path string, a *Artifact) error {
	if a.Constraint == "" {
		a.Constraint = weightConstraint
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create weights directory: %w", err)
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".weights-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp weights file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write weights: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close weights file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move weights into place: %w", err)
	}
	return nil
}

// LoadArtifact reads the weight document at path. It never fails: a missing,
// unreadable or incomplete file yields DefaultArtifact, and a pair that does
// not sum to one is renormalized.
func LoadArtifact(logger *logrus.Logger, path string) *Artifact {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.WithField("path", path).Warn("Weights file not found, using defaults")
		} else {
			logger.WithError(err).WithField("path", path).Warn("Failed to read weights file, using defaults")
		}
		return DefaultArtifact()
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		logger.WithError(err).WithField("path", path).Warn("Failed to parse weights file, using defaults")
		return DefaultArtifact()
	}
	if err := requireWeightKeys(data); err != nil {
		logger.WithError(err).WithField("path", path).Warn("Malformed weights file, using defaults")
		return DefaultArtifact()
	}

	w := a.Weights()
	if !w.Valid() {
		normalized := w.Normalize()
		logger.WithFields(logrus.Fields{
			"path":       path,
			"retinal":    w.Retinal,
			"lifestyle":  w.Lifestyle,
			"normalized": normalized,
		}).Warn("Loaded weights do not sum to one, renormalizing")
		a.RetinalWeight, a.LifestyleWeight = normalized.Retinal, normalized.Lifestyle
	}
	if a.Constraint == "" {
		a.Constraint = weightConstraint
	}
	a.Loaded = true

	logger.WithFields(logrus.Fields{
		"path":      path,
		"retinal":   a.RetinalWeight,
		"lifestyle": a.LifestyleWeight,
		"method":    a.Method,
	}).Info("Loaded fusion weights")
	return &a
}

// requireWeightKeys rejects documents missing either weight. A zero value
// decoded from an absent key would otherwise drop that modality.
func requireWeightKeys(data []byte) error {
	var keys struct {
		Retinal   *float64 `json:"retinal_weight"`
		Lifestyle *float64 `json:"lifestyle_weight"`
	}
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	if keys.Retinal == nil {
		return fmt.Errorf("missing retinal_weight")
	}
	if keys.Lifestyle == nil {
		return fmt.Errorf("missing lifestyle_weight")
	}
	return nil
}

// Load restores an optimizer from a weight artifact, including its best loss
// and history tail.
func Load(logger *logrus.Logger, cfg Config, path string) *Optimizer {
	a := LoadArtifact(logger, path)
	o := New(logger, cfg, a.Weights())
	if a.BestLoss != nil {
		o.bestLoss = *a.BestLoss
	}
	o.history = append(o.history, a.TrainingHistory...)
	if a.Method != "" {
		o.method = a.Method
	}
	return o
}
