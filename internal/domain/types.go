// Package domain contains the core value types for multimodal diabetes risk assessment:
// per-modality risk inputs, fusion weights, fused assessments, risk factors and what-if
// simulations.
//
// All types are plain values. Components that produce them (fusion engine, risk scorer,
// simulation engine) never retain request-scoped state between calls.
package domain

import (
	"errors"
)

// RiskLevel is the categorical bucket derived from a fused score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
	// RiskUnknown is only produced by orchestration fallbacks when no fused score exists.
	RiskUnknown RiskLevel = "unknown"
)

// Modality identifies an independent prediction source.
type Modality string

const (
	ModalityRetinal   Modality = "retinal"
	ModalityLifestyle Modality = "lifestyle"
)

// FusionMethod selects how two modality risks are combined.
type FusionMethod string

const (
	FusionWeightedAverage FusionMethod = "weighted_average"
	FusionMax             FusionMethod = "max"
	FusionMin             FusionMethod = "min"
	FusionGeometricMean   FusionMethod = "geometric_mean"
)

// Severity is the diabetic retinopathy severity label reported by the retinal classifier.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Priority is the follow-up urgency attached to a risk level.
type Priority string

const (
	PriorityRoutine  Priority = "routine"
	PriorityElevated Priority = "elevated"
	PriorityUrgent   Priority = "urgent"
	PriorityCritical Priority = "critical"
)

// Difficulty tiers for what-if interventions.
type Difficulty string

const (
	DifficultyEasyModerate Difficulty = "easy-moderate"
	DifficultyModerate     Difficulty = "moderate"
	DifficultyHard         Difficulty = "hard"
)

// Impact tiers for what-if interventions.
type Impact string

const (
	ImpactModerate     Impact = "moderate"
	ImpactModerateHigh Impact = "moderate-high"
	ImpactHigh         Impact = "high"
	ImpactVeryHigh     Impact = "very high"
)

// Sentinel errors shared across packages.
var (
	ErrNotFound           = errors.New("not found")
	ErrShapeMismatch      = errors.New("training arrays have mismatched lengths")
	ErrEmptyTrainingSet   = errors.New("training set is empty")
	ErrInvalidRiskLevel   = errors.New("invalid risk level")
	ErrInvalidFusion      = errors.New("invalid fusion method")
	ErrInvalidProbability = errors.New("probability must be within [0, 1]")
)

// IsValid reports whether the level is one of the known buckets.
func (l RiskLevel) IsValid() bool {
	switch l {
	case RiskLow, RiskModerate, RiskHigh, RiskVeryHigh, RiskUnknown:
		return true
	default:
		return false
	}
}

// String returns the string representation of the level.
func (l RiskLevel) String() string {
	return string(l)
}

// LogFields returns structured logging fields for the level.
func (l RiskLevel) LogFields() map[string]any {
	return map[string]any{
		"risk_level": string(l),
		"is_valid":   l.IsValid(),
	}
}

// IsValid reports whether the modality is known.
func (m Modality) IsValid() bool {
	return m == ModalityRetinal || m == ModalityLifestyle
}

// String returns the string representation of the modality.
func (m Modality) String() string {
	return string(m)
}

// IsValid reports whether the fusion method is supported.
func (f FusionMethod) IsValid() bool {
	switch f {
	case FusionWeightedAverage, FusionMax, FusionMin, FusionGeometricMean:
		return true
	default:
		return false
	}
}

// String returns the string representation of the method.
func (f FusionMethod) String() string {
	return string(f)
}

// ParseFusionMethod converts user input into a FusionMethod. Empty input
// yields the weighted average.
func ParseFusionMethod(s string) (FusionMethod, error) {
	if s == "" {
		return FusionWeightedAverage, nil
	}
	m := FusionMethod(s)
	if !m.IsValid() {
		return "", ErrInvalidFusion
	}
	return m, nil
}

// IsValid reports whether the severity is known.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityNone, SeverityMild, SeverityModerate, SeveritySevere:
		return true
	default:
		return false
	}
}

func (s Severity) String() string {
	return string(s)
}

func (p Priority) String() string {
	return string(p)
}

func (d Difficulty) String() string {
	return string(d)
}

func (i Impact) String() string {
	return string(i)
}
