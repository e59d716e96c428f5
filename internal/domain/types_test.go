package domain

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskLevelIsValid(t *testing.T) {
	for _, l := range []RiskLevel{RiskLow, RiskModerate, RiskHigh, RiskVeryHigh, RiskUnknown} {
		assert.True(t, l.IsValid(), l.String())
	}
	assert.False(t, RiskLevel("extreme").IsValid())
	assert.Equal(t, "very_high", RiskVeryHigh.LogFields()["risk_level"])
}

func TestParseFusionMethod(t *testing.T) {
	tests := []struct {
		input   string
		want    FusionMethod
		wantErr bool
	}{
		{"", FusionWeightedAverage, false},
		{"weighted_average", FusionWeightedAverage, false},
		{"max", FusionMax, false},
		{"min", FusionMin, false},
		{"geometric_mean", FusionGeometricMean, false},
		{"learned", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFusionMethod(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFusion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRiskInput(t *testing.T) {
	tests := []struct {
		name       string
		risk, conf float64
		want       RiskInput
	}{
		{"in range", 0.4, 0.8, RiskInput{0.4, 0.8}},
		{"above one", 1.3, 1.01, RiskInput{1, 1}},
		{"below zero", -0.2, -1, RiskInput{0, 0}},
		{"missing confidence", 0.6, math.NaN(), RiskInput{0.6, 0.5}},
		{"nan risk", math.NaN(), 0.5, RiskInput{0, 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewRiskInput(tt.risk, tt.conf))
		})
	}

	assert.Equal(t, RiskInput{0.5, 0.5}, NeutralRiskInput())
}

func TestFusionWeights(t *testing.T) {
	t.Run("default is valid", func(t *testing.T) {
		w := DefaultFusionWeights()
		assert.True(t, w.Valid())
		assert.InDelta(t, 1.0, w.Sum(), 1e-12)
	})

	t.Run("tolerance", func(t *testing.T) {
		assert.True(t, FusionWeights{0.7, 0.3005}.Valid())
		assert.False(t, FusionWeights{0.7, 0.31}.Valid())
		assert.False(t, FusionWeights{1.2, -0.2}.Valid())
	})

	t.Run("normalize rescales", func(t *testing.T) {
		w := FusionWeights{0.8, 0.4}.Normalize()
		assert.InDelta(t, 2.0/3.0, w.Retinal, 1e-9)
		assert.InDelta(t, 1.0/3.0, w.Lifestyle, 1e-9)
		assert.True(t, w.Valid())
	})

	t.Run("normalize rejects degenerate pairs", func(t *testing.T) {
		assert.Equal(t, DefaultFusionWeights(), FusionWeights{0, 0}.Normalize())
		assert.Equal(t, DefaultFusionWeights(), FusionWeights{-1, 2}.Normalize())
		assert.Equal(t, DefaultFusionWeights(), FusionWeights{math.NaN(), 1}.Normalize())
	})
}

func TestNewRetinalFindings(t *testing.T) {
	f := NewRetinalFindings(true, false, true, false)
	assert.Equal(t, 2, f.TotalFeaturesDetected)

	none := NewRetinalFindings(false, false, false, false)
	assert.Equal(t, 0, none.TotalFeaturesDetected)
}

func TestLifestyleProfile(t *testing.T) {
	var p LifestyleProfile
	assert.True(t, p.IsEmpty())
	assert.Equal(t, 8.0, ValueOr(p.SleepHours, 8))

	p.BMI = Float64(31.2)
	assert.False(t, p.IsEmpty())
	assert.Equal(t, 31.2, ValueOr(p.BMI, 0))
	assert.Equal(t, 0.0, ValueOr(Float64(math.NaN()), 0))
}

func TestTrainingSet(t *testing.T) {
	t.Run("shape mismatch is fatal", func(t *testing.T) {
		s := TrainingSet{YTrue: []float64{1, 0}, RetinalPreds: []float64{0.9}, LifestylePreds: []float64{0.8, 0.2}}
		err := s.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrShapeMismatch))
	})

	t.Run("empty", func(t *testing.T) {
		assert.ErrorIs(t, TrainingSet{}.Validate(), ErrEmptyTrainingSet)
	})

	t.Run("folds cover every example", func(t *testing.T) {
		var s TrainingSet
		for i := 0; i < 10; i++ {
			s.Add(float64(i%2), 0.5, 0.5)
		}
		folds, err := s.Folds(3)
		require.NoError(t, err)
		require.Len(t, folds, 3)

		total := 0
		for _, f := range folds {
			require.NoError(t, f.Validate())
			total += f.Len()
		}
		assert.Equal(t, 10, total)
		assert.Equal(t, 4, folds[2].Len())
	})

	t.Run("too many folds", func(t *testing.T) {
		var s TrainingSet
		s.Add(1, 1, 1)
		_, err := s.Folds(2)
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
	})
}

func TestDecodeMissingConfidence(t *testing.T) {
	tests := []struct {
		name string
		data string
		want float64
	}{
		{"absent", `{"risk":0.4}`, NeutralConfidence},
		{"null", `{"risk":0.4,"confidence":null}`, NeutralConfidence},
		{"zero", `{"risk":0.4,"confidence":0}`, 0},
		{"set", `{"risk":0.4,"confidence":0.9}`, 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in RiskInput
			require.NoError(t, json.Unmarshal([]byte(tt.data), &in))
			assert.Equal(t, 0.4, in.Risk)
			assert.Equal(t, tt.want, in.Confidence)
		})
	}

	var retinal RetinalPrediction
	require.NoError(t, json.Unmarshal([]byte(`{"dr_probability":0.7,"microaneurysms":true}`), &retinal))
	assert.Equal(t, NeutralConfidence, retinal.Confidence)
	assert.True(t, retinal.Microaneurysms)

	var lifestyle LifestylePrediction
	require.NoError(t, json.Unmarshal([]byte(`{"probability":0.6,"feature_importance":{"bmi":0.3}}`), &lifestyle))
	assert.Equal(t, NeutralConfidence, lifestyle.Confidence)
	assert.Equal(t, 0.3, lifestyle.FeatureImportance["bmi"])

	assert.Error(t, json.Unmarshal([]byte(`{"risk":"high"}`), &RiskInput{}))
}
