package simulation

import (
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diabetes-risk-fusion/internal/domain"
)

func newTestEngine() *Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return NewEngine(logger)
}

func names(sims []domain.Simulation) []string {
	out := make([]string, len(sims))
	for i, s := range sims {
		out[i] = s.Intervention
	}
	return out
}

func TestSimulate_InclusionRules(t *testing.T) {
	tests := []struct {
		name    string
		profile domain.LifestyleProfile
		want    []string
	}{
		{
			name:    "empty profile",
			profile: domain.LifestyleProfile{},
			want:    []string{IncreasedActivity, HealthyDiet, Combined},
		},
		{
			name: "all conditions met",
			profile: domain.LifestyleProfile{
				BMI:              domain.Float64(32),
				PhysicalActivity: domain.Float64(30),
				SleepHours:       domain.Float64(5.5),
				Smoking:          true,
			},
			want: []string{WeightLoss, IncreasedActivity, ImprovedSleep, HealthyDiet, SmokingCessation, Combined},
		},
		{
			name: "healthy",
			profile: domain.LifestyleProfile{
				BMI:              domain.Float64(25),
				PhysicalActivity: domain.Float64(150),
				SleepHours:       domain.Float64(7),
			},
			want: []string{HealthyDiet, Combined},
		},
	}

	e := newTestEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := e.Simulate(0.6, tt.profile, nil)
			assert.Equal(t, tt.want, names(report.Simulations))
		})
	}
}

func TestSimulate_Content(t *testing.T) {
	e := newTestEngine()
	report := e.Simulate(0.6, domain.LifestyleProfile{
		BMI:              domain.Float64(30),
		PhysicalActivity: domain.Float64(45),
		SleepHours:       domain.Float64(6),
		Smoking:          true,
	}, nil)
	require.Len(t, report.Simulations, 6)

	byName := map[string]domain.Simulation{}
	for _, s := range report.Simulations {
		byName[s.Intervention] = s
	}

	assert.Equal(t, "Reduce BMI from 30.0 to 27.9 (7% reduction)", byName[WeightLoss].Description)
	assert.Equal(t, "Increase weekly exercise from 45 to 150 minutes", byName[IncreasedActivity].Description)
	assert.Equal(t, "Increase sleep from 6 to 7.5 hours per night", byName[ImprovedSleep].Description)
	assert.Equal(t, domain.DifficultyEasyModerate, byName[ImprovedSleep].Difficulty)
	assert.Equal(t, domain.ImpactVeryHigh, byName[SmokingCessation].Impact)
	assert.Len(t, byName[HealthyDiet].ActionItems, 5)
	assert.Len(t, byName[Combined].ActionItems, 7)
	assert.Equal(t, "Best outcomes achieved with gradual, sustainable changes", byName[Combined].Note)

	assert.InDelta(t, 0.45, byName[WeightLoss].ProjectedRisk, 1e-9)
	assert.InDelta(t, 25, byName[WeightLoss].RiskReductionPercent, 1e-9)
	assert.InDelta(t, 0.25, byName[Combined].ProjectedRisk, 1e-9)

	require.NotNil(t, report.BestScenario)
	assert.Equal(t, Combined, report.BestScenario.Intervention)
}

func TestSimulate_MonotonicReduction(t *testing.T) {
	e := newTestEngine()
	profile := domain.LifestyleProfile{
		BMI:              domain.Float64(35),
		PhysicalActivity: domain.Float64(0),
		SleepHours:       domain.Float64(4),
		Smoking:          true,
	}

	for _, risk := range []float64{0, 0.05, 0.1, 0.2, 0.35, 0.5, 0.75, 1} {
		report := e.Simulate(risk, profile, nil)
		for _, s := range report.Simulations {
			assert.LessOrEqual(t, s.ProjectedRisk, s.CurrentRisk)
			assert.GreaterOrEqual(t, s.ProjectedRisk, 0.0)
			assert.GreaterOrEqual(t, s.RiskReductionPercent, 0.0)
			assert.LessOrEqual(t, s.RiskReductionPercent, 100.0)
		}
	}
}

func TestSimulate_ZeroRiskGuard(t *testing.T) {
	e := newTestEngine()
	report := e.Simulate(0, domain.LifestyleProfile{BMI: domain.Float64(31), Smoking: true}, nil)

	require.NotEmpty(t, report.Simulations)
	for _, s := range report.Simulations {
		assert.Zero(t, s.ProjectedRisk)
		assert.Zero(t, s.RiskReductionPercent)
		assert.False(t, math.IsNaN(s.RiskReductionPercent))
	}
}

func TestSimulate_ClampsCurrentRisk(t *testing.T) {
	e := newTestEngine()

	report := e.Simulate(1.4, domain.LifestyleProfile{}, nil)
	assert.Equal(t, 1.0, report.CurrentRisk)

	report = e.Simulate(math.NaN(), domain.LifestyleProfile{}, nil)
	assert.Equal(t, 0.0, report.CurrentRisk)
}

func TestBestScenario(t *testing.T) {
	order := []string{WeightLoss, IncreasedActivity, ImprovedSleep, HealthyDiet, SmokingCessation, Combined}
	projected := []float64{0.50, 0.35, 0.42, 0.38, 0.32, 0.15}

	sims := make([]domain.Simulation, len(order))
	for i := range order {
		sims[i] = domain.Simulation{Intervention: order[i], CurrentRisk: 0.65, ProjectedRisk: projected[i]}
	}

	best := BestScenario(sims)
	require.NotNil(t, best)
	assert.Equal(t, "Combined interventions", best.Intervention)
	assert.Equal(t, 0.15, best.ProjectedRisk)

	t.Run("ties go to the first", func(t *testing.T) {
		tied := []domain.Simulation{
			{Intervention: "a", ProjectedRisk: 0},
			{Intervention: "b", ProjectedRisk: 0},
		}
		assert.Equal(t, "a", BestScenario(tied).Intervention)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, BestScenario(nil))
	})
}

func TestReductionPercent(t *testing.T) {
	assert.Zero(t, ReductionPercent(0, 0))
	assert.Zero(t, ReductionPercent(-0.1, 0))
	assert.InDelta(t, 50, ReductionPercent(0.4, 0.2), 1e-9)
	assert.Equal(t, 0.0, ProjectRisk(0.1, 0.35))
	assert.InDelta(t, 0.05, ProjectRisk(0.2, 0.15), 1e-12)
}
