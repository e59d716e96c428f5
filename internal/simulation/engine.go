// Package simulation projects diabetes risk under lifestyle interventions.
//
// Each intervention carries a fixed risk reduction. The combined scenario uses
// its own saturating reduction rather than the sum of the individual ones.
package simulation

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/diabetes-risk-fusion/internal/domain"
)

// Intervention names, in evaluation order.
const (
	WeightLoss        = "Weight Loss"
	IncreasedActivity = "Increased Physical Activity"
	ImprovedSleep     = "Improved Sleep Quality"
	HealthyDiet       = "Healthy Diet Adoption"
	SmokingCessation  = "Smoking Cessation"
	Combined          = "Combined interventions"
)

// Targets and inclusion thresholds.
const (
	OverweightBMI         = 25.0
	WeightLossFactor      = 0.93
	ActivityTargetMinutes = 150.0
	SleepThresholdHours   = 7.0
	SleepTargetHours      = 7.5
	defaultSleepHours     = 8.0
)

// intervention is the static definition of one what-if scenario.
type intervention struct {
	name        string
	reduction   float64
	applies     func(p domain.LifestyleProfile) bool
	describe    func(p domain.LifestyleProfile) string
	actionItems []string
	timeframe   string
	difficulty  domain.Difficulty
	impact      domain.Impact
	note        string
}

func bmi(p domain.LifestyleProfile) float64 { return domain.ValueOr(p.BMI, 0) }
func activity(p domain.LifestyleProfile) float64 { return domain.ValueOr(p.PhysicalActivity, 0) }
func sleep(p domain.LifestyleProfile) float64 { return domain.ValueOr(p.SleepHours, defaultSleepHours) }

func always(domain.LifestyleProfile) bool { return true }

func fixed(text string) func(domain.LifestyleProfile) string {
	return func(domain.LifestyleProfile) string { return text }
}

var interventions = []intervention{
	{
		name:      WeightLoss,
		reduction: 0.15,
		applies:   func(p domain.LifestyleProfile) bool { return bmi(p) > OverweightBMI },
		describe: func(p domain.LifestyleProfile) string {
			return fmt.Sprintf("Reduce BMI from %.1f to %.1f (7%% reduction)", bmi(p), bmi(p)*WeightLossFactor)
		},
		actionItems: []string{
			"Create a caloric deficit of 500 calories/day",
			"Combine dietary changes with increased physical activity",
			"Set realistic goal of 1-2 lbs weight loss per week",
			"Track progress weekly",
		},
		timeframe:  "3-6 months",
		difficulty: domain.DifficultyModerate,
		impact:     domain.ImpactHigh,
	},
	{
		name:      IncreasedActivity,
		reduction: 0.10,
		applies:   func(p domain.LifestyleProfile) bool { return activity(p) < ActivityTargetMinutes },
		describe: func(p domain.LifestyleProfile) string {
			return fmt.Sprintf("Increase weekly exercise from %g to %g minutes", activity(p), ActivityTargetMinutes)
		},
		actionItems: []string{
			"Start with 30 minutes of brisk walking 5 days/week",
			"Gradually increase intensity (cycling, swimming, jogging)",
			"Include strength training 2 days/week",
			"Use fitness tracker to monitor progress",
		},
		timeframe:  "2-3 months",
		difficulty: domain.DifficultyModerate,
		impact:     domain.ImpactModerateHigh,
	},
	{
		name:      ImprovedSleep,
		reduction: 0.08,
		applies:   func(p domain.LifestyleProfile) bool { return sleep(p) < SleepThresholdHours },
		describe: func(p domain.LifestyleProfile) string {
			return fmt.Sprintf("Increase sleep from %g to %g hours per night", sleep(p), SleepTargetHours)
		},
		actionItems: []string{
			"Establish consistent sleep schedule (same bedtime/wake time)",
			"Create relaxing bedtime routine",
			"Limit screen time 1 hour before bed",
			"Optimize sleep environment (dark, cool, quiet)",
		},
		timeframe:  "1-2 months",
		difficulty: domain.DifficultyEasyModerate,
		impact:     domain.ImpactModerate,
	},
	{
		name:      HealthyDiet,
		reduction: 0.12,
		applies:   always,
		describe:  fixed("Adopt Mediterranean-style eating pattern"),
		actionItems: []string{
			"Increase vegetables and fruits to 5+ servings/day",
			"Choose whole grains over refined carbohydrates",
			"Include healthy fats (olive oil, nuts, avocados)",
			"Limit processed foods and added sugars",
			"Reduce red meat consumption",
		},
		timeframe:  "3-4 months",
		difficulty: domain.DifficultyModerate,
		impact:     domain.ImpactHigh,
	},
	{
		name:      SmokingCessation,
		reduction: 0.18,
		applies:   func(p domain.LifestyleProfile) bool { return p.Smoking },
		describe:  fixed("Quit smoking completely"),
		actionItems: []string{
			"Consult healthcare provider for cessation support",
			"Consider nicotine replacement therapy",
			"Join smoking cessation program",
			"Identify and avoid triggers",
			"Build support system",
		},
		timeframe:  "6-12 months",
		difficulty: domain.DifficultyHard,
		impact:     domain.ImpactVeryHigh,
	},
	{
		name:      Combined,
		reduction: 0.35,
		applies:   always,
		describe:  fixed("Implement multiple healthy lifestyle changes simultaneously"),
		actionItems: []string{
			"Achieve and maintain healthy weight",
			"Meet physical activity guidelines (150+ min/week)",
			"Adopt Mediterranean diet pattern",
			"Ensure 7-9 hours quality sleep",
			"Quit smoking (if applicable)",
			"Manage stress through mindfulness/relaxation",
			"Regular health check-ups and monitoring",
		},
		timeframe:  "6-12 months",
		difficulty: domain.DifficultyHard,
		impact:     domain.ImpactVeryHigh,
		note:       "Best outcomes achieved with gradual, sustainable changes",
	},
}

// Engine generates what-if simulations. It keeps no per-request state.
type Engine struct {
	logger *logrus.Logger
}

// NewEngine creates a simulation engine.
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{logger: logger}
}

// Simulate evaluates every applicable intervention against currentRisk and
// selects the lowest projected risk as the best scenario. currentRisk is
// clamped to [0,1].
func (e *Engine) Simulate(currentRisk float64, profile domain.LifestyleProfile, factors []domain.RiskFactor) domain.SimulationReport {
	current := domain.Clamp01(currentRisk)

	sims := make([]domain.Simulation, 0, len(interventions))
	for _, iv := range interventions {
		if !iv.applies(profile) {
			continue
		}
		sims = append(sims, iv.project(current, profile))
	}

	report := domain.SimulationReport{
		CurrentRisk:  current,
		Simulations:  sims,
		BestScenario: BestScenario(sims),
	}

	fields := logrus.Fields{
		"current_risk": current,
		"simulations":  len(sims),
		"risk_factors": len(factors),
	}
	if report.BestScenario != nil {
		fields["best"] = report.BestScenario.Intervention
	}
	e.logger.WithFields(fields).Info("Generated simulations")

	return report
}

func (iv intervention) project(current float64, profile domain.LifestyleProfile) domain.Simulation {
	projected := ProjectRisk(current, iv.reduction)
	items := make([]string, len(iv.actionItems))
	copy(items, iv.actionItems)

	return domain.Simulation{
		Intervention:         iv.name,
		Description:          iv.describe(profile),
		ActionItems:          items,
		CurrentRisk:          current,
		ProjectedRisk:        projected,
		RiskReductionPercent: ReductionPercent(current, projected),
		Timeframe:            iv.timeframe,
		Difficulty:           iv.difficulty,
		Impact:               iv.impact,
		Note:                 iv.note,
	}
}

// ProjectRisk returns max(current - reduction, 0).
func ProjectRisk(current, reduction float64) float64 {
	if p := current - reduction; p > 0 {
		return p
	}
	return 0
}

// ReductionPercent returns the relative reduction in percent, or 0 when
// current is not positive.
func ReductionPercent(current, projected float64) float64 {
	if current <= 0 {
		return 0
	}
	return (current - projected) / current * 100
}

// BestScenario returns the simulation with the lowest projected risk. Ties go
// to the earliest entry. It returns nil for an empty list.
func BestScenario(sims []domain.Simulation) *domain.Simulation {
	if len(sims) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(sims); i++ {
		if sims[i].ProjectedRisk < sims[best].ProjectedRisk {
			best = i
		}
	}
	s := sims[best]
	return &s
}
