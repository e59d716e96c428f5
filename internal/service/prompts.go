package service

import (
	"fmt"
	"strings"

	"github.com/diabetes-risk-fusion/internal/domain"
)

// adviceRiskLevel uses coarser bands than the scorer; the prompt only
// distinguishes three levels.
func adviceRiskLevel(score float64) string {
	switch {
	case score < 0.3:
		return "low"
	case score < 0.6:
		return "moderate"
	default:
		return "high"
	}
}

// BuildAdvicePrompt renders the advice request for a text generator.
func BuildAdvicePrompt(req domain.AdviceRequest) string {
	level := adviceRiskLevel(req.RiskScore)

	var b strings.Builder
	b.WriteString("You are a diabetes prevention expert. Based on the following assessment, provide personalized, actionable advice.\n\n")
	b.WriteString("**Risk Assessment:**\n")
	fmt.Fprintf(&b, "- Overall Risk Score: %.2f (%s risk)\n", req.RiskScore, level)
	fmt.Fprintf(&b, "- Risk Level: %s\n\n", strings.ToUpper(level))

	b.WriteString("**Identified Risk Factors:**\n")
	for i, f := range req.RiskFactors {
		if i == 5 {
			break
		}
		source := string(f.Source)
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, strings.ToUpper(source), f.Factor)
	}

	b.WriteString("\n**Current Lifestyle:**\n")
	p := req.Lifestyle
	if v := domain.ValueOr(p.BMI, 0); v != 0 {
		fmt.Fprintf(&b, "- BMI: %g\n", v)
	}
	if p.PhysicalActivity != nil {
		fmt.Fprintf(&b, "- Physical Activity: %g min/week\n", *p.PhysicalActivity)
	}
	if v := domain.ValueOr(p.SleepHours, 0); v != 0 {
		fmt.Fprintf(&b, "- Sleep: %g hours/night\n", v)
	}
	if v := domain.ValueOr(p.Age, 0); v != 0 {
		fmt.Fprintf(&b, "- Age: %g years\n", v)
	}

	if req.RetinalFindings != nil && req.RetinalFindings.TotalFeaturesDetected > 0 {
		b.WriteString("\n**Retinal Findings:** Diabetic retinopathy signs detected\n")
	}

	var focus []string
	for _, f := range req.RiskFactors {
		if f.Source == domain.ModalityLifestyle && f.Modifiable {
			focus = append(focus, f.Factor)
		}
		if len(focus) == 3 {
			break
		}
	}

	b.WriteString(`
**Please provide personalized recommendations in this EXACT format:**

## Personalized Recommendations

List 5-7 complete, actionable recommendations. Each recommendation should be ONE complete statement including the action AND why it matters. Format as a simple numbered list:

1. [Complete recommendation with action and brief reason in one sentence]
2. [Complete recommendation with action and brief reason in one sentence]
...

**Important formatting rules:**
- Each recommendation must be ONE complete sentence
- Do NOT split "what" and "why" into separate lines
- Do NOT use sub-bullets or nested formatting
- Do NOT use ** for bold inside recommendations
- Just clean, complete sentences

`)
	fmt.Fprintf(&b, "Focus on modifiable factors: %s\n\n", strings.Join(focus, ", "))
	b.WriteString("Make it evidence-based, practical, and encouraging.\n")
	return b.String()
}

// BuildSimulationPrompt asks for a short explanation of one what-if scenario.
func BuildSimulationPrompt(sim domain.Simulation) string {
	return fmt.Sprintf(`Explain in 2-3 sentences why %s can reduce diabetes risk from %.2f to %.2f (a %.1f%% reduction).

Focus on:
- The biological/physiological mechanism
- Realistic timeline for seeing benefits
- Additional health benefits beyond diabetes prevention

Keep the explanation simple and motivating.`,
		sim.Intervention, sim.CurrentRisk, sim.ProjectedRisk, sim.RiskReductionPercent)
}
