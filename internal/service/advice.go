package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/diabetes-risk-fusion/internal/domain"
)

const (
	maxRecommendations = 5
	maxPriorityActions = 3
	maxPreventiveTips  = 3
	minItemLength      = 20

	defaultExplanation = "Based on your risk assessment, here are personalized recommendations."

	AdviceSourceLLM     = "llm"
	AdviceSourceDefault = "default"
)

var defaultRecommendations = []string{
	"Maintain a healthy diet rich in vegetables, whole grains, and lean proteins",
	"Engage in at least 150 minutes of moderate physical activity per week",
	"Monitor your blood glucose levels regularly",
	"Get adequate sleep (7-9 hours per night)",
	"Schedule regular check-ups with your healthcare provider",
}

// AdviceCache stores generated advice keyed by prompt hash.
type AdviceCache interface {
	GetAdvice(ctx context.Context, key string) (*domain.Advice, bool, error)
	SetAdvice(ctx context.Context, key string, advice *domain.Advice, ttl time.Duration) error
}

// InvalidatingCache is an AdviceCache tier that can drop all of its entries.
type InvalidatingCache interface {
	InvalidateAll(ctx context.Context) (int, error)
}

// AdviceService implements domain.AdviceGenerator on top of a text generator,
// falling back to rule-based recommendations when generation fails.
type AdviceService struct {
	logger    *logrus.Logger
	generator domain.TextGenerator
	caches    []AdviceCache
	ttl       time.Duration
}

// NewAdviceService creates an advice service. generator may be nil, in which
// case only default recommendations are produced. Caches are consulted in order.
func NewAdviceService(logger *logrus.Logger, generator domain.TextGenerator, ttl time.Duration, caches ...AdviceCache) *AdviceService {
	return &AdviceService{
		logger:    logger,
		generator: generator,
		caches:    caches,
		ttl:       ttl,
	}
}

// GenerateAdvice implements domain.AdviceGenerator. It does not fail on
// generator errors; those produce default advice instead.
func (s *AdviceService) GenerateAdvice(ctx context.Context, req domain.AdviceRequest) (*domain.Advice, error) {
	prompt := BuildAdvicePrompt(req)
	key := promptKey(prompt)

	if advice := s.lookup(ctx, key); advice != nil {
		s.logger.WithField("key", key[:12]).Debug("Advice cache hit")
		return advice, nil
	}

	var response string
	if s.generator != nil {
		text, err := s.generator.Generate(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.WithError(err).Warn("LLM generation failed, using defaults")
		} else {
			response = text
		}
	}

	advice := ParseAdvice(response, req.RiskFactors)

	s.logger.WithFields(logrus.Fields{
		"risk_score":      req.RiskScore,
		"source":          advice.Source,
		"recommendations": len(advice.Recommendations),
	}).Info("Advice generated")

	if advice.Source == AdviceSourceLLM {
		s.store(ctx, key, advice)
	}
	return advice, nil
}

// ExplainSimulation asks the generator to explain one what-if scenario.
// It returns an empty string when no generator is configured or the current
// risk is zero.
func (s *AdviceService) ExplainSimulation(ctx context.Context, sim domain.Simulation) (string, error) {
	if s.generator == nil || sim.CurrentRisk <= 0 {
		return "", nil
	}
	text, err := s.generator.Generate(ctx, BuildSimulationPrompt(sim))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// ExplainBestScenario attaches a generated explanation to the report's best
// scenario and to the matching entry in Simulations. Generator failures are
// logged and leave the report unchanged; only context errors are returned.
func (s *AdviceService) ExplainBestScenario(ctx context.Context, report *domain.SimulationReport) error {
	if report == nil || report.BestScenario == nil {
		return nil
	}
	text, err := s.ExplainSimulation(ctx, *report.BestScenario)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.WithError(err).Warn("Simulation explanation failed")
		return nil
	}
	if text == "" {
		return nil
	}

	report.BestScenario.Explanation = text
	for i := range report.Simulations {
		if report.Simulations[i].Intervention == report.BestScenario.Intervention {
			report.Simulations[i].Explanation = text
			break
		}
	}
	return nil
}

// InvalidateCaches empties every cache tier that supports it and returns the
// number of entries removed.
func (s *AdviceService) InvalidateCaches(ctx context.Context) (int, error) {
	var removed int
	for _, c := range s.caches {
		ic, ok := c.(InvalidatingCache)
		if !ok {
			continue
		}
		n, err := ic.InvalidateAll(ctx)
		removed += n
		if err != nil {
			return removed, fmt.Errorf("failed to invalidate advice cache: %w", err)
		}
	}
	s.logger.WithField("removed", removed).Info("Advice caches invalidated")
	return removed, nil
}

func (s *AdviceService) lookup(ctx context.Context, key string) *domain.Advice {
	for i, c := range s.caches {
		advice, found, err := c.GetAdvice(ctx, key)
		if err != nil {
			s.logger.WithError(err).Warn("Advice cache read failed")
			continue
		}
		if found {
			// Backfill faster tiers.
			for _, earlier := range s.caches[:i] {
				_ = earlier.SetAdvice(ctx, key, advice, s.ttl)
			}
			return advice
		}
	}
	return nil
}

func (s *AdviceService) store(ctx context.Context, key string, advice *domain.Advice) {
	for _, c := range s.caches {
		if err := c.SetAdvice(ctx, key, advice, s.ttl); err != nil {
			s.logger.WithError(err).Warn("Failed to cache advice")
		}
	}
}

func promptKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

type adviceSection int

const (
	sectionNone adviceSection = iota
	sectionPriority
	sectionRecommendations
	sectionExplanation
	sectionTips
)

// ParseAdvice extracts structured advice from a markdown-ish LLM response.
// Headers (lines starting with '#', '|' or '**') switch sections; list items
// are kept when longer than 20 characters after stripping bullets and
// numbering. Missing recommendations are replaced by defaults tailored to the
// risk factors.
func ParseAdvice(response string, factors []domain.RiskFactor) *domain.Advice {
	var (
		recommendations []string
		priority        []string
		tips            []string
		explanation     []string
		section         = sectionNone
	)

	for _, raw := range strings.Split(response, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "|") || strings.HasPrefix(line, "**") {
			lower := strings.ToLower(line)
			switch {
			case strings.Contains(lower, "priority") || strings.Contains(lower, "action"):
				section = sectionPriority
			case strings.Contains(lower, "recommendation"):
				section = sectionRecommendations
			case strings.Contains(lower, "explanation"):
				section = sectionExplanation
			case strings.Contains(lower, "tip") || strings.Contains(lower, "prevent"):
				section = sectionTips
			}
			continue
		}

		switch section {
		case sectionRecommendations:
			if item, ok := listItem(line); ok {
				recommendations = append(recommendations, item)
			}
		case sectionPriority:
			if item, ok := listItem(line); ok {
				priority = append(priority, item)
			}
		case sectionTips:
			if item, ok := listItem(line); ok {
				tips = append(tips, item)
			}
		case sectionExplanation:
			if !isBullet(line) && !strings.HasPrefix(line, "#") {
				explanation = append(explanation, line)
			}
		}
	}

	source := AdviceSourceLLM
	if len(recommendations) == 0 {
		recommendations = DefaultRecommendations(factors)
		source = AdviceSourceDefault
	}

	text := strings.Join(explanation, " ")
	if text == "" {
		text = defaultExplanation
	}

	return &domain.Advice{
		Recommendations: limit(recommendations, maxRecommendations),
		PriorityActions: limit(priority, maxPriorityActions),
		Explanation:     text,
		PreventiveTips:  limit(tips, maxPreventiveTips),
		Source:          source,
	}
}

// DefaultRecommendations returns the fixed recommendation list, with
// factor-specific advice moved to the front.
func DefaultRecommendations(factors []domain.RiskFactor) []string {
	recs := append([]string(nil), defaultRecommendations...)
	for _, f := range factors {
		lower := strings.ToLower(f.Factor)
		var extra string
		switch {
		case strings.Contains(f.Factor, "BMI"):
			extra = "Work towards achieving a healthy BMI through balanced diet and exercise"
		case strings.Contains(lower, "sleep"):
			extra = "Improve sleep quality by maintaining a consistent sleep schedule"
		case strings.Contains(lower, "physical activity"):
			extra = "Gradually increase daily physical activity, starting with walking"
		default:
			continue
		}
		recs = append([]string{extra}, recs...)
	}
	return limit(recs, maxRecommendations)
}

func isBullet(line string) bool {
	return strings.HasPrefix(line, "-") || strings.HasPrefix(line, "•") || strings.HasPrefix(line, "*")
}

// listItem reports whether line is a bullet or numbered item worth keeping and
// returns it without its marker.
func listItem(line string) (string, bool) {
	first, _ := utf8.DecodeRuneInString(line)
	if !isBullet(line) && !(utf8.RuneCountInString(line) > 10 && unicode.IsDigit(first)) {
		return "", false
	}
	clean := strings.TrimSpace(strings.TrimLeft(line, "-•*0123456789. "))
	if utf8.RuneCountInString(clean) <= minItemLength {
		return "", false
	}
	return clean, true
}

func limit(items []string, n int) []string {
	if items == nil {
		return []string{}
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}
