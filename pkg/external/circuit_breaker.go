package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/diabetes-risk-fusion/internal/domain"
)

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests  uint32        `json:"max_requests"`
	Interval     time.Duration `json:"interval"`
	Timeout      time.Duration `json:"timeout"`
	MinRequests  uint32        `json:"min_requests"`
	FailureRatio float64       `json:"failure_ratio"`
}

// DefaultCircuitBreakerConfig trips after 60% failures over at least 3 requests.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:  5,
		Interval:     30 * time.Second,
		Timeout:      60 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

// NewCircuitBreaker builds a named breaker that logs its state transitions.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}

// ResilientTextGenerator guards a text generator with a circuit breaker.
type ResilientTextGenerator struct {
	generator domain.TextGenerator
	breaker   *gobreaker.CircuitBreaker
}

// NewResilientTextGenerator wraps generator.
func NewResilientTextGenerator(generator domain.TextGenerator, cfg CircuitBreakerConfig, logger *logrus.Logger) *ResilientTextGenerator {
	return &ResilientTextGenerator{
		generator: generator,
		breaker:   NewCircuitBreaker("LLM", cfg, logger),
	}
}

// Generate implements domain.TextGenerator. While the breaker is open calls
// fail fast with an LLM_UNAVAILABLE service error.
func (r *ResilientTextGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.generator.Generate(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", domain.NewServiceError(domain.ErrCodeLLMUnavailable, "LLM circuit breaker open", err.Error(), "")
		}
		return "", fmt.Errorf("LLM generation failed: %w", err)
	}
	return result.(string), nil
}

// State returns the breaker state.
func (r *ResilientTextGenerator) State() gobreaker.State {
	return r.breaker.State()
}

// Counts returns the breaker's counters for the current interval.
func (r *ResilientTextGenerator) Counts() gobreaker.Counts {
	return r.breaker.Counts()
}
