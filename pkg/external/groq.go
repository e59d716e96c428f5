package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/diabetes-risk-fusion/internal/domain"
)

const (
	DefaultGroqURL   = "https://api.groq.com/openai/v1/chat/completions"
	DefaultGroqModel = "openai/gpt-oss-120b"

	groqSystemPrompt = "You are a diabetes prevention health advisor. Provide evidence-based, personalized advice. Be concise, actionable, and empathetic."
)

// GroqConfig configures the chat completion client
type GroqConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// RateLimit is requests per second; zero disables limiting.
	RateLimit  int
	RetryCount int
	RetryDelay time.Duration
}

// GroqConfigFromDomain fills unset fields with the service defaults.
func GroqConfigFromDomain(c domain.LLMConfig) GroqConfig {
	cfg := GroqConfig{
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.Timeout,
		RateLimit:   c.RateLimit,
		RetryCount:  c.RetryCount,
		RetryDelay:  time.Second,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGroqURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGroqModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return cfg
}

// GroqClient is an OpenAI-compatible chat completion client. It implements
// domain.TextGenerator.
type GroqClient struct {
	cfg        GroqConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewGroqClient creates a new Groq API client
func NewGroqClient(cfg GroqConfig, logger *logrus.Logger) *GroqClient {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	if cfg.APIKey == "" {
		logger.Warn("GROQ_API_KEY not set, advice will use default recommendations")
	} else {
		logger.WithField("model", cfg.Model).Info("Groq LLM client initialized")
	}

	return &GroqClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// Enabled reports whether an API key is configured.
func (c *GroqClient) Enabled() bool {
	return c.cfg.APIKey != ""
}

// Generate sends prompt as the user message. Without an API key it returns an
// empty string and no error, which callers treat as "use defaults".
func (c *GroqClient) Generate(ctx context.Context, prompt string) (string, error) {
	if !c.Enabled() {
		return "", nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			c.logger.WithError(lastErr).WithField("attempt", attempt).Warn("Retrying Groq request")
			select {
			case <-time.After(c.cfg.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.complete(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func (c *GroqClient) complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: groqSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", domain.NewServiceError(
			domain.ErrCodeLLMUnavailable,
			fmt.Sprintf("groq API request failed: %d", resp.StatusCode),
			string(detail),
			"",
		)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode groq response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("groq response contained no choices")
	}

	text := parsed.Choices[0].Message.Content
	c.logger.WithField("chars", len(text)).Debug("Groq completion received")
	return text, nil
}
