package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/diabetes-risk-fusion/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

type MockRetinalClassifier struct {
	mock.Mock
}

func (m *MockRetinalClassifier) Analyze(ctx context.Context, input domain.RetinalInput) (*domain.RetinalResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RetinalResult), args.Error(1)
}

type MockLifestyleClassifier struct {
	mock.Mock
}

func (m *MockLifestyleClassifier) Predict(ctx context.Context, input domain.LifestyleInput) (*domain.LifestyleResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LifestyleResult), args.Error(1)
}

type MockTextGenerator struct {
	mock.Mock
}

func (m *MockTextGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type MockAdviceGenerator struct {
	mock.Mock
}

func (m *MockAdviceGenerator) GenerateAdvice(ctx context.Context, req domain.AdviceRequest) (*domain.Advice, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Advice), args.Error(1)
}

type MockAnalysisRepository struct {
	mock.Mock
}

func (m *MockAnalysisRepository) SaveAnalysis(ctx context.Context, result *domain.AnalysisResult) error {
	return m.Called(ctx, result).Error(0)
}

func (m *MockAnalysisRepository) GetAnalysis(ctx context.Context, id string) (*domain.AnalysisResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnalysisResult), args.Error(1)
}

func (m *MockAnalysisRepository) ListRecent(ctx context.Context, subjectID string, limit int) ([]*domain.AnalysisResult, error) {
	args := m.Called(ctx, subjectID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AnalysisResult), args.Error(1)
}

// mapCache is an in-memory AdviceCache for tests.
type mapCache struct {
	entries map[string]*domain.Advice
	sets    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]*domain.Advice{}}
}

func (c *mapCache) GetAdvice(_ context.Context, key string) (*domain.Advice, bool, error) {
	a, ok := c.entries[key]
	return a, ok, nil
}

func (c *mapCache) SetAdvice(_ context.Context, key string, advice *domain.Advice, _ time.Duration) error {
	c.entries[key] = advice
	c.sets++
	return nil
}

// purgeableMapCache also implements InvalidatingCache.
type purgeableMapCache struct {
	*mapCache
	err error
}

func (c *purgeableMapCache) InvalidateAll(_ context.Context) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n := len(c.entries)
	c.entries = map[string]*domain.Advice{}
	return n, nil
}
