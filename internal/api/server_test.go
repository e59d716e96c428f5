package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/diabetes-risk-fusion/internal/cache"
	"github.com/diabetes-risk-fusion/internal/domain"
	"github.com/diabetes-risk-fusion/internal/fusion"
	"github.com/diabetes-risk-fusion/internal/optimizer"
	"github.com/diabetes-risk-fusion/internal/service"
	"github.com/diabetes-risk-fusion/internal/simulation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockAnalysisRepository struct {
	mock.Mock
}

func (m *MockAnalysisRepository) SaveAnalysis(ctx context.Context, result *domain.AnalysisResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
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

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func newTestServer(t *testing.T, repo domain.AnalysisRepository, cfg domain.ServerConfig) *Server {
	t.Helper()
	logger := testLogger()
	engine := fusion.NewEngine(logger, fusion.DefaultConfig(), domain.DefaultFusionWeights())
	orchestrator := service.NewOrchestrator(
		logger,
		service.NewPrecomputedRetinalClassifier(logger),
		service.NewPrecomputedLifestyleClassifier(logger),
		engine,
	)
	loss := 0.12
	deps := Dependencies{
		Orchestrator: orchestrator,
		Simulator:    simulation.NewEngine(logger),
		Repository:   repo,
		Artifact: &optimizer.Artifact{
			RetinalWeight:   0.5,
			LifestyleWeight: 0.5,
			BestLoss:        &loss,
			Method:          "bounded_optimized",
			Calibration:     "lifestyle_calibrated",
			Loaded:          true,
		},
	}
	return NewServer(cfg, deps, logger)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, domain.ServerConfig{})
	w := doJSON(t, s, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, Version, body["version"])
	components := body["components"].(map[string]any)
	assert.Equal(t, "disabled", components["repository"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAssess(t *testing.T) {
	s := newTestServer(t, nil, domain.ServerConfig{})

	req := service.AnalyzeRequest{
		SubjectID: "patient-7",
		Retinal:   domain.RetinalInput{Prediction: &domain.RetinalPrediction{DRProbability: 0.8, Confidence: 0.9, Microaneurysms: true}},
		Lifestyle: domain.LifestyleInput{
			Profile:    domain.LifestyleProfile{BMI: domain.Float64(32), Age: domain.Float64(50)},
			Prediction: &domain.LifestylePrediction{Probability: 0.85, Confidence: 0.8},
		},
		SkipAdvice: true,
	}
	w := doJSON(t, s, http.MethodPost, "/api/v1/assess", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	result := decode[domain.AnalysisResult](t, w)
	assert.Equal(t, service.StatusSuccess, result.Status)
	assert.Equal(t, "patient-7", result.SubjectID)
	assert.InDelta(t, 0.875, result.Assessment.FusedScore, 1e-9)
	assert.Equal(t, domain.RiskVeryHigh, result.Assessment.RiskLevel)
	assert.NotEmpty(t, result.Simulations.Simulations)

	t.Run("slightly out of range probability is clamped", func(t *testing.T) {
		edge := req
		edge.Lifestyle.Prediction = &domain.LifestylePrediction{Probability: 1.0000001, Confidence: 0.8}
		w := doJSON(t, s, http.MethodPost, "/api/v1/assess", edge)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		result := decode[domain.AnalysisResult](t, w)
		assert.Equal(t, 1.0, result.Lifestyle.RawProbability)
	})

	t.Run("missing confidence", func(t *testing.T) {
		body := map[string]any{
			"retinal": map[string]any{"prediction": map[string]any{"dr_probability": 0.8, "microaneurysms": true}},
			"lifestyle": map[string]any{
				"profile":    map[string]any{"bmi": 32, "age": 50},
				"prediction": map[string]any{"probability": 0.85},
			},
			"skip_advice": true,
		}
		w := doJSON(t, s, http.MethodPost, "/api/v1/assess", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		result := decode[domain.AnalysisResult](t, w)
		assert.Equal(t, domain.NeutralConfidence, result.Retinal.Confidence)
		assert.Equal(t, domain.NeutralConfidence, result.Lifestyle.Confidence)
	})

	t.Run("malformed body", func(t *testing.T) {
		httpReq := httptest.NewRequest(http.MethodPost, "/api/v1/assess", strings.NewReader("{not json"))
		httpReq.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httpReq)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestFuse(t *testing.T) {
	s := newTestServer(t, nil, domain.ServerConfig{})

	tests := []struct {
		name      string
		req       FuseRequest
		wantCode  int
		wantScore float64
		wantLevel domain.RiskLevel
	}{
		{
			name:      "engine weights",
			req:       FuseRequest{Retinal: domain.RiskInput{Risk: 0.8, Confidence: 0.9}, Lifestyle: domain.RiskInput{Risk: 0.4, Confidence: 0.6}},
			wantCode:  http.StatusOK,
			wantScore: 0.6,
			wantLevel: domain.RiskHigh,
		},
		{
			name: "explicit weights are normalized",
			req: FuseRequest{
				Retinal:   domain.RiskInput{Risk: 1, Confidence: 1},
				Lifestyle: domain.RiskInput{Risk: 0, Confidence: 1},
				Weights:   &domain.FusionWeights{Retinal: 3, Lifestyle: 1},
			},
			wantCode:  http.StatusOK,
			wantScore: 0.75,
			wantLevel: domain.RiskVeryHigh,
		},
		{
			name:      "max method",
			req:       FuseRequest{Retinal: domain.RiskInput{Risk: 0.2, Confidence: 1}, Lifestyle: domain.RiskInput{Risk: 0.35, Confidence: 1}, Method: "max"},
			wantCode:  http.StatusOK,
			wantScore: 0.35,
			wantLevel: domain.RiskModerate,
		},
		{
			name: "calibrated lifestyle",
			req: FuseRequest{
				Retinal:            domain.RiskInput{Risk: 0.2, Confidence: 1},
				Lifestyle:          domain.RiskInput{Risk: 0.4, Confidence: 1},
				CalibrateLifestyle: true,
			},
			wantCode:  http.StatusOK,
			wantScore: 0.1,
			wantLevel: domain.RiskLow,
		},
		{
			name:     "unknown method",
			req:      FuseRequest{Retinal: domain.RiskInput{Risk: 0.2, Confidence: 1}, Lifestyle: domain.RiskInput{Risk: 0.2, Confidence: 1}, Method: "median"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:      "negative risk is clamped",
			req:       FuseRequest{Retinal: domain.RiskInput{Risk: -0.1, Confidence: 1}, Lifestyle: domain.RiskInput{Risk: 0.2, Confidence: 1}},
			wantCode:  http.StatusOK,
			wantScore: 0.1,
			wantLevel: domain.RiskLow,
		},
		{
			name:      "risk just above one is clamped",
			req:       FuseRequest{Retinal: domain.RiskInput{Risk: 1.0000001, Confidence: 1.2}, Lifestyle: domain.RiskInput{Risk: 0.2, Confidence: 1}},
			wantCode:  http.StatusOK,
			wantScore: 0.6,
			wantLevel: domain.RiskHigh,
		},
		{
			name: "zero weights",
			req: FuseRequest{
				Retinal:   domain.RiskInput{Risk: 0.2, Confidence: 1},
				Lifestyle: domain.RiskInput{Risk: 0.2, Confidence: 1},
				Weights:   &domain.FusionWeights{},
			},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, s, http.MethodPost, "/api/v1/fuse", tt.req)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}
			resp := decode[FuseResponse](t, w)
			assert.InDelta(t, tt.wantScore, resp.FusedScore, 1e-9)
			assert.Equal(t, tt.wantLevel, resp.RiskLevel)
			assert.InDelta(t, 1.0, resp.Weights.Sum(), 1e-9)
		})
	}
}

func TestFuse_MissingConfidence(t *testing.T) {
	s := newTestServer(t, nil, domain.ServerConfig{})

	w := doJSON(t, s, http.MethodPost, "/api/v1/fuse", map[string]any{
		"retinal":   map[string]any{"risk": 0.8, "confidence": 0.9},
		"lifestyle": map[string]any{"risk": 0.4},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[FuseResponse](t, w)
	assert.InDelta(t, 0.6, resp.FusedScore, 1e-9)
	assert.InDelta(t, 0.92/1.4, resp.Uncertainty.Risk, 1e-9)
	assert.InDelta(t, 0.42, resp.Uncertainty.Confidence, 1e-9)
}

func TestSimulate(t *testing.T) {
	s := newTestServer(t, nil, domain.ServerConfig{})

	w := doJSON(t, s, http.MethodPost, "/api/v1/simulate", SimulateRequest{
		CurrentRisk: 0.6,
		Lifestyle:   domain.LifestyleProfile{BMI: domain.Float64(32), PhysicalActivity: domain.Float64(60)},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	report := decode[domain.SimulationReport](t, w)
	assert.InDelta(t, 0.6, report.CurrentRisk, 1e-12)
	assert.GreaterOrEqual(t, len(report.Simulations), 2)
	require.NotNil(t, report.BestScenario)
	assert.Equal(t, simulation.Combined, report.BestScenario.Intervention)

	w = doJSON(t, s, http.MethodPost, "/api/v1/simulate", SimulateRequest{CurrentRisk: 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCalibrate(t *testing.T) {
	s := newTestServer(t, nil, domain.ServerConfig{})

	w := doJSON(t, s, http.MethodPost, "/api/v1/calibrate", CalibrateRequest{Values: []float64{0.3, 0.55, 1.0}})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[CalibrateResponse](t, w)
	assert.InDeltaSlice(t, []float64{0, 0.25, 1}, resp.Calibrated, 1e-9)
	assert.Equal(t, 0.4, resp.Min)

	w = doJSON(t, s, http.MethodPost, "/api/v1/calibrate", CalibrateRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWeights(t *testing.T) {
	s := newTestServer(t, nil, domain.ServerConfig{})

	w := doJSON(t, s, http.MethodGet, "/api/v1/weights", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[WeightsResponse](t, w)
	assert.InDelta(t, 0.5, resp.Retinal, 1e-12)
	assert.InDelta(t, 0.5, resp.Lifestyle, 1e-12)
	assert.Equal(t, domain.FusionWeightedAverage, resp.FusionMethod)
	assert.Equal(t, "bounded_optimized", resp.Source)
	assert.True(t, resp.Loaded)
	require.NotNil(t, resp.BestLoss)
	assert.InDelta(t, 0.12, *resp.BestLoss, 1e-12)
}

func TestAnalyses(t *testing.T) {
	t.Run("history disabled", func(t *testing.T) {
		s := newTestServer(t, nil, domain.ServerConfig{})
		w := doJSON(t, s, http.MethodGet, "/api/v1/analyses", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("get and list", func(t *testing.T) {
		repo := new(MockAnalysisRepository)
		stored := &domain.AnalysisResult{ID: "0b7c4f3e-8f55-4d57-9d7a-2f0e6f2b1a11", Status: service.StatusSuccess}
		repo.On("GetAnalysis", mock.Anything, stored.ID).Return(stored, nil)
		repo.On("GetAnalysis", mock.Anything, "missing").Return(nil, fmt.Errorf("analysis missing: %w", domain.ErrNotFound))
		repo.On("ListRecent", mock.Anything, "patient-7", 5).Return([]*domain.AnalysisResult{stored}, nil)

		s := newTestServer(t, repo, domain.ServerConfig{})

		w := doJSON(t, s, http.MethodGet, "/api/v1/analyses/"+stored.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, stored.ID, decode[domain.AnalysisResult](t, w).ID)

		w = doJSON(t, s, http.MethodGet, "/api/v1/analyses/missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = doJSON(t, s, http.MethodGet, "/api/v1/analyses?subject_id=patient-7&limit=5", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])

		w = doJSON(t, s, http.MethodGet, "/api/v1/analyses?limit=abc", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		repo.AssertExpectations(t)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil, domain.ServerConfig{})
	require.NoError(t, s.deps.Metrics.RegisterGauge("drf_advice_cache_hit_rate", "Advice cache hit rate", func() float64 { return 0.25 }))

	doJSON(t, s, http.MethodPost, "/api/v1/fuse", FuseRequest{
		Retinal:   domain.RiskInput{Risk: 0.8, Confidence: 1},
		Lifestyle: domain.RiskInput{Risk: 0.8, Confidence: 1},
	})

	w := doJSON(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `drf_http_requests_total{method="POST",route="/api/v1/fuse",status="200"} 1`)
	assert.Contains(t, body, `drf_risk_level_total{level="very_high"} 1`)
	assert.Contains(t, body, "drf_advice_cache_hit_rate 0.25")
}

func TestRateLimitedAPI(t *testing.T) {
	s := newTestServer(t, nil, domain.ServerConfig{RateLimit: 1, RateLimitPeriod: time.Minute})

	w := doJSON(t, s, http.MethodGet, "/api/v1/weights", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, s, http.MethodGet, "/api/v1/weights", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Health is outside the limited group.
	w = doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

type stubGenerator struct {
	text string
}

func (g stubGenerator) Generate(_ context.Context, _ string) (string, error) {
	return g.text, nil
}

func TestSimulate_Explain(t *testing.T) {
	s := newTestServer(t, nil, domain.ServerConfig{})
	s.deps.Advisor = service.NewAdviceService(testLogger(), stubGenerator{text: "Combined changes compound."}, time.Hour)

	req := SimulateRequest{
		CurrentRisk: 0.6,
		Lifestyle:   domain.LifestyleProfile{BMI: domain.Float64(32)},
		Explain:     true,
	}
	w := doJSON(t, s, http.MethodPost, "/api/v1/simulate", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	report := decode[domain.SimulationReport](t, w)
	require.NotNil(t, report.BestScenario)
	assert.Equal(t, "Combined changes compound.", report.BestScenario.Explanation)

	req.Explain = false
	w = doJSON(t, s, http.MethodPost, "/api/v1/simulate", req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[domain.SimulationReport](t, w).BestScenario.Explanation)
}

func TestInvalidateAdviceCache(t *testing.T) {
	s := newTestServer(t, nil, domain.ServerConfig{})

	w := doJSON(t, s, http.MethodDelete, "/api/v1/advice/cache", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	memCache := cache.NewMemoryCache(10, time.Hour)
	ctx := context.Background()
	require.NoError(t, memCache.SetAdvice(ctx, "k1", &domain.Advice{}, 0))
	require.NoError(t, memCache.SetAdvice(ctx, "k2", &domain.Advice{}, 0))
	s.deps.Advisor = service.NewAdviceService(testLogger(), nil, time.Hour, memCache)

	w = doJSON(t, s, http.MethodDelete, "/api/v1/advice/cache", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(2), decode[map[string]any](t, w)["removed"])
	assert.Zero(t, memCache.Stats().Entries)
}
