package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/diabetes-risk-fusion/internal/domain"
)

// Metrics holds the Prometheus collectors exported on /metrics. Each instance
// owns its registry so servers and tests never share global state.
type Metrics struct {
	registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	Requests        *prometheus.CounterVec
	FusedScores     prometheus.Histogram
	RiskLevels      *prometheus.CounterVec
	Analyses        *prometheus.CounterVec
}

// NewMetrics creates and registers the service collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "drf_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"route", "method"},
		),

		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drf_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"route", "method", "status"},
		),

		FusedScores: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "drf_fused_score",
				Help:    "Distribution of fused risk scores",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 9),
			},
		),

		RiskLevels: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drf_risk_level_total",
				Help: "Assessments by risk level",
			},
			[]string{"level"},
		),

		Analyses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drf_analyses_total",
				Help: "Pipeline runs by status",
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestDuration,
		m.Requests,
		m.FusedScores,
		m.RiskLevels,
		m.Analyses,
	)
	return m
}

// RegisterGauge exports a value read at scrape time, e.g. a cache hit rate.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, fn))
}

// ObserveAssessment records a fused score and its level.
func (m *Metrics) ObserveAssessment(score float64, level domain.RiskLevel) {
	m.FusedScores.Observe(score)
	m.RiskLevels.WithLabelValues(level.String()).Inc()
}

// Middleware records latency and status per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
		m.Requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
