package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/diabetes-risk-fusion/internal/domain"
	"github.com/diabetes-risk-fusion/internal/outcomes"
	"github.com/diabetes-risk-fusion/internal/training"
)

const (
	defaultOutcomeLimit = 50
	maxOutcomeLimit     = 1000
)

// EvaluateWeightsResponse compares candidate weight pairs on the stored
// outcomes against the pair currently in use.
type EvaluateWeightsResponse struct {
	Current domain.FusionWeights `json:"current_weights"`
	*training.Report
}

// handleRecordOutcome stores a labeled outcome for weight training.
func (s *Server) handleRecordOutcome(c *gin.Context) {
	if s.deps.Outcomes == nil {
		s.respondError(c, domain.NewServiceError(domain.ErrCodeStorage, "outcome recording is not enabled", "", ""))
		return
	}

	var outcome outcomes.Outcome
	if err := c.ShouldBindJSON(&outcome); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}
	outcome.ID = 0

	if err := s.deps.Outcomes.Save(c.Request.Context(), &outcome); err != nil {
		s.respondError(c, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"id":          outcome.ID,
		"subject_ref": outcome.SubjectRef,
		"source":      outcome.Source,
	}).Info("Outcome recorded")
	c.JSON(http.StatusCreated, outcome)
}

// handleListOutcomes pages through stored outcomes, newest first.
func (s *Server) handleListOutcomes(c *gin.Context) {
	if s.deps.Outcomes == nil {
		s.respondError(c, domain.NewServiceError(domain.ErrCodeStorage, "outcome recording is not enabled", "", ""))
		return
	}

	limit, err := queryInt(c, "limit", defaultOutcomeLimit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if limit <= 0 || limit > maxOutcomeLimit {
		limit = defaultOutcomeLimit
	}
	if offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	list, err := s.deps.Outcomes.List(ctx, limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	total, err := s.deps.Outcomes.Count(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if list == nil {
		list = []*outcomes.Outcome{}
	}

	c.JSON(http.StatusOK, gin.H{
		"outcomes": list,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// handleEvaluateWeights runs the candidate comparison on the stored outcomes.
// The engine keeps its weights; saving a new artifact is left to train-weights.
func (s *Server) handleEvaluateWeights(c *gin.Context) {
	if s.deps.Outcomes == nil {
		s.respondError(c, domain.NewServiceError(domain.ErrCodeStorage, "outcome recording is not enabled", "", ""))
		return
	}

	set, err := s.deps.Outcomes.TrainingSet(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	report, err := s.deps.Trainer.Compare(set, s.deps.TrainOptions)
	if err != nil {
		s.respondError(c, err)
		return
	}

	current := domain.DefaultFusionWeights()
	if s.deps.Orchestrator != nil {
		current = s.deps.Orchestrator.Engine().Weights()
	}
	c.JSON(http.StatusOK, EvaluateWeightsResponse{Current: current, Report: report})
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.NewValidationError(key, "must be an integer", v)
	}
	return n, nil
}
