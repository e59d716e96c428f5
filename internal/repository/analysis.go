// Package repository persists pipeline results in Postgres.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/diabetes-risk-fusion/internal/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// AnalysisRepository stores analysis results. The full result is kept as
// JSONB; headline fields and simulations are also written as columns and
// rows so they can be queried directly.
type AnalysisRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewAnalysisRepository creates a new analysis repository
func NewAnalysisRepository(db *pgxpool.Pool, logger *logrus.Logger) *AnalysisRepository {
	return &AnalysisRepository{
		db:  db,
		log: logger,
	}
}

var _ domain.AnalysisRepository = (*AnalysisRepository)(nil)

// SaveAnalysis inserts result, assigning an ID and timestamp when missing.
func (r *AnalysisRepository) SaveAnalysis(ctx context.Context, result *domain.AnalysisResult) error {
	if result == nil {
		return domain.NewValidationError("result", "must not be nil", nil)
	}

	id := uuid.New()
	if result.ID != "" {
		parsed, err := uuid.Parse(result.ID)
		if err != nil {
			return domain.NewValidationError("id", "must be a UUID", result.ID)
		}
		id = parsed
	}
	result.ID = id.String()
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding analysis: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	a := result.Assessment
	_, err = tx.Exec(ctx, `
		INSERT INTO analyses (
			id, subject_id, status, fused_score, risk_level,
			retinal_weight, lifestyle_weight, result, processing_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id,
		result.SubjectID,
		result.Status,
		a.FusedScore,
		string(a.RiskLevel),
		a.Weights.Retinal,
		a.Weights.Lifestyle,
		payload,
		result.ProcessingTime.Milliseconds(),
		result.CreatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"analysis_id": result.ID,
			"error":       err,
		}).Error("Failed to create analysis")
		return fmt.Errorf("creating analysis: %w", err)
	}

	if sims := result.Simulations.Simulations; len(sims) > 0 {
		batch := &pgx.Batch{}
		for i, s := range sims {
			batch.Queue(`
				INSERT INTO analysis_simulations (
					analysis_id, position, intervention, current_risk, projected_risk, risk_reduction_percent
				) VALUES ($1, $2, $3, $4, $5, $6)`,
				id, i, s.Intervention, s.CurrentRisk, s.ProjectedRisk, s.RiskReductionPercent,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("creating simulations: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing analysis: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"analysis_id": result.ID,
		"subject_id":  result.SubjectID,
		"risk_level":  a.RiskLevel,
		"simulations": len(result.Simulations.Simulations),
	}).Debug("Analysis stored")

	return nil
}

// GetAnalysis retrieves an analysis by its ID
func (r *AnalysisRepository) GetAnalysis(ctx context.Context, id string) (*domain.AnalysisResult, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.NewValidationError("id", "must be a UUID", id)
	}

	var payload []byte
	err = r.db.QueryRow(ctx, `SELECT result FROM analyses WHERE id = $1`, parsed).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("analysis %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting analysis: %w", err)
	}

	return decodeAnalysis(payload)
}

// ListRecent returns the newest analyses, optionally restricted to one
// subject. A non-positive limit uses the default; large limits are capped.
func (r *AnalysisRepository) ListRecent(ctx context.Context, subjectID string, limit int) ([]*domain.AnalysisResult, error) {
	limit = normalizeLimit(limit)

	var rows pgx.Rows
	var err error
	if subjectID == "" {
		rows, err = r.db.Query(ctx,
			`SELECT result FROM analyses ORDER BY created_at DESC LIMIT $1`, limit)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT result FROM analyses WHERE subject_id = $1 ORDER BY created_at DESC LIMIT $2`, subjectID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.AnalysisResult, 0, limit)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning analysis: %w", err)
		}
		result, err := decodeAnalysis(payload)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating analyses: %w", err)
	}
	return results, nil
}

// RiskLevelCounts tallies stored analyses by risk level.
func (r *AnalysisRepository) RiskLevelCounts(ctx context.Context) (map[domain.RiskLevel]int, error) {
	rows, err := r.db.Query(ctx, `SELECT risk_level, COUNT(*) FROM analyses GROUP BY risk_level`)
	if err != nil {
		return nil, fmt.Errorf("counting analyses: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.RiskLevel]int)
	for rows.Next() {
		var level string
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("scanning risk level count: %w", err)
		}
		counts[domain.RiskLevel(level)] = n
	}
	return counts, rows.Err()
}

func decodeAnalysis(payload []byte) (*domain.AnalysisResult, error) {
	var result domain.AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decoding analysis: %w", err)
	}
	return &result, nil
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
